package models

import "time"

// SdpKind discriminates what a signaling envelope carries.
type SdpKind string

const (
	SdpOffer  SdpKind = "offer"
	SdpAnswer SdpKind = "answer"
)

// Valid reports whether k is a known envelope kind.
func (k SdpKind) Valid() bool {
	return k == SdpOffer || k == SdpAnswer
}

// SignalEnvelope is one offer or answer waiting in a user's mailbox.
// Payload is the raw session description; the server never parses it.
type SignalEnvelope struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Kind       SdpKind   `json:"type"`
	Payload    string    `json:"sdp"`
	CreatedAt  time.Time `json:"createdAt"`
}

// IceCandidate is one queued connectivity candidate. Candidates are
// append-only and drained in bulk; duplicates are harmless.
type IceCandidate struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Candidate  string    `json:"candidate"`
	CreatedAt  time.Time `json:"createdAt"`
}
