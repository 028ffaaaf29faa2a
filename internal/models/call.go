package models

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus is the lifecycle state of a call session.
type CallStatus string

const (
	CallPending  CallStatus = "pending"
	CallAccepted CallStatus = "accepted"
	CallRejected CallStatus = "rejected"
	CallTimeout  CallStatus = "timeout"
)

// Terminal reports whether no further transitions are allowed from s.
// A new offer supersedes a terminal session with a fresh pending one.
func (s CallStatus) Terminal() bool {
	return s == CallAccepted || s == CallRejected || s == CallTimeout
}

// CallSession tracks one signaling exchange between an ordered
// (caller, callee) pair. Sessions are never mutated once terminal;
// the latest session for a pair is the authoritative one.
type CallSession struct {
	ID        uuid.UUID  `json:"id"`
	CallerID  int64      `json:"callerId"`
	CalleeID  int64      `json:"calleeId"`
	Status    CallStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
