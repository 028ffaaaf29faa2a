package models

import "time"

// ChatMessage is one persisted text message between two users.
// Read flips to true on live delivery or on a later fetch by the
// receiver; messages are never deleted by the relay.
type ChatMessage struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"createdAt"`
}
