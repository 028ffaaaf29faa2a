package store

import (
	"context"
	"time"

	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/models"
)

// DataStore is the narrow contract the relay needs from durable storage.
// Both PostgresStore and SQLiteStore implement this interface. Lookups
// return (nil, nil) when nothing matches; "nothing pending" is the
// steady state for polling, not an error.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Mailbox: offer/answer envelopes, keyed by receiver.
	// ConsumeLatestEnvelope removes and returns the newest pending
	// envelope in a single atomic step, so two concurrent pollers for
	// the same receiver never both see it.
	EnqueueEnvelope(ctx context.Context, senderID, receiverID int64, kind models.SdpKind, payload string) (*models.SignalEnvelope, error)
	ConsumeLatestEnvelope(ctx context.Context, receiverID int64) (*models.SignalEnvelope, error)

	// Candidate batch: append-only, drained (returned and deleted) in
	// one transaction.
	AppendCandidate(ctx context.Context, senderID, receiverID int64, candidate string) error
	DrainCandidates(ctx context.Context, receiverID int64) ([]models.IceCandidate, error)

	// Call sessions. SetCallStatus applies to the latest pending
	// session for the ordered pair and is a silent no-op when there is
	// none; terminal sessions are never updated.
	CreateCallSession(ctx context.Context, callerID, calleeID int64) (*models.CallSession, error)
	SetCallStatus(ctx context.Context, callerID, calleeID int64, status models.CallStatus) error
	GetCallSession(ctx context.Context, callerID, calleeID int64) (*models.CallSession, error)

	// Chat
	SaveChatMessage(ctx context.Context, msg *models.ChatMessage) error
	GetConversation(ctx context.Context, userA, userB int64) ([]models.ChatMessage, error)
	MarkMessageRead(ctx context.Context, id int64) error
	MarkConversationRead(ctx context.Context, senderID, receiverID int64) error
	UnreadCounts(ctx context.Context, receiverID int64) (map[int64]int64, error)

	// Durable presence: the heartbeat-based signal, independent of the
	// in-memory registry.
	CreateUser(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	TouchHeartbeat(ctx context.Context, userID int64) error
	SetUserOffline(ctx context.Context, userID int64) error
	MarkStaleUsersOffline(ctx context.Context, olderThan time.Duration) (int64, error)
	ListOnlineUsers(ctx context.Context) ([]models.User, error)
}
