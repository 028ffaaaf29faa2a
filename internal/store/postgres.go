package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and ensures the relay schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		online BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS sdp_exchange (
		id BIGSERIAL PRIMARY KEY,
		sender_id BIGINT NOT NULL,
		receiver_id BIGINT NOT NULL,
		type TEXT NOT NULL,
		sdp TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS ice_candidates (
		id BIGSERIAL PRIMARY KEY,
		sender_id BIGINT NOT NULL,
		receiver_id BIGINT NOT NULL,
		candidate TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS call_sessions (
		id UUID PRIMARY KEY,
		caller_id BIGINT NOT NULL,
		callee_id BIGINT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id BIGSERIAL PRIMARY KEY,
		sender_id BIGINT NOT NULL,
		receiver_id BIGINT NOT NULL,
		content TEXT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_sdp_receiver ON sdp_exchange(receiver_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_ice_receiver ON ice_candidates(receiver_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_pair ON call_sessions(caller_id, callee_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_chat_unread ON chat_messages(receiver_id, read);
	CREATE INDEX IF NOT EXISTS idx_users_online ON users(online, last_seen);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnqueueEnvelope persists an offer/answer envelope for the receiver.
func (s *PostgresStore) EnqueueEnvelope(ctx context.Context, senderID, receiverID int64, kind models.SdpKind, payload string) (*models.SignalEnvelope, error) {
	env := &models.SignalEnvelope{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sdp_exchange (sender_id, receiver_id, type, sdp)
		VALUES ($1, $2, $3, $4)
		RETURNING id, sender_id, receiver_id, type, sdp, created_at
	`, senderID, receiverID, string(kind), payload).Scan(
		&env.ID,
		&env.SenderID,
		&env.ReceiverID,
		&env.Kind,
		&env.Payload,
		&env.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return env, nil
}

// ConsumeLatestEnvelope removes and returns the newest envelope queued
// for the receiver. The delete and the read are one statement, so
// concurrent pollers for the same user cannot both observe the row;
// SKIP LOCKED lets the loser fall through to "nothing pending".
func (s *PostgresStore) ConsumeLatestEnvelope(ctx context.Context, receiverID int64) (*models.SignalEnvelope, error) {
	env := &models.SignalEnvelope{}
	err := s.pool.QueryRow(ctx, `
		DELETE FROM sdp_exchange
		WHERE id = (
			SELECT id FROM sdp_exchange
			WHERE receiver_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, sender_id, receiver_id, type, sdp, created_at
	`, receiverID).Scan(
		&env.ID,
		&env.SenderID,
		&env.ReceiverID,
		&env.Kind,
		&env.Payload,
		&env.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return env, nil
}

// AppendCandidate queues a connectivity candidate for the receiver.
func (s *PostgresStore) AppendCandidate(ctx context.Context, senderID, receiverID int64, candidate string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ice_candidates (sender_id, receiver_id, candidate)
		VALUES ($1, $2, $3)
	`, senderID, receiverID, candidate)
	return err
}

// DrainCandidates returns and removes every queued candidate for the
// receiver in a single statement.
func (s *PostgresStore) DrainCandidates(ctx context.Context, receiverID int64) ([]models.IceCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM ice_candidates
		WHERE receiver_id = $1
		RETURNING id, sender_id, receiver_id, candidate, created_at
	`, receiverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []models.IceCandidate
	for rows.Next() {
		var c models.IceCandidate
		if err := rows.Scan(&c.ID, &c.SenderID, &c.ReceiverID, &c.Candidate, &c.CreatedAt); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// CreateCallSession inserts a fresh pending session for the ordered pair.
func (s *PostgresStore) CreateCallSession(ctx context.Context, callerID, calleeID int64) (*models.CallSession, error) {
	sess := &models.CallSession{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO call_sessions (id, caller_id, callee_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, caller_id, callee_id, status, created_at, updated_at
	`, uuid.New(), callerID, calleeID, string(models.CallPending)).Scan(
		&sess.ID,
		&sess.CallerID,
		&sess.CalleeID,
		&sess.Status,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// SetCallStatus transitions the latest pending session for the ordered
// pair. Terminal sessions are left untouched, and a pair with no
// session at all is a silent no-op: the caller cannot tell "already
// cleaned up" from "never happened".
func (s *PostgresStore) SetCallStatus(ctx context.Context, callerID, calleeID int64, status models.CallStatus) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE call_sessions
		SET status = $3, updated_at = NOW()
		WHERE id = (
			SELECT id FROM call_sessions
			WHERE caller_id = $1 AND callee_id = $2 AND status = 'pending'
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
	`, callerID, calleeID, string(status))
	return err
}

// GetCallSession returns the latest session for the ordered pair.
func (s *PostgresStore) GetCallSession(ctx context.Context, callerID, calleeID int64) (*models.CallSession, error) {
	sess := &models.CallSession{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, caller_id, callee_id, status, created_at, updated_at
		FROM call_sessions
		WHERE caller_id = $1 AND callee_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, callerID, calleeID).Scan(
		&sess.ID,
		&sess.CallerID,
		&sess.CalleeID,
		&sess.Status,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sess, nil
}

// SaveChatMessage persists a chat message and fills in the generated
// id and timestamp.
func (s *PostgresStore) SaveChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (sender_id, receiver_id, content, read)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, msg.SenderID, msg.ReceiverID, msg.Content, msg.Read).Scan(&msg.ID, &msg.CreatedAt)
}

// GetConversation returns all messages between two users, oldest first.
func (s *PostgresStore) GetConversation(ctx context.Context, userA, userB int64) ([]models.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sender_id, receiver_id, content, read, created_at
		FROM chat_messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, id ASC
	`, userA, userB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Read, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkMessageRead flags a single message as read.
func (s *PostgresStore) MarkMessageRead(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE chat_messages SET read = TRUE WHERE id = $1`, id)
	return err
}

// MarkConversationRead flags every unread message from sender to
// receiver as read.
func (s *PostgresStore) MarkConversationRead(ctx context.Context, senderID, receiverID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE chat_messages SET read = TRUE
		WHERE sender_id = $1 AND receiver_id = $2 AND read = FALSE
	`, senderID, receiverID)
	return err
}

// UnreadCounts returns the number of unread messages per peer.
func (s *PostgresStore) UnreadCounts(ctx context.Context, receiverID int64) (map[int64]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sender_id, COUNT(*)
		FROM chat_messages
		WHERE receiver_id = $1 AND read = FALSE
		GROUP BY sender_id
	`, receiverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int64]int64)
	for rows.Next() {
		var sender, count int64
		if err := rows.Scan(&sender, &count); err != nil {
			return nil, err
		}
		counts[sender] = count
	}
	return counts, rows.Err()
}

// CreateUser inserts a minimal user record. Account management owns the
// full record; this exists for provisioning and tests.
func (s *PostgresStore) CreateUser(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username)
		VALUES ($1)
		RETURNING id, username, online, last_seen, created_at
	`, username).Scan(&user.ID, &user.Username, &user.Online, &user.LastSeen, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by id.
func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, online, last_seen, created_at
		FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Username, &user.Online, &user.LastSeen, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// TouchHeartbeat marks the user online and refreshes last_seen.
func (s *PostgresStore) TouchHeartbeat(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET online = TRUE, last_seen = NOW() WHERE id = $1
	`, userID)
	return err
}

// SetUserOffline clears the durable online flag.
func (s *PostgresStore) SetUserOffline(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET online = FALSE WHERE id = $1`, userID)
	return err
}

// MarkStaleUsersOffline demotes every user whose heartbeat is older
// than the cutoff, returning how many were demoted.
func (s *PostgresStore) MarkStaleUsersOffline(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET online = FALSE
		WHERE online = TRUE AND last_seen < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListOnlineUsers returns users whose durable presence flag is set.
func (s *PostgresStore) ListOnlineUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, online, last_seen, created_at
		FROM users WHERE online = TRUE
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Online, &u.LastSeen, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
