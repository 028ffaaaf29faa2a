package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the
// single-node deployment alternative to PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/relay.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/relay.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		online INTEGER NOT NULL DEFAULT 0,
		last_seen DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sdp_exchange (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id INTEGER NOT NULL,
		receiver_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		sdp TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ice_candidates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id INTEGER NOT NULL,
		receiver_id INTEGER NOT NULL,
		candidate TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS call_sessions (
		id TEXT PRIMARY KEY,
		caller_id INTEGER NOT NULL,
		callee_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id INTEGER NOT NULL,
		receiver_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sdp_receiver ON sdp_exchange(receiver_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_ice_receiver ON ice_candidates(receiver_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_pair ON call_sessions(caller_id, callee_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_chat_unread ON chat_messages(receiver_id, read);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnqueueEnvelope persists an offer/answer envelope for the receiver.
func (s *SQLiteStore) EnqueueEnvelope(ctx context.Context, senderID, receiverID int64, kind models.SdpKind, payload string) (*models.SignalEnvelope, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sdp_exchange (sender_id, receiver_id, type, sdp, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, senderID, receiverID, string(kind), payload, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.SignalEnvelope{
		ID:         id,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Kind:       kind,
		Payload:    payload,
		CreatedAt:  now,
	}, nil
}

// ConsumeLatestEnvelope removes and returns the newest envelope queued
// for the receiver. SQLite serializes writers, so wrapping the select
// and the guarded delete in one transaction closes the race between
// concurrent pollers: the delete is conditioned on the row still being
// present, and the loser retries the select and finds nothing.
func (s *SQLiteStore) ConsumeLatestEnvelope(ctx context.Context, receiverID int64) (*models.SignalEnvelope, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	env := &models.SignalEnvelope{}
	err = tx.QueryRowContext(ctx, `
		SELECT id, sender_id, receiver_id, type, sdp, created_at
		FROM sdp_exchange
		WHERE receiver_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, receiverID).Scan(
		&env.ID,
		&env.SenderID,
		&env.ReceiverID,
		&env.Kind,
		&env.Payload,
		&env.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sdp_exchange WHERE id = ?`, env.ID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	if affected == 0 {
		// Another consumer took it between our select and delete.
		return nil, nil
	}
	return env, nil
}

// AppendCandidate queues a connectivity candidate for the receiver.
func (s *SQLiteStore) AppendCandidate(ctx context.Context, senderID, receiverID int64, candidate string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ice_candidates (sender_id, receiver_id, candidate, created_at)
		VALUES (?, ?, ?, ?)
	`, senderID, receiverID, candidate, time.Now().UTC())
	return err
}

// DrainCandidates returns and removes every queued candidate for the
// receiver in one transaction.
func (s *SQLiteStore) DrainCandidates(ctx context.Context, receiverID int64) ([]models.IceCandidate, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, candidate, created_at
		FROM ice_candidates
		WHERE receiver_id = ?
		ORDER BY id ASC
	`, receiverID)
	if err != nil {
		return nil, err
	}

	var candidates []models.IceCandidate
	for rows.Next() {
		var c models.IceCandidate
		if err := rows.Scan(&c.ID, &c.SenderID, &c.ReceiverID, &c.Candidate, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ice_candidates WHERE receiver_id = ?`, receiverID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// CreateCallSession inserts a fresh pending session for the ordered pair.
func (s *SQLiteStore) CreateCallSession(ctx context.Context, callerID, calleeID int64) (*models.CallSession, error) {
	now := time.Now().UTC()
	id := uuid.New()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO call_sessions (id, caller_id, callee_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), callerID, calleeID, string(models.CallPending), now, now)
	if err != nil {
		return nil, err
	}
	return &models.CallSession{
		ID:        id,
		CallerID:  callerID,
		CalleeID:  calleeID,
		Status:    models.CallPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SetCallStatus transitions the latest pending session for the ordered
// pair; a no-op when there is none or it is already terminal.
func (s *SQLiteStore) SetCallStatus(ctx context.Context, callerID, calleeID int64, status models.CallStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE call_sessions
		SET status = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM call_sessions
			WHERE caller_id = ? AND callee_id = ? AND status = 'pending'
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
	`, string(status), time.Now().UTC(), callerID, calleeID)
	return err
}

// GetCallSession returns the latest session for the ordered pair.
func (s *SQLiteStore) GetCallSession(ctx context.Context, callerID, calleeID int64) (*models.CallSession, error) {
	sess := &models.CallSession{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, caller_id, callee_id, status, created_at, updated_at
		FROM call_sessions
		WHERE caller_id = ? AND callee_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, callerID, calleeID).Scan(
		&idStr,
		&sess.CallerID,
		&sess.CalleeID,
		&sess.Status,
		&sess.CreatedAt,
		&sess.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sess.ID = uuid.MustParse(idStr)
	return sess, nil
}

// SaveChatMessage persists a chat message and fills in the generated
// id and timestamp.
func (s *SQLiteStore) SaveChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (sender_id, receiver_id, content, read, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.SenderID, msg.ReceiverID, msg.Content, msg.Read, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	msg.ID = id
	msg.CreatedAt = now
	return nil
}

// GetConversation returns all messages between two users, oldest first.
func (s *SQLiteStore) GetConversation(ctx context.Context, userA, userB int64) ([]models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, content, read, created_at
		FROM chat_messages
		WHERE (sender_id = ? AND receiver_id = ?)
		   OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, id ASC
	`, userA, userB, userB, userA)
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
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chat_messages SET read = 1 WHERE id = ?`, id)
	return err
}

// MarkConversationRead flags every unread message from sender to
// receiver as read.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, senderID, receiverID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chat_messages SET read = 1
		WHERE sender_id = ? AND receiver_id = ? AND read = 0
	`, senderID, receiverID)
	return err
}

// UnreadCounts returns the number of unread messages per peer.
func (s *SQLiteStore) UnreadCounts(ctx context.Context, receiverID int64) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender_id, COUNT(*)
		FROM chat_messages
		WHERE receiver_id = ? AND read = 0
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

// CreateUser inserts a minimal user record for provisioning and tests.
func (s *SQLiteStore) CreateUser(ctx context.Context, username string) (*models.User, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, online, last_seen, created_at)
		VALUES (?, 0, ?, ?)
	`, username, now, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.User{ID: id, Username: username, LastSeen: now, CreatedAt: now}, nil
}

// GetUserByID retrieves a user by id.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, online, last_seen, created_at
		FROM users WHERE id = ?
	`, id).Scan(&user.ID, &user.Username, &user.Online, &user.LastSeen, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// TouchHeartbeat marks the user online and refreshes last_seen.
func (s *SQLiteStore) TouchHeartbeat(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET online = 1, last_seen = ? WHERE id = ?
	`, time.Now().UTC(), userID)
	return err
}

// SetUserOffline clears the durable online flag.
func (s *SQLiteStore) SetUserOffline(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET online = 0 WHERE id = ?`, userID)
	return err
}

// MarkStaleUsersOffline demotes every user whose heartbeat is older
// than the cutoff, returning how many were demoted.
func (s *SQLiteStore) MarkStaleUsersOffline(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET online = 0
		WHERE online = 1 AND last_seen < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListOnlineUsers returns users whose durable presence flag is set.
func (s *SQLiteStore) ListOnlineUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, online, last_seen, created_at
		FROM users WHERE online = 1
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
