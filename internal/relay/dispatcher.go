package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/metrics"
	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/models"
	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/presence"
	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/store"
)

// ErrValidation marks malformed or missing identifiers, rejected
// before any component is touched.
var ErrValidation = errors.New("validation")

// Dispatcher is the single entry point for every inbound event:
// signaling submissions, call control, and chat. It resolves the
// recipient through the presence registry and delivers either over the
// live handle or through the durable mailbox. The mailbox write is
// always the authoritative path; a live push is a best-effort extra
// whose failure is logged and never surfaced.
type Dispatcher struct {
	store    store.DataStore
	registry *presence.Registry
	logger   zerolog.Logger
}

// NewDispatcher wires a Dispatcher. The registry is injected, not
// global: its lifecycle belongs to the server process.
func NewDispatcher(ds store.DataStore, registry *presence.Registry, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    ds,
		registry: registry,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Registry exposes the presence registry for the connection lifecycle.
func (d *Dispatcher) Registry() *presence.Registry {
	return d.registry
}

func validateIDs(senderID, receiverID int64) error {
	if senderID <= 0 || receiverID <= 0 {
		return fmt.Errorf("%w: user ids must be positive", ErrValidation)
	}
	if senderID == receiverID {
		return fmt.Errorf("%w: sender and receiver must differ", ErrValidation)
	}
	return nil
}

func validateSdp(senderID, receiverID int64, kind models.SdpKind, payload string) error {
	if err := validateIDs(senderID, receiverID); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown envelope kind %q", ErrValidation, kind)
	}
	if payload == "" {
		return fmt.Errorf("%w: sdp payload is required", ErrValidation)
	}
	return nil
}

// SubmitOffer records a new pending call session, enqueues the offer
// envelope, and pushes it live when the callee is connected.
func (d *Dispatcher) SubmitOffer(ctx context.Context, senderID, receiverID int64, payload string) error {
	if err := validateSdp(senderID, receiverID, models.SdpOffer, payload); err != nil {
		return err
	}

	if _, err := d.store.CreateCallSession(ctx, senderID, receiverID); err != nil {
		return fmt.Errorf("create call session: %w", err)
	}
	env, err := d.store.EnqueueEnvelope(ctx, senderID, receiverID, models.SdpOffer, payload)
	if err != nil {
		return fmt.Errorf("enqueue offer: %w", err)
	}
	metrics.EnvelopesEnqueued.WithLabelValues(string(models.SdpOffer)).Inc()

	frame := newFrame(FrameOffer, senderID)
	frame.Payload = env.Payload
	d.pushLive(receiverID, frame)
	return nil
}

// SubmitAnswer enqueues the answer envelope and marks the latest
// pending session between the pair accepted; the answer is the
// acceptance trigger.
func (d *Dispatcher) SubmitAnswer(ctx context.Context, senderID, receiverID int64, payload string) error {
	if err := validateSdp(senderID, receiverID, models.SdpAnswer, payload); err != nil {
		return err
	}

	env, err := d.store.EnqueueEnvelope(ctx, senderID, receiverID, models.SdpAnswer, payload)
	if err != nil {
		return fmt.Errorf("enqueue answer: %w", err)
	}
	metrics.EnvelopesEnqueued.WithLabelValues(string(models.SdpAnswer)).Inc()

	// The original offer ran receiver -> sender.
	if err := d.store.SetCallStatus(ctx, receiverID, senderID, models.CallAccepted); err != nil {
		return fmt.Errorf("accept call session: %w", err)
	}
	metrics.CallTransitions.WithLabelValues(string(models.CallAccepted)).Inc()

	frame := newFrame(FrameAnswer, senderID)
	frame.Payload = env.Payload
	d.pushLive(receiverID, frame)
	return nil
}

// SubmitCandidate appends a connectivity candidate to the receiver's
// batch. Candidates are low-urgency and poll-friendly; no live push.
func (d *Dispatcher) SubmitCandidate(ctx context.Context, senderID, receiverID int64, candidate string) error {
	if err := validateIDs(senderID, receiverID); err != nil {
		return err
	}
	if candidate == "" {
		return fmt.Errorf("%w: candidate is required", ErrValidation)
	}
	if err := d.store.AppendCandidate(ctx, senderID, receiverID, candidate); err != nil {
		return fmt.Errorf("append candidate: %w", err)
	}
	metrics.CandidatesQueued.Inc()
	return nil
}

// PollEnvelope consumes the newest envelope waiting for the user.
// (nil, nil) is the steady-state "nothing pending" answer.
func (d *Dispatcher) PollEnvelope(ctx context.Context, userID int64) (*models.SignalEnvelope, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", ErrValidation)
	}
	env, err := d.store.ConsumeLatestEnvelope(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("consume envelope: %w", err)
	}
	if env != nil {
		metrics.EnvelopesConsumed.Inc()
	}
	return env, nil
}

// PollCandidates drains the user's candidate batch.
func (d *Dispatcher) PollCandidates(ctx context.Context, userID int64) ([]models.IceCandidate, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", ErrValidation)
	}
	candidates, err := d.store.DrainCandidates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("drain candidates: %w", err)
	}
	metrics.CandidatesDrained.Add(float64(len(candidates)))
	return candidates, nil
}

// Hangup tears down the call between the pair. Both directions are
// marked rejected so neither side's status query resurrects the call,
// then the peer gets a best-effort hangup frame.
func (d *Dispatcher) Hangup(ctx context.Context, fromID, toID int64) error {
	if err := validateIDs(fromID, toID); err != nil {
		return err
	}
	if err := d.store.SetCallStatus(ctx, fromID, toID, models.CallRejected); err != nil {
		return fmt.Errorf("hangup %d->%d: %w", fromID, toID, err)
	}
	if err := d.store.SetCallStatus(ctx, toID, fromID, models.CallRejected); err != nil {
		return fmt.Errorf("hangup %d->%d: %w", toID, fromID, err)
	}
	metrics.CallTransitions.WithLabelValues(string(models.CallRejected)).Inc()

	d.pushLive(toID, newFrame(FrameHangup, fromID))
	return nil
}

// Reject declines a pending call. The original offer ran toID -> fromID;
// the caller discovers the rejection by polling call status, so no push.
func (d *Dispatcher) Reject(ctx context.Context, fromID, toID int64) error {
	if err := validateIDs(fromID, toID); err != nil {
		return err
	}
	if err := d.store.SetCallStatus(ctx, toID, fromID, models.CallRejected); err != nil {
		return fmt.Errorf("reject call: %w", err)
	}
	metrics.CallTransitions.WithLabelValues(string(models.CallRejected)).Inc()
	return nil
}

// CallStatus returns the latest session between the ordered pair, or
// (nil, nil) when the pair has never had one.
func (d *Dispatcher) CallStatus(ctx context.Context, fromID, toID int64) (*models.CallSession, error) {
	if err := validateIDs(fromID, toID); err != nil {
		return nil, err
	}
	sess, err := d.store.GetCallSession(ctx, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("get call session: %w", err)
	}
	return sess, nil
}

// SendChat persists the message, then attempts live delivery. On a
// successful push the message is marked read and the sender gets a
// delivery receipt; if the receiver is offline the message stays
// unread until fetched.
func (d *Dispatcher) SendChat(ctx context.Context, senderID, receiverID int64, content string) (*models.ChatMessage, error) {
	if err := validateIDs(senderID, receiverID); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrValidation)
	}

	msg := &models.ChatMessage{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
	}
	if err := d.store.SaveChatMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save chat message: %w", err)
	}
	metrics.ChatMessagesSent.Inc()

	conn := d.registry.Lookup(receiverID)
	if conn == nil {
		return msg, nil
	}

	frame := newFrame(FrameChat, senderID)
	frame.MessageID = msg.ID
	frame.Content = msg.Content
	if !d.push(conn, receiverID, frame) {
		return msg, nil
	}

	if err := d.store.MarkMessageRead(ctx, msg.ID); err != nil {
		return nil, fmt.Errorf("mark message read: %w", err)
	}
	msg.Read = true

	receipt := newFrame(FrameReceipt, receiverID)
	receipt.MessageID = msg.ID
	receipt.Read = true
	d.pushLive(senderID, receipt)

	return msg, nil
}

// Conversation marks the peer's messages to the user read, then
// returns the full exchange between them, oldest first.
func (d *Dispatcher) Conversation(ctx context.Context, userID, peerID int64) ([]models.ChatMessage, error) {
	if err := validateIDs(userID, peerID); err != nil {
		return nil, err
	}
	if err := d.store.MarkConversationRead(ctx, peerID, userID); err != nil {
		return nil, fmt.Errorf("mark conversation read: %w", err)
	}
	msgs, err := d.store.GetConversation(ctx, userID, peerID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return msgs, nil
}

// UnreadCounts returns the user's unread message count per peer.
func (d *Dispatcher) UnreadCounts(ctx context.Context, userID int64) (map[int64]int64, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", ErrValidation)
	}
	counts, err := d.store.UnreadCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("unread counts: %w", err)
	}
	return counts, nil
}

// HandleInbound routes a frame received on the live channel.
func (d *Dispatcher) HandleInbound(ctx context.Context, senderID int64, data []byte) error {
	frame, err := DecodeInbound(data)
	if err != nil {
		return err
	}
	switch frame.Type {
	case FrameChat:
		_, err = d.SendChat(ctx, senderID, frame.To, frame.Content)
		return err
	case FrameHangup:
		return d.Hangup(ctx, senderID, frame.To)
	}
	return nil
}

// pushLive looks up the user's live handle and pushes the frame when
// one exists. Push is never a precondition for anything durable.
func (d *Dispatcher) pushLive(userID int64, frame Frame) {
	conn := d.registry.Lookup(userID)
	if conn == nil {
		return
	}
	d.push(conn, userID, frame)
}

// push delivers one frame over a handle. A failure means the peer
// dropped mid-operation and is treated as "offline": logged, counted,
// never returned.
func (d *Dispatcher) push(conn presence.Handle, userID int64, frame Frame) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		d.logger.Error().Err(err).Str("frame", string(frame.Type)).Msg("frame marshal failed")
		return false
	}
	if err := conn.Push(data); err != nil {
		metrics.LivePushFailures.Inc()
		d.logger.Warn().
			Err(err).
			Int64("user_id", userID).
			Str("frame", string(frame.Type)).
			Msg("live push failed, peer treated as offline")
		return false
	}
	metrics.LivePushes.WithLabelValues(string(frame.Type)).Inc()
	return true
}
