package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestConsumeLatestEnvelope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.EnqueueEnvelope(ctx, 1, 2, models.SdpOffer, "sdp-old"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := s.EnqueueEnvelope(ctx, 3, 2, models.SdpOffer, "sdp-new"); err != nil {
		t.Fatal(err)
	}

	env, err := s.ConsumeLatestEnvelope(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if env == nil || env.Payload != "sdp-new" {
		t.Fatalf("expected newest envelope first, got %+v", env)
	}

	env, err = s.ConsumeLatestEnvelope(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if env == nil || env.Payload != "sdp-old" {
		t.Fatalf("expected superseded envelope second, got %+v", env)
	}

	env, err = s.ConsumeLatestEnvelope(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if env != nil {
		t.Fatalf("expected empty mailbox, got %+v", env)
	}
}

func TestConsumeEnvelopeExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.EnqueueEnvelope(ctx, 1, 2, models.SdpOffer, "sdp"); err != nil {
		t.Fatal(err)
	}

	results := make(chan *models.SignalEnvelope, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env, err := s.ConsumeLatestEnvelope(ctx, 2)
			if err != nil {
				t.Error(err)
				return
			}
			results <- env
		}()
	}
	wg.Wait()
	close(results)

	hits := 0
	for env := range results {
		if env != nil {
			hits++
		}
	}
	if hits != 1 {
		t.Fatalf("expected exactly one consumer to win, got %d", hits)
	}
}

func TestConsumeIgnoresOtherReceivers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.EnqueueEnvelope(ctx, 1, 2, models.SdpOffer, "for-2"); err != nil {
		t.Fatal(err)
	}

	env, err := s.ConsumeLatestEnvelope(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if env != nil {
		t.Fatalf("user 3 should have an empty mailbox, got %+v", env)
	}
}

func TestDrainCandidates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, c := range []string{"cand-a", "cand-b", "cand-c"} {
		if err := s.AppendCandidate(ctx, 1, 2, c); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AppendCandidate(ctx, 1, 9, "other-receiver"); err != nil {
		t.Fatal(err)
	}

	drained, err := s.DrainCandidates(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(drained) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(drained))
	}

	again, err := s.DrainCandidates(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("second drain should be empty, got %d", len(again))
	}

	// Other receivers are untouched.
	other, err := s.DrainCandidates(ctx, 9)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 1 {
		t.Fatalf("expected 1 candidate for user 9, got %d", len(other))
	}
}

func TestCallSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.GetCallSession(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if sess != nil {
		t.Fatalf("expected no session yet, got %+v", sess)
	}

	if _, err := s.CreateCallSession(ctx, 1, 2); err != nil {
		t.Fatal(err)
	}
	sess, err = s.GetCallSession(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if sess == nil || sess.Status != models.CallPending {
		t.Fatalf("expected pending session, got %+v", sess)
	}

	if err := s.SetCallStatus(ctx, 1, 2, models.CallAccepted); err != nil {
		t.Fatal(err)
	}
	sess, _ = s.GetCallSession(ctx, 1, 2)
	if sess.Status != models.CallAccepted {
		t.Fatalf("expected accepted, got %s", sess.Status)
	}
	if !sess.Status.Terminal() {
		t.Fatalf("%s should be terminal", sess.Status)
	}

	// Terminal states are immutable; a late hangup must not flip them.
	if err := s.SetCallStatus(ctx, 1, 2, models.CallRejected); err != nil {
		t.Fatal(err)
	}
	sess, _ = s.GetCallSession(ctx, 1, 2)
	if sess.Status != models.CallAccepted {
		t.Fatalf("terminal session was mutated to %s", sess.Status)
	}

	// A fresh offer supersedes with a new pending session.
	time.Sleep(2 * time.Millisecond)
	if _, err := s.CreateCallSession(ctx, 1, 2); err != nil {
		t.Fatal(err)
	}
	sess, _ = s.GetCallSession(ctx, 1, 2)
	if sess.Status != models.CallPending {
		t.Fatalf("expected fresh pending session, got %s", sess.Status)
	}
}

func TestSetCallStatusNoSessionIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Caller can't tell "cleaned up" from "never happened"; their
	// hangup must not fail.
	if err := s.SetCallStatus(ctx, 5, 6, models.CallRejected); err != nil {
		t.Fatalf("status update without a session should be a no-op, got %v", err)
	}
}

func TestChatReadFlow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &models.ChatMessage{SenderID: 1, ReceiverID: 2, Content: "hey"}
	if err := s.SaveChatMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if msg.ID == 0 {
		t.Fatal("expected generated message id")
	}

	counts, err := s.UnreadCounts(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if counts[1] != 1 {
		t.Fatalf("expected 1 unread from user 1, got %v", counts)
	}

	if err := s.MarkConversationRead(ctx, 1, 2); err != nil {
		t.Fatal(err)
	}
	counts, _ = s.UnreadCounts(ctx, 2)
	if len(counts) != 0 {
		t.Fatalf("expected no unread after mark, got %v", counts)
	}

	msgs, err := s.GetConversation(ctx, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || !msgs[0].Read {
		t.Fatalf("expected one read message, got %+v", msgs)
	}
}

func TestConversationOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, pair := range [][2]int64{{1, 2}, {2, 1}, {1, 2}} {
		msg := &models.ChatMessage{SenderID: pair[0], ReceiverID: pair[1], Content: string(rune('a' + i))}
		if err := s.SaveChatMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	// Unrelated conversation must not leak in.
	if err := s.SaveChatMessage(ctx, &models.ChatMessage{SenderID: 1, ReceiverID: 9, Content: "x"}); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.GetConversation(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatal("conversation not ordered oldest first")
		}
	}
}

func TestHeartbeatSweep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.TouchHeartbeat(ctx, alice.ID); err != nil {
		t.Fatal(err)
	}

	online, err := s.ListOnlineUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(online) != 1 || online[0].ID != alice.ID {
		t.Fatalf("expected alice online, got %+v", online)
	}

	time.Sleep(5 * time.Millisecond)
	demoted, err := s.MarkStaleUsersOffline(ctx, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if demoted != 1 {
		t.Fatalf("expected 1 demotion, got %d", demoted)
	}

	online, _ = s.ListOnlineUsers(ctx)
	if len(online) != 0 {
		t.Fatalf("expected nobody online after sweep, got %+v", online)
	}

	// A fresh heartbeat survives a sweep with a generous timeout.
	if err := s.TouchHeartbeat(ctx, alice.ID); err != nil {
		t.Fatal(err)
	}
	demoted, err = s.MarkStaleUsersOffline(ctx, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if demoted != 0 {
		t.Fatalf("fresh heartbeat was demoted")
	}
}

func TestGetUserAbsent(t *testing.T) {
	s := newTestStore(t)

	user, err := s.GetUserByID(context.Background(), 999)
	if err != nil {
		t.Fatal(err)
	}
	if user != nil {
		t.Fatalf("expected nil for unknown user, got %+v", user)
	}
}
