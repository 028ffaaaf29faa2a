package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/presence"
	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/relay"
	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()
	ds, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(ds.Close)

	dispatcher := relay.NewDispatcher(ds, presence.NewRegistry(), zerolog.Nop())
	srv := httptest.NewServer(NewRouter(zerolog.Nop(), dispatcher, ds, nil, nil))
	t.Cleanup(srv.Close)
	return srv, ds
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatal(err)
	}
}

func TestOfferPollRoundtrip(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/signaling/offer", map[string]any{
		"senderId": 1, "receiverId": 2, "sdp": "v=0 offer",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("offer: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/signaling/envelope?userId=2")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("poll: expected 200, got %d", resp.StatusCode)
	}
	var env struct {
		SenderID int64  `json:"senderId"`
		Type     string `json:"type"`
		Sdp      string `json:"sdp"`
	}
	decodeBody(t, resp, &env)
	if env.SenderID != 1 || env.Type != "offer" || env.Sdp != "v=0 offer" {
		t.Fatalf("unexpected envelope %+v", env)
	}

	// Mailbox is consumed; the steady state is a 404.
	resp, err = http.Get(srv.URL + "/api/signaling/envelope?userId=2")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("empty poll: expected 404, got %d", resp.StatusCode)
	}
}

func TestCandidateRoundtrip(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, c := range []string{"candidate:1", "candidate:2"} {
		resp := postJSON(t, srv.URL+"/api/signaling/candidate", map[string]any{
			"senderId": 1, "receiverId": 2, "candidate": c,
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("candidate: expected 201, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/api/signaling/candidates?userId=2")
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Candidates []struct {
			SenderID  int64  `json:"senderId"`
			Candidate string `json:"candidate"`
		} `json:"candidates"`
	}
	decodeBody(t, resp, &out)
	if len(out.Candidates) != 2 || out.Candidates[0].Candidate != "candidate:1" {
		t.Fatalf("unexpected candidates %+v", out.Candidates)
	}

	// Drained; the next poll is an empty batch, not a 404.
	resp, err = http.Get(srv.URL + "/api/signaling/candidates?userId=2")
	if err != nil {
		t.Fatal(err)
	}
	decodeBody(t, resp, &out)
	if len(out.Candidates) != 0 {
		t.Fatalf("expected empty batch, got %+v", out.Candidates)
	}
}

func TestCallStatusLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/signaling/call-status?from=1&to=2")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("no session: expected 404, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/signaling/offer", map[string]any{
		"senderId": 1, "receiverId": 2, "sdp": "v=0",
	})
	resp.Body.Close()

	var status struct {
		Status string `json:"status"`
		By     int64  `json:"by"`
	}
	resp, err = http.Get(srv.URL + "/api/signaling/call-status?from=1&to=2")
	if err != nil {
		t.Fatal(err)
	}
	decodeBody(t, resp, &status)
	if status.Status != "pending" || status.By != 2 {
		t.Fatalf("unexpected status %+v", status)
	}

	resp = postJSON(t, srv.URL+"/api/signaling/reject", map[string]any{"from": 2, "to": 1})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reject: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/signaling/call-status?from=1&to=2")
	if err != nil {
		t.Fatal(err)
	}
	decodeBody(t, resp, &status)
	if status.Status != "rejected" {
		t.Fatalf("expected rejected, got %+v", status)
	}
}

func TestChatEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/chat/messages", map[string]any{
		"senderId": 1, "receiverId": 2, "content": "hello",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send: expected 201, got %d", resp.StatusCode)
	}
	var msg struct {
		ID   int64 `json:"id"`
		Read bool  `json:"read"`
	}
	decodeBody(t, resp, &msg)
	if msg.ID == 0 || msg.Read {
		t.Fatalf("unexpected message %+v", msg)
	}

	var counts map[string]int64
	resp, err := http.Get(srv.URL + "/api/chat/unread?userId=2")
	if err != nil {
		t.Fatal(err)
	}
	decodeBody(t, resp, &counts)
	if counts["1"] != 1 {
		t.Fatalf("expected 1 unread, got %v", counts)
	}

	// Fetching the thread marks it read.
	resp, err = http.Get(srv.URL + "/api/chat/messages?a=2&b=1")
	if err != nil {
		t.Fatal(err)
	}
	var thread struct {
		Messages []struct {
			Content string `json:"content"`
			Read    bool   `json:"read"`
		} `json:"messages"`
	}
	decodeBody(t, resp, &thread)
	if len(thread.Messages) != 1 || !thread.Messages[0].Read {
		t.Fatalf("unexpected thread %+v", thread.Messages)
	}

	// Fresh map: Unmarshal merges into a non-nil one and would keep
	// the stale entry around.
	counts = nil
	resp, err = http.Get(srv.URL + "/api/chat/unread?userId=2")
	if err != nil {
		t.Fatal(err)
	}
	decodeBody(t, resp, &counts)
	if len(counts) != 0 {
		t.Fatalf("expected no unread after fetch, got %v", counts)
	}
}

func TestChatContentTooLong(t *testing.T) {
	srv, _ := newTestServer(t)

	long := bytes.Repeat([]byte("a"), 5000)
	resp := postJSON(t, srv.URL+"/api/chat/messages", map[string]any{
		"senderId": 1, "receiverId": 2, "content": string(long),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestHeartbeatAndOnlineUsers(t *testing.T) {
	srv, ds := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/users/999/heartbeat", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown user: expected 404, got %d", resp.StatusCode)
	}

	user, err := ds.CreateUser(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}

	resp = postJSON(t, srv.URL+"/api/users/"+itoa(user.ID)+"/heartbeat", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("heartbeat: expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/users/online")
	if err != nil {
		t.Fatal(err)
	}
	var online []struct {
		UserID   int64  `json:"userId"`
		Username string `json:"username"`
	}
	decodeBody(t, resp, &online)
	if len(online) != 1 || online[0].Username != "alice" {
		t.Fatalf("unexpected online listing %+v", online)
	}
}

func TestValidationSurfacesAs400(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/signaling/offer", map[string]any{
		"senderId": 1, "receiverId": 1, "sdp": "v=0",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("self-call: expected 400, got %d", resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/api/signaling/envelope?userId=abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var health struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &health)
	if resp.StatusCode != http.StatusOK || health.Status != "healthy" {
		t.Fatalf("expected healthy, got %d %+v", resp.StatusCode, health)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

// dialLive opens a websocket to /ws/{userID} through the full
// middleware chain and waits for the server to register it.
func dialLive(t *testing.T, srv *httptest.Server, userID int64) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + itoa(userID)
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("live channel dial failed: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { ws.Close() })

	// The handshake completes before the handler registers the
	// connection; give it a moment so pushes do not race the dial.
	time.Sleep(50 * time.Millisecond)
	return ws
}

func TestLiveChannelChatDelivery(t *testing.T) {
	srv, _ := newTestServer(t)
	alice := dialLive(t, srv, 1)
	bob := dialLive(t, srv, 2)

	if err := alice.WriteJSON(map[string]any{"type": "chat", "to": 2, "content": "over the wire"}); err != nil {
		t.Fatal(err)
	}

	_ = bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	var chat struct {
		Type      string `json:"type"`
		From      int64  `json:"from"`
		Content   string `json:"content"`
		MessageID int64  `json:"messageId"`
	}
	if err := bob.ReadJSON(&chat); err != nil {
		t.Fatal(err)
	}
	if chat.Type != "chat" || chat.From != 1 || chat.Content != "over the wire" || chat.MessageID == 0 {
		t.Fatalf("unexpected frame %+v", chat)
	}

	// Sender gets a delivery receipt for the live-delivered message.
	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	var receipt struct {
		Type      string `json:"type"`
		MessageID int64  `json:"messageId"`
		Read      bool   `json:"read"`
	}
	if err := alice.ReadJSON(&receipt); err != nil {
		t.Fatal(err)
	}
	if receipt.Type != "receipt" || receipt.MessageID != chat.MessageID || !receipt.Read {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestLiveChannelOfferPush(t *testing.T) {
	srv, _ := newTestServer(t)
	bob := dialLive(t, srv, 2)

	resp := postJSON(t, srv.URL+"/api/signaling/offer", map[string]any{
		"senderId": 1, "receiverId": 2, "sdp": "v=0 live",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("offer: expected 201, got %d", resp.StatusCode)
	}

	_ = bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Type string `json:"type"`
		From int64  `json:"from"`
		Sdp  string `json:"sdp"`
	}
	if err := bob.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != "offer" || frame.From != 1 || frame.Sdp != "v=0 live" {
		t.Fatalf("unexpected frame %+v", frame)
	}
}

func TestLiveChannelRejectsUnknownFrame(t *testing.T) {
	srv, _ := newTestServer(t)
	ws := dialLive(t, srv, 1)

	if err := ws.WriteJSON(map[string]any{"type": "register", "to": 2}); err != nil {
		t.Fatal(err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}
	if err := ws.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != "error" || reply.Error == "" {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestLogout(t *testing.T) {
	srv, ds := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/users/999/logout", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown user: expected 404, got %d", resp.StatusCode)
	}

	user, err := ds.CreateUser(context.Background(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	resp = postJSON(t, srv.URL+"/api/users/"+itoa(user.ID)+"/heartbeat", nil)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/users/"+itoa(user.ID)+"/logout", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", resp.StatusCode)
	}

	online, err := ds.ListOnlineUsers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(online) != 0 {
		t.Fatalf("expected nobody online after logout, got %+v", online)
	}
}
