package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/metrics"
	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/presence"
	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/relay"
)

const (
	maxFrameSize = 16 * 1024
	pongWait     = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers connect from any origin; auth policy is out of scope here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LiveChannel upgrades the request to a websocket and runs the user's
// live channel until the socket drops. A new connection from the same
// user replaces the previous one.
func (h *Handler) LiveChannel(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "userId")
	userID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || userID <= 0 {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := presence.NewConn(userID, ws)
	registry := h.dispatcher.Registry()

	if previous := registry.Register(userID, conn); previous != nil {
		if prev, ok := previous.(*presence.Conn); ok {
			prev.Close(4001, "session replaced")
		}
	}
	conn.Start()
	metrics.ActiveConnections.Set(float64(registry.Len()))

	h.logger.Info().Int64("user_id", userID).Str("conn_id", conn.ID).Msg("live channel opened")

	h.readLoop(ws, conn, userID)

	// Only evict our own registration; a replacement connection may
	// already own the slot.
	registry.Unregister(userID, conn)
	conn.Close(websocket.CloseNormalClosure, "bye")
	metrics.ActiveConnections.Set(float64(registry.Len()))

	h.logger.Info().Int64("user_id", userID).Str("conn_id", conn.ID).Msg("live channel closed")
}

func (h *Handler) readLoop(ws *websocket.Conn, conn *presence.Conn, userID int64) {
	// The socket outlives the upgrade request, so inbound dispatch runs
	// on the connection's own context.
	ctx := context.Background()

	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn().Err(err).Int64("user_id", userID).Msg("live channel read error")
			}
			return
		}

		if err := h.dispatcher.HandleInbound(ctx, userID, data); err != nil {
			if errors.Is(err, relay.ErrValidation) {
				// Bad frame from this client; tell them and move on.
				_ = conn.Push([]byte(`{"type":"error","error":"unsupported frame"}`))
				continue
			}
			h.logger.Error().Err(err).Int64("user_id", userID).Msg("inbound frame dispatch failed")
		}
	}
}
