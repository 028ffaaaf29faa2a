package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/models"
)

// OnlineUserResponse is one entry in the online-users listing.
type OnlineUserResponse struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

// Heartbeat refreshes the durable presence signal for a user. Clients
// call this periodically; the sweeper demotes users who stop.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	userID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || userID <= 0 {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Msg("user lookup failed")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	if err := h.store.TouchHeartbeat(r.Context(), userID); err != nil {
		h.logger.Error().Err(err).Msg("heartbeat update failed")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Logout demotes the user to offline immediately instead of waiting
// for their heartbeat to expire.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	userID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || userID <= 0 {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Msg("user lookup failed")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	if err := h.store.SetUserOffline(r.Context(), userID); err != nil {
		h.logger.Error().Err(err).Msg("logout update failed")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if h.redis != nil {
		if err := h.redis.InvalidateOnlineUsers(r.Context()); err != nil {
			h.logger.Warn().Err(err).Msg("online-users cache invalidation failed")
		}
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// OnlineUsers lists users whose heartbeat-based presence is online.
// This is the coarse signal shown in client UIs; message routing uses
// the live-connection registry instead.
func (h *Handler) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	var users []models.User

	if h.redis != nil {
		cached, err := h.redis.GetCachedOnlineUsers(r.Context())
		if err != nil {
			h.logger.Warn().Err(err).Msg("online-users cache read failed")
		}
		users = cached
	}

	if users == nil {
		var err error
		users, err = h.store.ListOnlineUsers(r.Context())
		if err != nil {
			h.logger.Error().Err(err).Msg("online users query failed")
			h.Error(w, http.StatusInternalServerError, "database error")
			return
		}
		if h.redis != nil {
			if err := h.redis.CacheOnlineUsers(r.Context(), users); err != nil {
				h.logger.Warn().Err(err).Msg("online-users cache write failed")
			}
		}
	}

	out := make([]OnlineUserResponse, len(users))
	for i, u := range users {
		out[i] = OnlineUserResponse{UserID: u.ID, Username: u.Username}
	}
	h.JSON(w, http.StatusOK, out)
}
