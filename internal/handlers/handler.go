package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/relay"
	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	dispatcher *relay.Dispatcher
	store      store.DataStore
	redis      *store.RedisStore // optional
	logger     zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(dispatcher *relay.Dispatcher, ds store.DataStore, redis *store.RedisStore, logger zerolog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		store:      ds,
		redis:      redis,
		logger:     logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// dispatchError maps a dispatcher error onto an HTTP response.
// Validation failures are the caller's fault; everything else is a
// store failure and indicates data-loss risk, so it is logged and
// surfaced as a 500.
func (h *Handler) dispatchError(w http.ResponseWriter, err error) {
	if errors.Is(err, relay.ErrValidation) {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Error().Err(err).Msg("dispatch failed")
	h.Error(w, http.StatusInternalServerError, "internal error")
}
