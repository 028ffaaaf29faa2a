package handlers

import (
	"encoding/json"
	"net/http"
)

// CallControlRequest is the request body for hangup and reject.
type CallControlRequest struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// CallStatusResponse reports the state of the latest call session
// between an ordered pair. By is the user who last acted on the call.
type CallStatusResponse struct {
	Status string `json:"status"`
	By     int64  `json:"by"`
}

// Hangup ends the call between two users. Both directions of the pair
// are closed; the peer is notified over the live channel if connected.
func (h *Handler) Hangup(w http.ResponseWriter, r *http.Request) {
	var req CallControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.dispatcher.Hangup(r.Context(), req.From, req.To); err != nil {
		h.dispatchError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Reject declines a pending call from req.To. The caller discovers the
// rejection by polling call status.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req CallControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.dispatcher.Reject(r.Context(), req.From, req.To); err != nil {
		h.dispatchError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CallStatus returns the status of the latest call session from
// ?from= to ?to=, or 404 when the pair has no session.
func (h *Handler) CallStatus(w http.ResponseWriter, r *http.Request) {
	from, ok := h.queryID(w, r, "from")
	if !ok {
		return
	}
	to, ok := h.queryID(w, r, "to")
	if !ok {
		return
	}

	sess, err := h.dispatcher.CallStatus(r.Context(), from, to)
	if err != nil {
		h.dispatchError(w, err)
		return
	}
	if sess == nil {
		h.Error(w, http.StatusNotFound, "no call session")
		return
	}

	h.JSON(w, http.StatusOK, CallStatusResponse{
		Status: string(sess.Status),
		By:     sess.CalleeID,
	})
}
