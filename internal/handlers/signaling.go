package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// SubmitSdpRequest is the request body for offer and answer submission.
type SubmitSdpRequest struct {
	SenderID   int64  `json:"senderId"`
	ReceiverID int64  `json:"receiverId"`
	Sdp        string `json:"sdp"`
}

// SubmitCandidateRequest is the request body for candidate submission.
type SubmitCandidateRequest struct {
	SenderID   int64  `json:"senderId"`
	ReceiverID int64  `json:"receiverId"`
	Candidate  string `json:"candidate"`
}

// EnvelopeResponse is a consumed signaling envelope.
type EnvelopeResponse struct {
	ID        int64  `json:"id"`
	SenderID  int64  `json:"senderId"`
	Type      string `json:"type"`
	Sdp       string `json:"sdp"`
	CreatedAt int64  `json:"ts"`
}

// CandidateResponse is one drained candidate.
type CandidateResponse struct {
	SenderID  int64  `json:"senderId"`
	Candidate string `json:"candidate"`
}

// SubmitOffer handles a call offer submission.
func (h *Handler) SubmitOffer(w http.ResponseWriter, r *http.Request) {
	var req SubmitSdpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.dispatcher.SubmitOffer(r.Context(), req.SenderID, req.ReceiverID, req.Sdp); err != nil {
		h.dispatchError(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, map[string]string{"status": "queued"})
}

// SubmitAnswer handles a call answer submission.
func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req SubmitSdpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.dispatcher.SubmitAnswer(r.Context(), req.SenderID, req.ReceiverID, req.Sdp); err != nil {
		h.dispatchError(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, map[string]string{"status": "queued"})
}

// SubmitCandidate handles an ICE candidate submission.
func (h *Handler) SubmitCandidate(w http.ResponseWriter, r *http.Request) {
	var req SubmitCandidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.dispatcher.SubmitCandidate(r.Context(), req.SenderID, req.ReceiverID, req.Candidate); err != nil {
		h.dispatchError(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, map[string]string{"status": "queued"})
}

// PollEnvelope consumes the newest pending envelope for the user.
// A 404 here is the steady state, not a failure: nothing is waiting.
func (h *Handler) PollEnvelope(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.queryID(w, r, "userId")
	if !ok {
		return
	}

	env, err := h.dispatcher.PollEnvelope(r.Context(), userID)
	if err != nil {
		h.dispatchError(w, err)
		return
	}
	if env == nil {
		h.Error(w, http.StatusNotFound, "no pending signaling message")
		return
	}

	h.JSON(w, http.StatusOK, EnvelopeResponse{
		ID:        env.ID,
		SenderID:  env.SenderID,
		Type:      string(env.Kind),
		Sdp:       env.Payload,
		CreatedAt: env.CreatedAt.UnixMilli(),
	})
}

// PollCandidates drains all queued candidates for the user.
func (h *Handler) PollCandidates(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.queryID(w, r, "userId")
	if !ok {
		return
	}

	drained, err := h.dispatcher.PollCandidates(r.Context(), userID)
	if err != nil {
		h.dispatchError(w, err)
		return
	}

	candidates := make([]CandidateResponse, len(drained))
	for i, c := range drained {
		candidates[i] = CandidateResponse{SenderID: c.SenderID, Candidate: c.Candidate}
	}
	h.JSON(w, http.StatusOK, map[string][]CandidateResponse{"candidates": candidates})
}

// queryID parses a required positive integer query parameter.
func (h *Handler) queryID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		h.Error(w, http.StatusBadRequest, "missing "+name+" parameter")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.Error(w, http.StatusBadRequest, "invalid "+name+" parameter")
		return 0, false
	}
	return id, true
}
