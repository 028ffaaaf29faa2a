package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shrouq-haney/SIP-Over-WebRTC/internal/models"
)

const maxChatContent = 4096

// SendChatRequest is the request body for sending a chat message.
type SendChatRequest struct {
	SenderID   int64  `json:"senderId"`
	ReceiverID int64  `json:"receiverId"`
	Content    string `json:"content"`
}

// ChatMessageResponse represents a chat message in API responses.
type ChatMessageResponse struct {
	ID         int64  `json:"id"`
	SenderID   int64  `json:"senderId"`
	ReceiverID int64  `json:"receiverId"`
	Content    string `json:"content"`
	Read       bool   `json:"read"`
	CreatedAt  int64  `json:"ts"`
}

func toChatResponse(m models.ChatMessage) ChatMessageResponse {
	return ChatMessageResponse{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Read:       m.Read,
		CreatedAt:  m.CreatedAt.UnixMilli(),
	}
}

// SendChatMessage persists and relays a chat message.
func (h *Handler) SendChatMessage(w http.ResponseWriter, r *http.Request) {
	var req SendChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Content) > maxChatContent {
		h.Error(w, http.StatusUnprocessableEntity, "content too long (max 4096 bytes)")
		return
	}

	msg, err := h.dispatcher.SendChat(r.Context(), req.SenderID, req.ReceiverID, req.Content)
	if err != nil {
		h.dispatchError(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, toChatResponse(*msg))
}

// GetMessages returns the conversation between ?a= and ?b=, marking
// b's messages to a as read.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.queryID(w, r, "a")
	if !ok {
		return
	}
	peerID, ok := h.queryID(w, r, "b")
	if !ok {
		return
	}

	msgs, err := h.dispatcher.Conversation(r.Context(), userID, peerID)
	if err != nil {
		h.dispatchError(w, err)
		return
	}

	messages := make([]ChatMessageResponse, len(msgs))
	for i, m := range msgs {
		messages[i] = toChatResponse(m)
	}
	h.JSON(w, http.StatusOK, map[string][]ChatMessageResponse{"messages": messages})
}

// GetUnreadCounts returns the unread message count per peer for ?userId=.
func (h *Handler) GetUnreadCounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.queryID(w, r, "userId")
	if !ok {
		return
	}

	counts, err := h.dispatcher.UnreadCounts(r.Context(), userID)
	if err != nil {
		h.dispatchError(w, err)
		return
	}

	// JSON object keys are strings; render peer ids explicitly.
	out := make(map[string]int64, len(counts))
	for peer, n := range counts {
		out[strconv.FormatInt(peer, 10)] = n
	}
	h.JSON(w, http.StatusOK, out)
}
