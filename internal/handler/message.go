package handler

import (
	"net/http"
	"time"

	"github.com/portfolio/internal/chat"
)

type MessageHandler struct {
	svc *chat.Service
}

func NewMessageHandler(svc *chat.Service) *MessageHandler {
	return &MessageHandler{svc: svc}
}

type messagesResponse struct {
	RoomID   int64 `json:"room_id"`
	Messages any   `json:"messages"`
}

// Recent returns the latest messages of a room in ascending order.
// Query: limit (default 50, max 100).
func (h *MessageHandler) Recent(w http.ResponseWriter, r *http.Request) {
	id := urlRoomID(r)
	if id == 0 {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	limit := queryInt(r, "limit", chat.DefaultHistoryLimit)
	msgs, err := h.svc.RecentMessages(r.Context(), id, limit)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{RoomID: id, Messages: msgs})
}

// Since returns messages created at or after the given RFC 3339 instant.
// Query: since (required).
func (h *MessageHandler) Since(w http.ResponseWriter, r *http.Request) {
	id := urlRoomID(r)
	if id == 0 {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	raw := r.URL.Query().Get("since")
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
		return
	}
	msgs, err := h.svc.MessagesSince(r.Context(), id, since)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{RoomID: id, Messages: msgs})
}
