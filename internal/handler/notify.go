package handler

import (
	"encoding/json"
	"net/http"

	"github.com/portfolio/internal/logger"
	"github.com/portfolio/internal/middleware"
	"github.com/portfolio/internal/notify"
)

// NotifyHandler forwards browser push subscriptions to the notify service.
type NotifyHandler struct {
	client *notify.Client
}

func NewNotifyHandler(client *notify.Client) *NotifyHandler {
	return &NotifyHandler{client: client}
}

func (h *NotifyHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var sub notify.PushSubscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint, keys.p256dh and keys.auth required")
		return
	}
	if err := h.client.Subscribe(r.Context(), userID, sub); err != nil {
		logger.Errorf("notify subscribe user=%s: %v", userID, err)
		writeError(w, http.StatusBadGateway, "notify service unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotifyHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint required")
		return
	}
	if err := h.client.Unsubscribe(r.Context(), userID, req.Endpoint); err != nil {
		logger.Errorf("notify unsubscribe user=%s: %v", userID, err)
		writeError(w, http.StatusBadGateway, "notify service unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
