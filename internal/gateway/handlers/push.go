package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/linkflow-ai/notifyhub/internal/notification/domain/model"
	"github.com/linkflow-ai/notifyhub/internal/platform/logger"
	"github.com/linkflow-ai/notifyhub/internal/platform/response"
)

// PushRequest is a notification addressed to one user or everyone
type PushRequest struct {
	UserID string `json:"userId,omitempty"`
	model.Draft
}

// PushHandler lets backend producers inject notifications
type PushHandler struct {
	hub    *Hub
	logger logger.Logger
	now    func() time.Time
}

func NewPushHandler(hub *Hub, log logger.Logger) *PushHandler {
	return &PushHandler{hub: hub, logger: log, now: time.Now}
}

func (h *PushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("body", "invalid request body"))
		return
	}
	if v := req.Draft.Check(); v.HasErrors() {
		response.Error(w, response.ErrValidation.WithFields(v.Fields()))
		return
	}

	n, err := model.NewNotification(req.Draft, "", h.now())
	if err != nil {
		response.Error(w, response.ErrValidation.WithDetails("notification", err.Error()))
		return
	}

	if err := h.hub.Push(n, req.UserID); err != nil {
		if errors.Is(err, ErrHubStopped) {
			response.Error(w, response.ErrServiceUnavailable)
			return
		}
		h.logger.Error("Failed to push notification", "error", err)
		response.Error(w, response.ErrInternal)
		return
	}

	h.logger.Info("Notification pushed", "notification_id", n.ID, "user_id", req.UserID)
	response.Accepted(w, n)
}
