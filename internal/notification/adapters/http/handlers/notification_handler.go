package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/linkflow-ai/notifyhub/internal/notification/app/service"
	"github.com/linkflow-ai/notifyhub/internal/notification/app/store"
	"github.com/linkflow-ai/notifyhub/internal/notification/app/view"
	"github.com/linkflow-ai/notifyhub/internal/notification/domain/model"
	"github.com/linkflow-ai/notifyhub/internal/notification/domain/repository"
	"github.com/linkflow-ai/notifyhub/internal/platform/logger"
	"github.com/linkflow-ai/notifyhub/internal/platform/response"
)

type NotificationHandler struct {
	service  *service.NotificationService
	store    *store.Store
	toasts   *view.ToastManager
	tooltips repository.TooltipRepository
	logger   logger.Logger
}

func NewNotificationHandler(
	svc *service.NotificationService,
	st *store.Store,
	toasts *view.ToastManager,
	tooltips repository.TooltipRepository,
	logger logger.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		service:  svc,
		store:    st,
		toasts:   toasts,
		tooltips: tooltips,
		logger:   logger,
	}
}

func (h *NotificationHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/notifications", h.ListNotifications).Methods(http.MethodGet)
	router.HandleFunc("/notifications", h.CreateNotification).Methods(http.MethodPost)
	router.HandleFunc("/notifications", h.ClearAll).Methods(http.MethodDelete)
	router.HandleFunc("/notifications/unread-count", h.UnreadCount).Methods(http.MethodGet)
	router.HandleFunc("/notifications/bell", h.Bell).Methods(http.MethodGet)
	router.HandleFunc("/notifications/toasts", h.Toasts).Methods(http.MethodGet)
	router.HandleFunc("/notifications/toasts/{id}", h.DismissToast).Methods(http.MethodDelete)
	router.HandleFunc("/notifications/read-all", h.MarkAllAsRead).Methods(http.MethodPost)
	router.HandleFunc("/notifications/{id}/read", h.MarkAsRead).Methods(http.MethodPost)
	router.HandleFunc("/notifications/{id}", h.DeleteNotification).Methods(http.MethodDelete)

	router.HandleFunc("/filters", h.GetFilters).Methods(http.MethodGet)
	router.HandleFunc("/filters", h.UpdateFilters).Methods(http.MethodPatch)
	router.HandleFunc("/filters", h.ResetFilters).Methods(http.MethodDelete)

	router.HandleFunc("/preferences", h.GetPreferences).Methods(http.MethodGet)
	router.HandleFunc("/preferences", h.UpdatePreferences).Methods(http.MethodPatch)

	router.HandleFunc("/tooltips/{id}", h.GetTooltip).Methods(http.MethodGet)
	router.HandleFunc("/tooltips/{id}/seen", h.MarkTooltipSeen).Methods(http.MethodPost)
	router.HandleFunc("/tooltips", h.ResetTooltips).Methods(http.MethodDelete)
}

// ListNotifications returns the panel list: the store's filtered view,
// minus categories muted in preferences, narrowed by query parameters.
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	query, err := parseFilter(r)
	if err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("query", err.Error()))
		return
	}

	items := query.Apply(h.store.VisibleNotifications())
	response.JSONWithMeta(w, http.StatusOK, items, &response.Meta{
		Total:  len(items),
		Unread: h.store.UnreadCount(),
	})
}

func (h *NotificationHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var draft model.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("body", "invalid request body"))
		return
	}
	if v := draft.Check(); v.HasErrors() {
		response.Error(w, response.ErrValidation.WithFields(v.Fields()))
		return
	}

	notification, err := h.store.AddNotification(r.Context(), draft)
	if err != nil {
		if errors.Is(err, service.ErrClosed) {
			response.Error(w, response.ErrServiceUnavailable)
			return
		}
		response.Error(w, response.ErrValidation.WithDetails("notification", err.Error()))
		return
	}

	response.Accepted(w, notification)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]int{"unreadCount": h.store.UnreadCount()})
}

func (h *NotificationHandler) Bell(w http.ResponseWriter, r *http.Request) {
	response.OK(w, view.Bell(h.store.Notifications()))
}

func (h *NotificationHandler) Toasts(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.toasts.Active())
}

func (h *NotificationHandler) DismissToast(w http.ResponseWriter, r *http.Request) {
	if !h.toasts.Dismiss(mux.Vars(r)["id"]) {
		response.Error(w, response.ErrNotFound)
		return
	}
	response.NoContent(w)
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	if !h.store.MarkAsRead(r.Context(), mux.Vars(r)["id"]) {
		response.Error(w, response.ErrNotFound)
		return
	}
	response.NoContent(w)
}

func (h *NotificationHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	h.store.MarkAllAsRead(r.Context())
	response.NoContent(w)
}

func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	if !h.store.DeleteNotification(r.Context(), mux.Vars(r)["id"]) {
		response.Error(w, response.ErrNotFound)
		return
	}
	response.NoContent(w)
}

func (h *NotificationHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	h.store.ClearAll(r.Context())
	response.NoContent(w)
}

func (h *NotificationHandler) GetFilters(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.store.Filters())
}

func (h *NotificationHandler) UpdateFilters(w http.ResponseWriter, r *http.Request) {
	var patch model.Filter
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("body", "invalid request body"))
		return
	}
	if patch.Type != nil && !patch.Type.Valid() {
		response.Error(w, response.ErrValidation.WithDetails("type", string(*patch.Type)))
		return
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		response.Error(w, response.ErrValidation.WithDetails("priority", string(*patch.Priority)))
		return
	}

	h.store.UpdateFilters(patch)
	response.OK(w, h.store.Filters())
}

func (h *NotificationHandler) ResetFilters(w http.ResponseWriter, r *http.Request) {
	h.store.ResetFilters()
	response.NoContent(w)
}

func (h *NotificationHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.service.Preferences())
}

func (h *NotificationHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var patch model.PreferencesPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("body", "invalid request body"))
		return
	}

	response.OK(w, h.service.UpdatePreferences(r.Context(), patch))
}

func (h *NotificationHandler) GetTooltip(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	response.OK(w, map[string]interface{}{
		"id":   id,
		"seen": h.tooltips.IsSeen(r.Context(), id),
	})
}

func (h *NotificationHandler) MarkTooltipSeen(w http.ResponseWriter, r *http.Request) {
	if err := h.tooltips.MarkSeen(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.logger.Error("Failed to persist tooltip state", "error", err)
	}
	response.NoContent(w)
}

func (h *NotificationHandler) ResetTooltips(w http.ResponseWriter, r *http.Request) {
	if err := h.tooltips.Reset(r.Context()); err != nil {
		h.logger.Error("Failed to reset tooltip state", "error", err)
	}
	response.NoContent(w)
}

// parseFilter reads type, priority, read, from and to query parameters
func parseFilter(r *http.Request) (model.Filter, error) {
	q := r.URL.Query()
	var f model.Filter

	if v := q.Get("type"); v != "" {
		t := model.Type(v)
		if !t.Valid() {
			return f, model.ErrInvalidType
		}
		f.Type = &t
	}
	if v := q.Get("priority"); v != "" {
		p := model.Priority(v)
		if !p.Valid() {
			return f, model.ErrInvalidPriority
		}
		f.Priority = &p
	}
	if v := q.Get("read"); v != "" {
		read, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("read must be a boolean")
		}
		f.Read = &read
	}

	from, to := q.Get("from"), q.Get("to")
	if from != "" || to != "" {
		var dr model.DateRange
		var err error
		if from != "" {
			if dr.Start, err = time.Parse(time.RFC3339, from); err != nil {
				return f, errors.New("from must be an RFC 3339 timestamp")
			}
		}
		if to != "" {
			if dr.End, err = time.Parse(time.RFC3339, to); err != nil {
				return f, errors.New("to must be an RFC 3339 timestamp")
			}
		}
		f.DateRange = &dr
	}

	return f, nil
}
