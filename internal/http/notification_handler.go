package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/studenthub/internal/application"
	"github.com/example/studenthub/internal/notify"
)

type notificationService interface {
	List(ctx context.Context, params application.ListNotificationsParams) ([]notify.Notification, error)
	UnreadCount(ctx context.Context, principal application.Principal) (int, error)
	MarkRead(ctx context.Context, principal application.Principal, notificationID string) error
	MarkAllRead(ctx context.Context, principal application.Principal) error
}

// NotificationHandler serves the notification inbox endpoints.
type NotificationHandler struct {
	service   notificationService
	responder responder
}

// NewNotificationHandler wires the handler.
func NewNotificationHandler(service notificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{service: service, responder: newResponder(logger)}
}

type notificationDTO struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Type     string    `json:"type"`
	Priority string    `json:"priority"`
	SentAt   time.Time `json:"sent_at"`
	Read     bool      `json:"read"`
}

func toNotificationDTO(n notify.Notification) notificationDTO {
	return notificationDTO{
		ID:       n.ID,
		Title:    n.Title,
		Message:  n.Message,
		Type:     n.Type,
		Priority: n.Priority,
		SentAt:   n.SentAt,
		Read:     n.Read,
	}
}

// List handles GET /notifications.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	notifications, err := h.service.List(r.Context(), application.ListNotificationsParams{
		Principal: principal,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]notificationDTO, 0, len(notifications))
	for _, n := range notifications {
		dtos = append(dtos, toNotificationDTO(n))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string][]notificationDTO{"notifications": dtos})
}

// UnreadCount handles GET /notifications/unread-count.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	count, err := h.service.UnreadCount(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]int{"unread": count})
}

// MarkRead handles POST /notifications/{id}/read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	notificationID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(notificationID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.MarkRead(r.Context(), principal, notificationID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// MarkAllRead handles POST /notifications/read-all.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.MarkAllRead(r.Context(), principal); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}
