package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/studenthub/internal/notify"
)

// NotificationRepository captures the persistence interactions needed by the
// service. Records are created only by the notification emitter; this side is
// read and mark-read only.
type NotificationRepository interface {
	ListNotificationsByUser(ctx context.Context, userID string, limit, offset int) ([]notify.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	GetNotification(ctx context.Context, id string) (notify.Notification, error)
	MarkNotificationRead(ctx context.Context, id string, readAt time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID string, readAt time.Time) error
}

// ListNotificationsParams wraps pagination for notification listings.
type ListNotificationsParams struct {
	Principal Principal
	Limit     int
	Offset    int
}

const defaultNotificationPageSize = 50

// NotificationService exposes the read side of persisted notifications.
type NotificationService struct {
	notifications NotificationRepository
	now           func() time.Time
	logger        *slog.Logger
}

// NewNotificationService wires dependencies for notification queries.
func NewNotificationService(notifications NotificationRepository, now func() time.Time, logger *slog.Logger) *NotificationService {
	if now == nil {
		now = time.Now
	}
	return &NotificationService{
		notifications: notifications,
		now:           now,
		logger:        defaultLogger(logger),
	}
}

// List returns the principal's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, params ListNotificationsParams) ([]notify.Notification, error) {
	if s == nil {
		return nil, fmt.Errorf("NotificationService is nil")
	}
	limit := params.Limit
	if limit <= 0 || limit > defaultNotificationPageSize {
		limit = defaultNotificationPageSize
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	return s.notifications.ListNotificationsByUser(ctx, params.Principal.UserID, limit, offset)
}

// UnreadCount returns the number of unread notifications for the principal.
func (s *NotificationService) UnreadCount(ctx context.Context, principal Principal) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("NotificationService is nil")
	}
	return s.notifications.CountUnreadNotifications(ctx, principal.UserID)
}

// MarkRead marks one notification read after an ownership check.
func (s *NotificationService) MarkRead(ctx context.Context, principal Principal, notificationID string) error {
	if s == nil {
		return fmt.Errorf("NotificationService is nil")
	}

	existing, err := s.notifications.GetNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if existing.UserID != principal.UserID {
		return ErrUnauthorized
	}
	if existing.Read {
		return nil
	}
	return s.notifications.MarkNotificationRead(ctx, notificationID, s.now())
}

// MarkAllRead marks every unread notification of the principal as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, principal Principal) error {
	if s == nil {
		return fmt.Errorf("NotificationService is nil")
	}
	return s.notifications.MarkAllNotificationsRead(ctx, principal.UserID, s.now())
}
