package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/example/studenthub/internal/application"
	"github.com/example/studenthub/internal/notify"
)

// SaveNotification appends a notification record. Implements notify.Store.
func (s *Store) SaveNotification(ctx context.Context, n notify.Notification) (notify.Notification, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, title, message, type, priority, sent_at, read)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Message, n.Type, n.Priority,
		formatTime(n.SentAt), boolToInt(n.Read))
	if err != nil {
		return notify.Notification{}, mapError(err)
	}
	return n, nil
}

// ListNotificationsByUser returns a user's notifications newest first.
func (s *Store) ListNotificationsByUser(ctx context.Context, userID string, limit, offset int) ([]notify.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, message, type, priority, sent_at, read
		 FROM notifications WHERE user_id = ?
		 ORDER BY sent_at DESC, id DESC LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	notifications := make([]notify.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// CountUnreadNotifications counts a user's unread notifications.
func (s *Store) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = 0`, userID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

// GetNotification retrieves a notification by id.
func (s *Store) GetNotification(ctx context.Context, id string) (notify.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, message, type, priority, sent_at, read
		 FROM notifications WHERE id = ?`, id)
	if err != nil {
		return notify.Notification{}, mapError(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return notify.Notification{}, err
		}
		return notify.Notification{}, application.ErrNotFound
	}
	return scanNotification(rows)
}

// MarkNotificationRead marks one notification read.
func (s *Store) MarkNotificationRead(ctx context.Context, id string, _ time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return application.ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification of a user read.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string, _ time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0`, userID)
	return mapError(err)
}

func scanNotification(scanner rowScanner) (notify.Notification, error) {
	var (
		n      notify.Notification
		sentAt string
		read   int
	)
	err := scanner.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Priority, &sentAt, &read)
	if err != nil {
		return notify.Notification{}, mapError(err)
	}
	if n.SentAt, err = parseTime(sentAt); err != nil {
		return notify.Notification{}, fmt.Errorf("parse sent_at: %w", err)
	}
	n.Read = read != 0
	return n, nil
}
