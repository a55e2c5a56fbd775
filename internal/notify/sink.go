package notify

import (
	"context"
	"log/slog"
)

// Store persists notification records. Implemented by the SQLite store.
type Store interface {
	SaveNotification(ctx context.Context, n Notification) (Notification, error)
}

// Sink presents a notification to the end user. Implementations may fail
// silently (for example when the user never granted browser notification
// permission); the emitter treats any failure as non-fatal.
type Sink interface {
	Deliver(ctx context.Context, userID string, n Notification) error
}

// NoopSink is the delivery variant for environments without a user-facing
// channel. Deliveries succeed without surfacing anything.
type NoopSink struct{}

func (NoopSink) Deliver(context.Context, string, Notification) error { return nil }

// LogSink surfaces notifications on the process log. Used as the server-side
// stand-in for a user-facing channel.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(ctx context.Context, userID string, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification delivered",
		"user_id", userID,
		"type", n.Type,
		"priority", n.Priority,
		"title", n.Title,
	)
	return nil
}
