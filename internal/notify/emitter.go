package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/studenthub/internal/schedule"
)

// Budget thresholds, in percent of the monthly budget.
const (
	warningThreshold = 80
	warningReset     = 70
	alertThreshold   = 95
)

// sentRetention bounds how long reminder dedup entries are kept. Two days
// comfortably covers one occurrence window.
const sentRetention = 48 * time.Hour

type reminderKey struct {
	eventID string
	day     string // occurrence date, 2006-01-02
}

type budgetKey struct {
	userID string
	period string // budget month, 2006-01
}

// Emitter deduplicates and delivers notifications. Class and habit reminders
// are emitted at most once per (event, occurrence date); budget warnings use
// hysteresis so a lingering over-threshold state does not spam every sweep.
//
// Delivery and persistence are independent sinks: a delivery failure is
// logged, never blocks the persisted record, and never rolls back dedup or
// hysteresis state. A flapping delivery channel must not cause repeat storms.
type Emitter struct {
	mu      sync.Mutex
	store   Store
	sink    Sink
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
	sent    map[reminderKey]time.Time
	budgets map[budgetKey]bool // warning already sent for the period
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithClock overrides the emitter's time source.
func WithClock(now func() time.Time) EmitterOption {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides notification id generation.
func WithIDGenerator(newID func() string) EmitterOption {
	return func(e *Emitter) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) EmitterOption {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEmitter wires an emitter over a persistence store and a delivery sink.
func NewEmitter(store Store, sink Sink, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		store:   store,
		sink:    sink,
		now:     time.Now,
		newID:   func() string { return "" },
		logger:  slog.Default(),
		sent:    make(map[reminderKey]time.Time),
		budgets: make(map[budgetKey]bool),
	}
	if e.sink == nil {
		e.sink = NoopSink{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EmitReminder emits a class or habit reminder for one concrete occurrence.
// The second return reports whether a notification was actually emitted;
// redundant calls for the same (event, occurrence date) are no-ops.
func (e *Emitter) EmitReminder(ctx context.Context, event schedule.Event, occurrence time.Time) (Notification, bool, error) {
	key := reminderKey{eventID: event.ID, day: occurrence.Format("2006-01-02")}

	e.mu.Lock()
	e.pruneSentLocked()
	if _, dup := e.sent[key]; dup {
		e.mu.Unlock()
		return Notification{}, false, nil
	}
	// Recorded before delivery: a failed delivery still counts as notified.
	e.sent[key] = e.now()
	e.mu.Unlock()

	n := e.reminderNotification(event, occurrence)
	saved, err := e.dispatch(ctx, n)
	if err != nil {
		return Notification{}, true, err
	}
	return saved, true, nil
}

// BudgetStatus is the spend snapshot evaluated for threshold alerts.
type BudgetStatus struct {
	UserID string
	Spent  float64
	Total  float64
}

// EmitBudget applies the threshold policy to a budget snapshot. The 80%
// warning fires once and is suppressed until spend falls back below 70%. The
// 95% alert has no suppression and is re-reported on every evaluation while
// the condition holds.
func (e *Emitter) EmitBudget(ctx context.Context, status BudgetStatus) (*Notification, error) {
	if status.Total <= 0 {
		return nil, nil
	}
	pct := status.Spent / status.Total * 100

	key := budgetKey{userID: status.UserID, period: e.now().Format("2006-01")}

	e.mu.Lock()
	e.pruneBudgetsLocked(key.period)
	warned := e.budgets[key]

	var n Notification
	emit := false
	switch {
	case pct >= alertThreshold:
		n = budgetAlert(status, pct)
		emit = true
		e.budgets[key] = true
	case pct >= warningThreshold:
		if !warned {
			n = budgetWarning(status, pct)
			emit = true
			e.budgets[key] = true
		}
	case pct < warningReset:
		e.budgets[key] = false
	}
	e.mu.Unlock()

	if !emit {
		return nil, nil
	}

	saved, err := e.dispatch(ctx, n)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// Emit persists and delivers a notification without reminder dedup. Used for
// the daily schedule digest and other one-off announcements.
func (e *Emitter) Emit(ctx context.Context, n Notification) (Notification, error) {
	return e.dispatch(ctx, n)
}

func (e *Emitter) dispatch(ctx context.Context, n Notification) (Notification, error) {
	if n.ID == "" {
		n.ID = e.newID()
	}
	if n.SentAt.IsZero() {
		n.SentAt = e.now()
	}

	saved := n
	if e.store != nil {
		persisted, err := e.store.SaveNotification(ctx, n)
		if err != nil {
			return Notification{}, fmt.Errorf("save notification: %w", err)
		}
		saved = persisted
	}

	if err := e.sink.Deliver(ctx, saved.UserID, saved); err != nil {
		// Non-fatal: the record is persisted and dedup state stands.
		e.logger.WarnContext(ctx, "notification delivery failed",
			"user_id", saved.UserID, "type", saved.Type, "error", err)
	}

	return saved, nil
}

func (e *Emitter) reminderNotification(event schedule.Event, occurrence time.Time) Notification {
	at := occurrence.Format("15:04")
	switch event.Kind {
	case schedule.KindClass:
		message := fmt.Sprintf("Your %s class starts at %s", event.Title, at)
		if event.Room != "" {
			message = fmt.Sprintf("%s in room %s", message, event.Room)
		}
		return Notification{
			UserID:   event.UserID,
			Title:    fmt.Sprintf("Class Reminder: %s", event.Title),
			Message:  message,
			Type:     TypeClassReminder,
			Priority: PriorityHigh,
		}
	default:
		return Notification{
			UserID:   event.UserID,
			Title:    "Habit Reminder",
			Message:  fmt.Sprintf("Time for: %s", event.Title),
			Type:     TypeHabitReminder,
			Priority: PriorityMedium,
		}
	}
}

func budgetWarning(status BudgetStatus, pct float64) Notification {
	return Notification{
		UserID:   status.UserID,
		Title:    "Budget Warning",
		Message:  fmt.Sprintf("You've spent %.1f%% of your monthly budget (%.2f of %.2f). Consider slowing down.", pct, status.Spent, status.Total),
		Type:     TypeBudgetAlert,
		Priority: PriorityHigh,
	}
}

func budgetAlert(status BudgetStatus, pct float64) Notification {
	return Notification{
		UserID:   status.UserID,
		Title:    "Budget Exceeded!",
		Message:  fmt.Sprintf("You've spent %.1f%% of your monthly budget (%.2f of %.2f).", pct, status.Spent, status.Total),
		Type:     TypeBudgetAlert,
		Priority: PriorityUrgent,
	}
}

func (e *Emitter) pruneSentLocked() {
	cutoff := e.now().Add(-sentRetention)
	for key, at := range e.sent {
		if at.Before(cutoff) {
			delete(e.sent, key)
		}
	}
}

// pruneBudgetsLocked drops hysteresis flags from earlier budget periods.
func (e *Emitter) pruneBudgetsLocked(period string) {
	for key := range e.budgets {
		if key.period != period {
			delete(e.budgets, key)
		}
	}
}
