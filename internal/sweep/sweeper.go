package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/studenthub/internal/notify"
	"github.com/example/studenthub/internal/schedule"
)

// Cadence identifies one of the fixed server-side sweep intervals.
type Cadence string

const (
	// CadenceMinute re-checks habit reminders every minute.
	CadenceMinute Cadence = "minute"
	// CadenceFiveMinute checks for classes starting in exactly one hour.
	CadenceFiveMinute Cadence = "five_minute"
	// CadenceHourly re-evaluates budget thresholds.
	CadenceHourly Cadence = "hourly"
	// CadenceDaily sends the next-day schedule digest.
	CadenceDaily Cadence = "daily"
)

// The habit sweep fires while 25 to 30 minutes remain, inclusive. The class
// sweep fires only when exactly 60 minutes remain; the 5-minute cadence makes
// the exact match reachable but it stays fragile against drift, so the
// boundary is pinned by tests rather than silently widened.
const (
	habitWindowMin    = 25
	habitWindowMax    = 30
	classLeadMinutes  = 60
	defaultDigestHour = 23
)

// ErrSweepInFlight reports that a run of the same cadence is still executing.
// Overlapping runs are skipped, not queued.
var ErrSweepInFlight = errors.New("sweep: cadence already running")

// ErrUnknownCadence reports an unrecognised cadence label.
var ErrUnknownCadence = errors.New("sweep: unknown cadence")

// EventSource supplies the event snapshots a sweep evaluates.
type EventSource interface {
	ListUserIDs(ctx context.Context) ([]string, error)
	ListActiveEventsForUser(ctx context.Context, userID string) ([]schedule.Event, error)
}

// BudgetSnapshot is the monthly spend position for one user. A zero Total
// means no budget is configured.
type BudgetSnapshot struct {
	TotalBudget    float64
	SpentThisMonth float64
}

// BudgetSource supplies budget positions for the hourly threshold sweep.
type BudgetSource interface {
	GetCurrentBudget(ctx context.Context, userID string) (BudgetSnapshot, error)
}

// Notifier is the emitter capability the sweeper depends on. *notify.Emitter
// satisfies it.
type Notifier interface {
	EmitReminder(ctx context.Context, event schedule.Event, occurrence time.Time) (notify.Notification, bool, error)
	EmitBudget(ctx context.Context, status notify.BudgetStatus) (*notify.Notification, error)
	Emit(ctx context.Context, n notify.Notification) (notify.Notification, error)
}

// Sweeper drives server-side evaluation independent of any client session.
// The four cadences run on independent cron entries and may overlap each
// other, but never themselves: each cadence carries an in-flight guard.
type Sweeper struct {
	events     EventSource
	budgets    BudgetSource
	emitter    Notifier
	now        func() time.Time
	loc        *time.Location
	logger     *slog.Logger
	digestHour int
	inflight   map[Cadence]*atomic.Bool
	cron       *cron.Cron
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithClock overrides the sweep time source.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the timezone sweeps evaluate wall-clock time in.
func WithLocation(loc *time.Location) SweeperOption {
	return func(s *Sweeper) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDigestHour moves the daily digest away from the default 23:00 local.
func WithDigestHour(hour int) SweeperOption {
	return func(s *Sweeper) {
		if hour >= 0 && hour <= 23 {
			s.digestHour = hour
		}
	}
}

// NewSweeper wires a sweeper over its data sources and the emitter.
func NewSweeper(events EventSource, budgets BudgetSource, emitter Notifier, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		events:     events,
		budgets:    budgets,
		emitter:    emitter,
		now:        time.Now,
		loc:        time.Local,
		logger:     slog.Default(),
		digestHour: defaultDigestHour,
		inflight: map[Cadence]*atomic.Bool{
			CadenceMinute:     {},
			CadenceFiveMinute: {},
			CadenceHourly:     {},
			CadenceDaily:      {},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the cron entries and begins ticking. Idempotent start is
// not supported; callers own the start/stop lifecycle.
func (s *Sweeper) Start() error {
	if s.cron != nil {
		return errors.New("sweep: already started")
	}

	c := cron.New(cron.WithLocation(s.loc))
	entries := []struct {
		spec    string
		cadence Cadence
	}{
		{"* * * * *", CadenceMinute},
		{"*/5 * * * *", CadenceFiveMinute},
		{"0 * * * *", CadenceHourly},
		{fmt.Sprintf("0 %d * * *", s.digestHour), CadenceDaily},
	}
	for _, entry := range entries {
		cadence := entry.cadence
		if _, err := c.AddFunc(entry.spec, func() {
			if err := s.RunSweep(context.Background(), cadence); err != nil && !errors.Is(err, ErrSweepInFlight) {
				s.logger.Error("sweep failed", "cadence", string(cadence), "error", err)
			}
		}); err != nil {
			return fmt.Errorf("register %s sweep: %w", cadence, err)
		}
	}

	s.cron = c
	c.Start()
	s.logger.Info("sweep scheduler started", "digest_hour", s.digestHour, "timezone", s.loc.String())
	return nil
}

// Stop halts the cron schedule and waits for in-flight sweeps to finish, so
// teardown is complete from the caller's perspective when it returns.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info("sweep scheduler stopped")
}

// RunSweep executes one pass of the given cadence against the injected clock.
// A second run of the same cadence while one is executing returns
// ErrSweepInFlight. Failures for one user are logged and never abort the pass
// for the others.
func (s *Sweeper) RunSweep(ctx context.Context, cadence Cadence) error {
	guard, ok := s.inflight[cadence]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCadence, cadence)
	}
	if !guard.CompareAndSwap(false, true) {
		return ErrSweepInFlight
	}
	defer guard.Store(false)

	now := s.now().In(s.loc)

	switch cadence {
	case CadenceMinute:
		return s.forEachUser(ctx, "habit reminders", func(ctx context.Context, userID string, events []schedule.Event) error {
			return s.sweepHabits(ctx, events, now)
		})
	case CadenceFiveMinute:
		return s.forEachUser(ctx, "upcoming classes", func(ctx context.Context, userID string, events []schedule.Event) error {
			return s.sweepClasses(ctx, events, now)
		})
	case CadenceHourly:
		return s.sweepBudgets(ctx)
	case CadenceDaily:
		return s.forEachUser(ctx, "schedule digest", func(ctx context.Context, userID string, events []schedule.Event) error {
			return s.sweepDigest(ctx, userID, events, now)
		})
	}
	return fmt.Errorf("%w: %q", ErrUnknownCadence, cadence)
}

// forEachUser iterates user snapshots with per-item isolation: a failing data
// source for one user is treated as "no events this tick" for that user only.
func (s *Sweeper) forEachUser(ctx context.Context, name string, fn func(ctx context.Context, userID string, events []schedule.Event) error) error {
	userIDs, err := s.events.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	for _, userID := range userIDs {
		events, err := s.events.ListActiveEventsForUser(ctx, userID)
		if err != nil {
			s.logger.Warn("skipping user in sweep", "sweep", name, "user_id", userID, "error", err)
			continue
		}
		if err := fn(ctx, userID, events); err != nil {
			s.logger.Warn("sweep iteration failed", "sweep", name, "user_id", userID, "error", err)
		}
	}
	return nil
}

// sweepHabits emits a reminder for every habit due in 25 to 30 minutes.
// Monthly habits are excluded here; their reminders come from the local
// scheduler's explicit arm cycle.
func (s *Sweeper) sweepHabits(ctx context.Context, events []schedule.Event, now time.Time) error {
	habits := make([]schedule.Event, 0, len(events))
	for _, event := range events {
		if event.Kind != schedule.KindHabit || !event.ReminderEnabled || event.StartTime == "" {
			continue
		}
		if event.Frequency == schedule.FrequencyMonthly {
			continue
		}
		habits = append(habits, event)
	}

	states, invalid := schedule.Evaluate(habits, now)
	s.logInvalid(invalid)

	byID := eventsByID(habits)
	for _, state := range states {
		if state.Status != schedule.StatusDue {
			continue
		}
		if state.MinutesUntil < habitWindowMin || state.MinutesUntil > habitWindowMax {
			continue
		}
		event := byID[state.EventID]
		occurrence, err := schedule.StartOnDay(event, now)
		if err != nil {
			continue
		}
		if _, _, err := s.emitter.EmitReminder(ctx, event, occurrence); err != nil {
			s.logger.Warn("habit reminder emission failed", "event_id", event.ID, "error", err)
		}
	}
	return nil
}

// sweepClasses emits a reminder for classes starting in exactly one hour.
func (s *Sweeper) sweepClasses(ctx context.Context, events []schedule.Event, now time.Time) error {
	for _, event := range events {
		if event.Kind != schedule.KindClass {
			continue
		}
		if !schedule.OccursToday(event, now) {
			continue
		}
		minutes, err := schedule.MinutesUntilStart(event, now)
		if err != nil {
			s.logger.Warn("skipping event with malformed time", "event_id", event.ID, "error", err)
			continue
		}
		if minutes != classLeadMinutes {
			continue
		}
		occurrence, err := schedule.StartOnDay(event, now)
		if err != nil {
			continue
		}
		if _, _, err := s.emitter.EmitReminder(ctx, event, occurrence); err != nil {
			s.logger.Warn("class reminder emission failed", "event_id", event.ID, "error", err)
		}
	}
	return nil
}

// sweepBudgets re-checks every user's monthly spend against the thresholds.
func (s *Sweeper) sweepBudgets(ctx context.Context) error {
	userIDs, err := s.events.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	for _, userID := range userIDs {
		snapshot, err := s.budgets.GetCurrentBudget(ctx, userID)
		if err != nil {
			s.logger.Warn("skipping user in budget sweep", "user_id", userID, "error", err)
			continue
		}
		status := notify.BudgetStatus{
			UserID: userID,
			Spent:  snapshot.SpentThisMonth,
			Total:  snapshot.TotalBudget,
		}
		if _, err := s.emitter.EmitBudget(ctx, status); err != nil {
			s.logger.Warn("budget alert emission failed", "user_id", userID, "error", err)
		}
	}
	return nil
}

// sweepDigest announces tomorrow's class list for users who have one.
func (s *Sweeper) sweepDigest(ctx context.Context, userID string, events []schedule.Event, now time.Time) error {
	tomorrow := now.AddDate(0, 0, 1)

	type meeting struct {
		title string
		start string
	}
	meetings := make([]meeting, 0)
	for _, event := range events {
		if event.Kind != schedule.KindClass || !schedule.OccursToday(event, tomorrow) {
			continue
		}
		if _, err := schedule.ParseClock(event.StartTime); err != nil {
			s.logger.Warn("skipping event with malformed time", "event_id", event.ID, "error", err)
			continue
		}
		meetings = append(meetings, meeting{title: event.Title, start: event.StartTime})
	}
	if len(meetings) == 0 {
		return nil
	}

	sort.Slice(meetings, func(i, j int) bool {
		if meetings[i].start == meetings[j].start {
			return meetings[i].title < meetings[j].title
		}
		return meetings[i].start < meetings[j].start
	})

	lines := make([]string, 0, len(meetings))
	for _, m := range meetings {
		lines = append(lines, fmt.Sprintf("- %s at %s", m.title, m.start))
	}

	_, err := s.emitter.Emit(ctx, notify.Notification{
		UserID:   userID,
		Title:    "Tomorrow's Class Schedule",
		Message:  fmt.Sprintf("You have %d class(es) tomorrow:\n%s", len(meetings), strings.Join(lines, "\n")),
		Type:     notify.TypeClassReminder,
		Priority: notify.PriorityMedium,
	})
	return err
}

func (s *Sweeper) logInvalid(invalid []schedule.InvalidEvent) {
	for _, item := range invalid {
		s.logger.Warn("skipping event with malformed time", "event_id", item.EventID, "error", item.Err)
	}
}

func eventsByID(events []schedule.Event) map[string]schedule.Event {
	byID := make(map[string]schedule.Event, len(events))
	for _, event := range events {
		byID[event.ID] = event
	}
	return byID
}
