package reminder

import (
	"log/slog"
	"sync"
	"time"

	"github.com/example/studenthub/internal/schedule"
)

// Lead times applied before an occurrence's start when computing fire instants.
const (
	// HabitLead fires habit reminders 25 minutes ahead of the habit time.
	HabitLead = 25 * time.Minute
	// ClassLead fires class triggers at the start instant itself.
	ClassLead = 0
)

// EmitFunc receives the event and the concrete occurrence start that a fired
// reminder refers to.
type EmitFunc func(event schedule.Event, occurrence time.Time)

// Timer is the minimal surface the scheduler needs from an armed timer.
// *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// TimerFactory arms a one-shot timer. Injectable so tests can fire timers
// deterministically instead of sleeping.
type TimerFactory func(d time.Duration, fn func()) Timer

type timerState int

const (
	stateArmed timerState = iota
	stateFired
	stateCanceled
)

// pending tracks one armed reminder. Invariant: at most one pending entry per
// event id, enforced by arming through cancelLocked.
type pending struct {
	event      schedule.Event
	fireAt     time.Time
	occurrence time.Time
	timer      Timer
	state      timerState
}

// Scheduler owns a per-process reminder timer table keyed by event id. A
// logical reminder is a chain of one-shot timers: each fire re-arms for the
// next occurrence so the lead offset is recomputed against that occurrence's
// date rather than a fixed period.
type Scheduler struct {
	mu       sync.Mutex
	now      func() time.Time
	newTimer TimerFactory
	emit     EmitFunc
	logger   *slog.Logger
	timers   map[string]*pending
	stopped  bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTimerFactory overrides how one-shot timers are created.
func WithTimerFactory(factory TimerFactory) Option {
	return func(s *Scheduler) {
		if factory != nil {
			s.newTimer = factory
		}
	}
}

// WithLogger attaches a logger for skipped and malformed events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScheduler wires a reminder scheduler around the given emitter callback.
func NewScheduler(emit EmitFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		now: time.Now,
		newTimer: func(d time.Duration, fn func()) Timer {
			return time.AfterFunc(d, fn)
		},
		emit:   emit,
		logger: slog.Default(),
		timers: make(map[string]*pending),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm computes the event's next fire instant and schedules a one-shot timer
// for it, replacing any prior timer for the same id. A fire instant equal to
// now fires immediately. Monthly habits whose instant has passed are not
// rescheduled; they require an explicit re-arm next cycle.
func (s *Scheduler) Arm(event schedule.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.armLocked(event, s.now())
}

// ArmAll arms every event in the snapshot.
func (s *Scheduler) ArmAll(events []schedule.Event) {
	for _, event := range events {
		s.Arm(event)
	}
}

// Update replaces the reminder state for a changed event. Equivalent to
// cancel-then-arm; the prior timer can never double-fire.
func (s *Scheduler) Update(event schedule.Event) {
	s.Arm(event)
}

// Cancel stops and removes the pending timer for the id. Canceling an unknown
// or already-fired id is a no-op.
func (s *Scheduler) Cancel(eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(eventID)
}

// Stop cancels every pending timer and rejects further arming. Teardown is
// all-or-nothing: after Stop returns no timer fires again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id := range s.timers {
		s.cancelLocked(id)
	}
}

// Pending reports the scheduled fire instant for an event id, if any.
func (s *Scheduler) Pending(eventID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.timers[eventID]
	if !ok || entry.state != stateArmed {
		return time.Time{}, false
	}
	return entry.fireAt, true
}

// PendingCount reports how many timers are currently armed.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// armLocked searches for the next occurrence at or after searchRef; the timer
// delay is always computed against the wall clock.
func (s *Scheduler) armLocked(event schedule.Event, searchRef time.Time) {
	s.cancelLocked(event.ID)

	fireAt, occurrence, ok, err := nextFire(event, searchRef)
	if err != nil {
		s.logger.Warn("skipping reminder with malformed time", "event_id", event.ID, "error", err)
		return
	}
	if !ok {
		return
	}

	delay := fireAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	entry := &pending{event: event, fireAt: fireAt, occurrence: occurrence, state: stateArmed}
	entry.timer = s.newTimer(delay, func() { s.onFire(event.ID, fireAt) })
	s.timers[event.ID] = entry
}

func (s *Scheduler) cancelLocked(eventID string) {
	entry, ok := s.timers[eventID]
	if !ok {
		return
	}
	entry.state = stateCanceled
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(s.timers, eventID)
}

// onFire runs in the timer goroutine. The fireAt guard drops callbacks from
// timers that were replaced or canceled between scheduling and firing.
func (s *Scheduler) onFire(eventID string, fireAt time.Time) {
	s.mu.Lock()
	entry, ok := s.timers[eventID]
	if !ok || entry.state != stateArmed || !entry.fireAt.Equal(fireAt) {
		s.mu.Unlock()
		return
	}
	entry.state = stateFired
	delete(s.timers, eventID)
	event, occurrence := entry.event, entry.occurrence
	stopped := s.stopped
	s.mu.Unlock()

	if stopped {
		return
	}

	if s.emit != nil {
		s.emit(event, occurrence)
	}

	// Re-arm for the occurrence after the one that just fired.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if _, exists := s.timers[eventID]; exists {
		// The event was re-armed concurrently (for example by Update); that
		// timer wins and the chain continues from it.
		return
	}
	s.armLocked(event, occurrence.Add(time.Minute))
}

// nextFire resolves the first fire instant at or after ref, together with the
// occurrence start it announces. ok is false when the event has no further
// occurrence to schedule (monthly roll-over, or a class with no timetable
// days).
func nextFire(event schedule.Event, ref time.Time) (time.Time, time.Time, bool, error) {
	switch event.Kind {
	case schedule.KindClass:
		return nextClassFire(event, ref)
	default:
		return nextHabitFire(event, ref)
	}
}

func nextClassFire(event schedule.Event, ref time.Time) (time.Time, time.Time, bool, error) {
	for i := 0; i < 8; i++ {
		day := ref.AddDate(0, 0, i)
		if !schedule.OccursToday(event, day) {
			continue
		}
		start, err := schedule.StartOnDay(event, day)
		if err != nil {
			return time.Time{}, time.Time{}, false, err
		}
		fire := start.Add(-ClassLead)
		if fire.Before(ref) {
			continue
		}
		return fire, start, true, nil
	}
	return time.Time{}, time.Time{}, false, nil
}

func nextHabitFire(event schedule.Event, ref time.Time) (time.Time, time.Time, bool, error) {
	start, err := schedule.StartOnDay(event, ref)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	fire := start.Add(-HabitLead)
	if fire.Before(ref) {
		switch event.Frequency {
		case schedule.FrequencyDaily:
			fire = fire.AddDate(0, 0, 1)
			start = start.AddDate(0, 0, 1)
		case schedule.FrequencyWeekly:
			fire = fire.AddDate(0, 0, 7)
			start = start.AddDate(0, 0, 7)
		default:
			// Monthly habits missed today are not rolled to next month.
			return time.Time{}, time.Time{}, false, nil
		}
	}
	return fire, start, true, nil
}
