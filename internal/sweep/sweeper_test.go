package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/studenthub/internal/notify"
	"github.com/example/studenthub/internal/schedule"
)

type reminderCall struct {
	eventID    string
	occurrence time.Time
}

type notifierSpy struct {
	mu        sync.Mutex
	reminders []reminderCall
	budgets   []notify.BudgetStatus
	emitted   []notify.Notification
}

func (n *notifierSpy) EmitReminder(_ context.Context, event schedule.Event, occurrence time.Time) (notify.Notification, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders = append(n.reminders, reminderCall{eventID: event.ID, occurrence: occurrence})
	return notify.Notification{}, true, nil
}

func (n *notifierSpy) EmitBudget(_ context.Context, status notify.BudgetStatus) (*notify.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.budgets = append(n.budgets, status)
	return nil, nil
}

func (n *notifierSpy) Emit(_ context.Context, msg notify.Notification) (notify.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emitted = append(n.emitted, msg)
	return msg, nil
}

func (n *notifierSpy) reminderIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]string, 0, len(n.reminders))
	for _, call := range n.reminders {
		ids = append(ids, call.eventID)
	}
	return ids
}

type fakeEvents struct {
	users   []string
	events  map[string][]schedule.Event
	failFor map[string]error
	entered chan struct{} // when set, signalled on every ListUserIDs call
	release chan struct{} // when set, ListUserIDs blocks until closed
}

func (f *fakeEvents) ListUserIDs(context.Context) ([]string, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.users, nil
}

func (f *fakeEvents) ListActiveEventsForUser(_ context.Context, userID string) ([]schedule.Event, error) {
	if err := f.failFor[userID]; err != nil {
		return nil, err
	}
	return f.events[userID], nil
}

type fakeBudgets struct {
	snapshots map[string]BudgetSnapshot
	failFor   map[string]error
}

func (f *fakeBudgets) GetCurrentBudget(_ context.Context, userID string) (BudgetSnapshot, error) {
	if err := f.failFor[userID]; err != nil {
		return BudgetSnapshot{}, err
	}
	return f.snapshots[userID], nil
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func habitAt(id, start string) schedule.Event {
	return schedule.Event{
		ID:              id,
		UserID:          "user-1",
		Kind:            schedule.KindHabit,
		Title:           id,
		Frequency:       schedule.FrequencyDaily,
		StartTime:       start,
		ReminderEnabled: true,
	}
}

func TestMinuteSweepFiresInsideHabitWindow(t *testing.T) {
	// Monday 2024-05-06 09:00 UTC.
	now := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	completed := now.Add(-2 * time.Hour)
	outside := habitAt("h-24", "09:24")
	lower := habitAt("h-25", "09:25")
	upper := habitAt("h-30", "09:30")
	past := habitAt("h-31", "09:31")
	disabled := habitAt("h-off", "09:27")
	disabled.ReminderEnabled = false
	done := habitAt("h-done", "09:28")
	done.LastCompletedAt = &completed
	monthly := habitAt("h-monthly", "09:26")
	monthly.Frequency = schedule.FrequencyMonthly
	monthly.CreatedAt = time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)

	spy := &notifierSpy{}
	s := NewSweeper(
		&fakeEvents{
			users:  []string{"user-1"},
			events: map[string][]schedule.Event{"user-1": {outside, lower, upper, past, disabled, done, monthly}},
		},
		&fakeBudgets{},
		spy,
		WithClock(fixedClock(now)),
		WithLocation(time.UTC),
	)

	if err := s.RunSweep(context.Background(), CadenceMinute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := spy.reminderIDs()
	want := map[string]bool{"h-25": true, "h-30": true}
	if len(got) != len(want) {
		t.Fatalf("expected reminders for %v, got %v", want, got)
	}
	for _, id := range got {
		if !want[id] {
			t.Fatalf("unexpected reminder for %s (all: %v)", id, got)
		}
	}
}

func TestFiveMinuteSweepFiresAtExactlySixtyMinutes(t *testing.T) {
	// Monday 2024-05-06 09:00 UTC.
	now := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	class := func(id, start string, day time.Weekday) schedule.Event {
		return schedule.Event{
			ID:        id,
			UserID:    "user-1",
			Kind:      schedule.KindClass,
			Title:     id,
			Days:      []time.Weekday{day},
			StartTime: start,
			EndTime:   "23:00",
		}
	}

	spy := &notifierSpy{}
	s := NewSweeper(
		&fakeEvents{
			users: []string{"user-1"},
			events: map[string][]schedule.Event{"user-1": {
				class("c-59", "09:59", time.Monday),
				class("c-60", "10:00", time.Monday),
				class("c-61", "10:01", time.Monday),
				class("c-wrong-day", "10:00", time.Tuesday),
			}},
		},
		&fakeBudgets{},
		spy,
		WithClock(fixedClock(now)),
		WithLocation(time.UTC),
	)

	if err := s.RunSweep(context.Background(), CadenceFiveMinute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := spy.reminderIDs()
	if len(got) != 1 || got[0] != "c-60" {
		t.Fatalf("expected only c-60 to fire, got %v", got)
	}
	if fire := spy.reminders[0].occurrence; !fire.Equal(time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("occurrence should be the class start instant, got %v", fire)
	}
}

func TestHourlySweepEvaluatesEveryBudget(t *testing.T) {
	spy := &notifierSpy{}
	s := NewSweeper(
		&fakeEvents{users: []string{"user-1", "user-2", "user-3"}},
		&fakeBudgets{
			snapshots: map[string]BudgetSnapshot{
				"user-1": {TotalBudget: 100, SpentThisMonth: 82},
				"user-3": {TotalBudget: 200, SpentThisMonth: 10},
			},
			failFor: map[string]error{"user-2": errors.New("db gone")},
		},
		spy,
		WithClock(fixedClock(time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC))),
		WithLocation(time.UTC),
	)

	if err := s.RunSweep(context.Background(), CadenceHourly); err != nil {
		t.Fatalf("a failing user must not abort the sweep: %v", err)
	}
	if len(spy.budgets) != 2 {
		t.Fatalf("expected budgets for the two reachable users, got %d", len(spy.budgets))
	}
	if spy.budgets[0].UserID != "user-1" || spy.budgets[0].Spent != 82 {
		t.Fatalf("unexpected first snapshot: %+v", spy.budgets[0])
	}
}

func TestDailySweepBuildsTomorrowDigest(t *testing.T) {
	// Monday 23:00; the digest covers Tuesday.
	now := time.Date(2024, 5, 6, 23, 0, 0, 0, time.UTC)
	events := []schedule.Event{
		{ID: "c-1", UserID: "user-1", Kind: schedule.KindClass, Title: "Databases",
			Days: []time.Weekday{time.Tuesday}, StartTime: "14:00", EndTime: "16:00"},
		{ID: "c-2", UserID: "user-1", Kind: schedule.KindClass, Title: "Algorithms",
			Days: []time.Weekday{time.Tuesday}, StartTime: "09:00", EndTime: "10:00"},
		{ID: "c-3", UserID: "user-1", Kind: schedule.KindClass, Title: "Compilers",
			Days: []time.Weekday{time.Wednesday}, StartTime: "11:00", EndTime: "12:00"},
	}

	spy := &notifierSpy{}
	s := NewSweeper(
		&fakeEvents{
			users:  []string{"user-1", "user-2"},
			events: map[string][]schedule.Event{"user-1": events},
		},
		&fakeBudgets{},
		spy,
		WithClock(fixedClock(now)),
		WithLocation(time.UTC),
	)

	if err := s.RunSweep(context.Background(), CadenceDaily); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(spy.emitted) != 1 {
		t.Fatalf("only the user with classes tomorrow gets a digest, got %d", len(spy.emitted))
	}
	digest := spy.emitted[0]
	if digest.UserID != "user-1" || digest.Type != notify.TypeClassReminder || digest.Priority != notify.PriorityMedium {
		t.Fatalf("unexpected digest envelope: %+v", digest)
	}
	if digest.Title != "Tomorrow's Class Schedule" {
		t.Fatalf("unexpected digest title: %q", digest.Title)
	}
	want := "You have 2 class(es) tomorrow:\n- Algorithms at 09:00\n- Databases at 14:00"
	if digest.Message != want {
		t.Fatalf("digest message:\n got %q\nwant %q", digest.Message, want)
	}
}

func TestRunSweepIsolatesFailingUsers(t *testing.T) {
	now := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	spy := &notifierSpy{}
	s := NewSweeper(
		&fakeEvents{
			users:   []string{"user-broken", "user-ok"},
			events:  map[string][]schedule.Event{"user-ok": {habitAt("h-25", "09:25")}},
			failFor: map[string]error{"user-broken": errors.New("db gone")},
		},
		&fakeBudgets{},
		spy,
		WithClock(fixedClock(now)),
		WithLocation(time.UTC),
	)

	if err := s.RunSweep(context.Background(), CadenceMinute); err != nil {
		t.Fatalf("one broken user must not fail the pass: %v", err)
	}
	if got := spy.reminderIDs(); len(got) != 1 || got[0] != "h-25" {
		t.Fatalf("healthy user should still be swept, got %v", got)
	}
}

func TestRunSweepRejectsOverlappingRuns(t *testing.T) {
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	events := &fakeEvents{users: []string{"user-1"}, entered: entered, release: release}
	s := NewSweeper(events, &fakeBudgets{}, &notifierSpy{}, WithLocation(time.UTC))

	done := make(chan error, 1)
	go func() {
		done <- s.RunSweep(context.Background(), CadenceMinute)
	}()

	// The guard is held once the first run reaches its data source.
	<-entered
	if err := s.RunSweep(context.Background(), CadenceMinute); !errors.Is(err, ErrSweepInFlight) {
		t.Fatalf("expected ErrSweepInFlight, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run should complete cleanly: %v", err)
	}

	// The guard is per cadence and released after the run.
	if err := s.RunSweep(context.Background(), CadenceMinute); err != nil {
		t.Fatalf("guard must be released after the run: %v", err)
	}
	if err := s.RunSweep(context.Background(), CadenceHourly); err != nil {
		t.Fatalf("a different cadence must not be blocked: %v", err)
	}
}

func TestRunSweepUnknownCadence(t *testing.T) {
	s := NewSweeper(&fakeEvents{}, &fakeBudgets{}, &notifierSpy{})
	if err := s.RunSweep(context.Background(), Cadence("weekly")); !errors.Is(err, ErrUnknownCadence) {
		t.Fatalf("expected ErrUnknownCadence, got %v", err)
	}
}
