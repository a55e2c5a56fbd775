package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/studenthub/internal/schedule"
)

type memoryStore struct {
	saved []Notification
	err   error
}

func (s *memoryStore) SaveNotification(_ context.Context, n Notification) (Notification, error) {
	if s.err != nil {
		return Notification{}, s.err
	}
	s.saved = append(s.saved, n)
	return n, nil
}

type countingSink struct {
	delivered int
	err       error
}

func (s *countingSink) Deliver(context.Context, string, Notification) error {
	if s.err != nil {
		return s.err
	}
	s.delivered++
	return nil
}

func testEmitter(store *memoryStore, sink Sink, at time.Time) (*Emitter, *time.Time) {
	current := at
	seq := 0
	e := NewEmitter(store, sink,
		WithClock(func() time.Time { return current }),
		WithIDGenerator(func() string { seq++; return fmt.Sprintf("n-%d", seq) }),
	)
	return e, &current
}

func classEvent() schedule.Event {
	return schedule.Event{
		ID:     "course-1#mon",
		UserID: "user-1",
		Kind:   schedule.KindClass,
		Title:  "Algorithms",
		Room:   "B204",
	}
}

func TestEmitReminderDedupsPerOccurrence(t *testing.T) {
	store := &memoryStore{}
	sink := &countingSink{}
	now := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	e, _ := testEmitter(store, sink, now)

	occurrence := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

	if _, emitted, err := e.EmitReminder(context.Background(), classEvent(), occurrence); err != nil || !emitted {
		t.Fatalf("first emission should succeed, emitted=%v err=%v", emitted, err)
	}
	if _, emitted, err := e.EmitReminder(context.Background(), classEvent(), occurrence); err != nil || emitted {
		t.Fatalf("redundant emission must be a no-op, emitted=%v err=%v", emitted, err)
	}
	if len(store.saved) != 1 || sink.delivered != 1 {
		t.Fatalf("expected exactly one persisted and delivered record, got %d/%d", len(store.saved), sink.delivered)
	}

	nextWeek := occurrence.AddDate(0, 0, 7)
	if _, emitted, _ := e.EmitReminder(context.Background(), classEvent(), nextWeek); !emitted {
		t.Fatalf("a new occurrence date must emit again")
	}
}

func TestEmitReminderDeliveryFailureStillPersistsAndCountsAsSent(t *testing.T) {
	store := &memoryStore{}
	sink := &countingSink{err: errors.New("permission never granted")}
	now := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	e, _ := testEmitter(store, sink, now)

	occurrence := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	if _, emitted, err := e.EmitReminder(context.Background(), classEvent(), occurrence); err != nil || !emitted {
		t.Fatalf("delivery failure must be non-fatal, emitted=%v err=%v", emitted, err)
	}
	if len(store.saved) != 1 {
		t.Fatalf("record must still be persisted, got %d", len(store.saved))
	}
	if _, emitted, _ := e.EmitReminder(context.Background(), classEvent(), occurrence); emitted {
		t.Fatalf("failed delivery must still count as already notified")
	}
}

func TestEmitBudgetWarningHysteresis(t *testing.T) {
	store := &memoryStore{}
	now := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	e, _ := testEmitter(store, &countingSink{}, now)

	trajectory := []struct {
		spent    float64
		wantWarn bool
	}{
		{60, false}, // below threshold
		{82, true},  // first crossing fires
		{82, false}, // stuck over threshold, suppressed
		{65, false}, // resets the flag
		{81, true},  // fires again after reset
		{75, false}, // between reset and threshold, flag untouched
		{81, false}, // still suppressed: spend never fell below 70
	}

	for i, step := range trajectory {
		n, err := e.EmitBudget(context.Background(), BudgetStatus{UserID: "user-1", Spent: step.spent, Total: 100})
		if err != nil {
			t.Fatalf("step %d: unexpected error %v", i, err)
		}
		if got := n != nil; got != step.wantWarn {
			t.Fatalf("step %d (%.0f%%): emitted=%v, want %v", i, step.spent, got, step.wantWarn)
		}
		if n != nil && n.Priority != PriorityHigh {
			t.Fatalf("step %d: warning priority should be high, got %s", i, n.Priority)
		}
	}
}

func TestEmitBudgetAlertHasNoSuppression(t *testing.T) {
	store := &memoryStore{}
	now := time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)
	e, _ := testEmitter(store, &countingSink{}, now)

	for sweep := 0; sweep < 3; sweep++ {
		n, err := e.EmitBudget(context.Background(), BudgetStatus{UserID: "user-1", Spent: 96, Total: 100})
		if err != nil {
			t.Fatalf("sweep %d: unexpected error %v", sweep, err)
		}
		if n == nil || n.Priority != PriorityUrgent {
			t.Fatalf("sweep %d: alert must re-fire while over 95%%, got %+v", sweep, n)
		}
	}
	if len(store.saved) != 3 {
		t.Fatalf("expected three alert records, got %d", len(store.saved))
	}
}

func TestEmitBudgetIgnoresMissingBudget(t *testing.T) {
	e, _ := testEmitter(&memoryStore{}, &countingSink{}, time.Now())
	n, err := e.EmitBudget(context.Background(), BudgetStatus{UserID: "user-1", Spent: 50, Total: 0})
	if err != nil || n != nil {
		t.Fatalf("zero budget must not alert, got %+v err=%v", n, err)
	}
}

func TestEmitBudgetHysteresisResetsAcrossPeriods(t *testing.T) {
	store := &memoryStore{}
	may := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)
	e, current := testEmitter(store, &countingSink{}, may)

	if n, _ := e.EmitBudget(context.Background(), BudgetStatus{UserID: "user-1", Spent: 85, Total: 100}); n == nil {
		t.Fatalf("expected a warning in May")
	}

	*current = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if n, _ := e.EmitBudget(context.Background(), BudgetStatus{UserID: "user-1", Spent: 85, Total: 100}); n == nil {
		t.Fatalf("a new budget period starts with a clean hysteresis flag")
	}
}

func TestEmitReminderMessages(t *testing.T) {
	store := &memoryStore{}
	e, _ := testEmitter(store, &countingSink{}, time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC))

	occurrence := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	saved, _, err := e.EmitReminder(context.Background(), classEvent(), occurrence)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Type != TypeClassReminder || saved.Title != "Class Reminder: Algorithms" {
		t.Fatalf("unexpected class notification: %+v", saved)
	}
	if saved.Message != "Your Algorithms class starts at 09:00 in room B204" {
		t.Fatalf("unexpected class message: %q", saved.Message)
	}

	habit := schedule.Event{ID: "habit-1", UserID: "user-1", Kind: schedule.KindHabit, Title: "Morning run"}
	saved, _, err = e.EmitReminder(context.Background(), habit, occurrence)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Type != TypeHabitReminder || saved.Message != "Time for: Morning run" {
		t.Fatalf("unexpected habit notification: %+v", saved)
	}
}
