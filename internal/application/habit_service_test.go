package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/studenthub/internal/application"
	"github.com/example/studenthub/internal/testfixtures"
)

func newHabitService(store *testfixtures.MemoryStore, clock *testfixtures.Clock) *application.HabitService {
	ids := testfixtures.NewIDGenerator("habit")
	return application.NewHabitService(store, ids.NextFunc(), clock.NowFunc(), nil, nil)
}

func TestCreateHabitValidation(t *testing.T) {
	svc := newHabitService(testfixtures.NewMemoryStore(), testfixtures.NewClock(time.Time{}))

	cases := []struct {
		name  string
		input application.HabitInput
		field string
	}{
		{"missing title", application.HabitInput{Frequency: "daily"}, "title"},
		{"bad frequency", application.HabitInput{Title: "Run", Frequency: "hourly"}, "frequency"},
		{"weekly without days", application.HabitInput{Title: "Run", Frequency: "weekly"}, "days_of_week"},
		{"unknown day", application.HabitInput{Title: "Run", Frequency: "weekly", DaysOfWeek: []string{"funday"}}, "days_of_week"},
		{"bad time", application.HabitInput{Title: "Run", Frequency: "daily", TargetTime: "7am"}, "target_time"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateHabit(context.Background(), application.CreateHabitParams{
				Principal: application.Principal{UserID: "user-1"},
				Input:     tc.input,
			})
			var vErr *application.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := vErr.FieldErrors[tc.field]; !ok {
				t.Fatalf("expected field %q in %v", tc.field, vErr.FieldErrors)
			}
		})
	}
}

func TestMarkCompletedIsIdempotentPerDay(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	svc := newHabitService(testfixtures.NewMemoryStore(), clock)
	principal := application.Principal{UserID: "user-1"}

	habit, err := svc.CreateHabit(context.Background(), application.CreateHabitParams{
		Principal: principal,
		Input:     application.HabitInput{Title: "Morning run", Frequency: "daily", TargetTime: "07:00"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := svc.MarkCompleted(context.Background(), principal, habit.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Streak != 1 || first.LastCompletedAt == nil {
		t.Fatalf("first completion should start the streak, got %+v", first)
	}

	clock.Advance(2 * time.Hour)
	second, err := svc.MarkCompleted(context.Background(), principal, habit.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Streak != 1 || !second.LastCompletedAt.Equal(*first.LastCompletedAt) {
		t.Fatalf("same-day completion must be a no-op, got %+v", second)
	}
}

func TestMarkCompletedStreaks(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	svc := newHabitService(testfixtures.NewMemoryStore(), clock)
	principal := application.Principal{UserID: "user-1"}

	habit, err := svc.CreateHabit(context.Background(), application.CreateHabitParams{
		Principal: principal,
		Input:     application.HabitInput{Title: "Morning run", Frequency: "daily"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.MarkCompleted(context.Background(), principal, habit.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock.Advance(24 * time.Hour)
	updated, err := svc.MarkCompleted(context.Background(), principal, habit.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Streak != 2 {
		t.Fatalf("consecutive day should extend the streak, got %d", updated.Streak)
	}

	// Skip three days; the streak resets.
	clock.Advance(72 * time.Hour)
	updated, err = svc.MarkCompleted(context.Background(), principal, habit.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Streak != 1 {
		t.Fatalf("a gap should reset the streak, got %d", updated.Streak)
	}
}

func TestMarkCompletedRejectsNonOwner(t *testing.T) {
	clock := testfixtures.NewClock(time.Time{})
	svc := newHabitService(testfixtures.NewMemoryStore(), clock)

	habit, err := svc.CreateHabit(context.Background(), application.CreateHabitParams{
		Principal: application.Principal{UserID: "user-1"},
		Input:     application.HabitInput{Title: "Read", Frequency: "daily"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.MarkCompleted(context.Background(), application.Principal{UserID: "user-2"}, habit.ID); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
