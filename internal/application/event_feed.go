package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/studenthub/internal/schedule"
	"github.com/example/studenthub/internal/sweep"
)

// EventFeed projects courses and habits into the evaluator's event snapshots.
// It backs both the periodic sweeps and the reminder timer arm cycle, so both
// sides see identical events. Implements sweep.EventSource.
type EventFeed struct {
	users   UserRepository
	courses CourseRepository
	habits  HabitRepository
}

// NewEventFeed wires the feed over its repositories.
func NewEventFeed(users UserRepository, courses CourseRepository, habits HabitRepository) *EventFeed {
	return &EventFeed{users: users, courses: courses, habits: habits}
}

// ListUserIDs enumerates users for sweep iteration.
func (f *EventFeed) ListUserIDs(ctx context.Context) ([]string, error) {
	if f == nil || f.users == nil {
		return nil, fmt.Errorf("event feed not configured")
	}
	return f.users.ListUserIDs(ctx)
}

// ListActiveEventsForUser returns one event per course meeting plus one event
// per habit. A course meeting on two days yields two events, so each carries
// its own reminder dedup identity.
func (f *EventFeed) ListActiveEventsForUser(ctx context.Context, userID string) ([]schedule.Event, error) {
	if f == nil {
		return nil, fmt.Errorf("event feed not configured")
	}

	courses, err := f.courses.ListCoursesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	habits, err := f.habits.ListHabitsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}

	events := make([]schedule.Event, 0, len(courses)+len(habits))
	for _, course := range courses {
		events = append(events, CourseEvents(course)...)
	}
	for _, habit := range habits {
		events = append(events, HabitEvent(habit))
	}
	return events, nil
}

// CourseEvents expands a course into one class event per weekly meeting.
func CourseEvents(course Course) []schedule.Event {
	events := make([]schedule.Event, 0, len(course.Meetings))
	for _, meeting := range course.Meetings {
		day, ok := ParseWeekday(meeting.Day)
		if !ok {
			continue
		}
		events = append(events, schedule.Event{
			ID:              MeetingEventID(course.ID, meeting.Day),
			UserID:          course.UserID,
			Kind:            schedule.KindClass,
			Title:           course.Name,
			Days:            []time.Weekday{day},
			StartTime:       meeting.StartTime,
			EndTime:         meeting.EndTime,
			Room:            meeting.Room,
			CreatedAt:       course.CreatedAt,
			ReminderEnabled: true,
		})
	}
	return events
}

// MeetingEventID is the stable event identity of one weekly course meeting.
func MeetingEventID(courseID, day string) string {
	return courseID + "#" + strings.ToLower(strings.TrimSpace(day))
}

// HabitEvent projects a habit into a habit event.
func HabitEvent(habit Habit) schedule.Event {
	days := make([]time.Weekday, 0, len(habit.DaysOfWeek))
	for _, name := range habit.DaysOfWeek {
		if day, ok := ParseWeekday(name); ok {
			days = append(days, day)
		}
	}
	return schedule.Event{
		ID:              habit.ID,
		UserID:          habit.UserID,
		Kind:            schedule.KindHabit,
		Title:           habit.Title,
		Days:            days,
		StartTime:       habit.TargetTime,
		Frequency:       schedule.Frequency(habit.Frequency),
		CreatedAt:       habit.CreatedAt,
		LastCompletedAt: habit.LastCompletedAt,
		ReminderEnabled: habit.ReminderEnabled,
	}
}

// BudgetFeed adapts the budget service to the hourly sweep. Implements
// sweep.BudgetSource.
type BudgetFeed struct {
	Budgets *BudgetService
}

// GetCurrentBudget returns the sweep snapshot for one user.
func (f BudgetFeed) GetCurrentBudget(ctx context.Context, userID string) (sweep.BudgetSnapshot, error) {
	status, err := f.Budgets.CurrentBudget(ctx, userID)
	if err != nil {
		return sweep.BudgetSnapshot{}, err
	}
	return sweep.BudgetSnapshot{
		TotalBudget:    status.TotalBudget,
		SpentThisMonth: status.SpentThisMonth,
	}, nil
}
