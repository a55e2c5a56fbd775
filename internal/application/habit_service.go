package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/studenthub/internal/schedule"
)

// HabitRepository captures the persistence interactions needed by the service.
type HabitRepository interface {
	CreateHabit(ctx context.Context, habit Habit) (Habit, error)
	GetHabit(ctx context.Context, id string) (Habit, error)
	UpdateHabit(ctx context.Context, habit Habit) (Habit, error)
	DeleteHabit(ctx context.Context, id string) error
	ListHabitsByUser(ctx context.Context, userID string) ([]Habit, error)
}

// HabitService orchestrates validation and persistence for habit operations.
type HabitService struct {
	habits      HabitRepository
	idGenerator func() string
	now         func() time.Time
	sync        ReminderSync
	logger      *slog.Logger
}

// NewHabitService wires dependencies for habit operations.
func NewHabitService(habits HabitRepository, idGenerator func() string, now func() time.Time, sync ReminderSync, logger *slog.Logger) *HabitService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &HabitService{
		habits:      habits,
		idGenerator: idGenerator,
		now:         now,
		sync:        sync,
		logger:      defaultLogger(logger),
	}
}

func (s *HabitService) syncUser(ctx context.Context, userID string) {
	if s.sync != nil {
		s.sync.SyncUser(ctx, userID)
	}
}

// CreateHabit validates the request before delegating to persistence.
func (s *HabitService) CreateHabit(ctx context.Context, params CreateHabitParams) (Habit, error) {
	if s == nil {
		return Habit{}, fmt.Errorf("HabitService is nil")
	}
	if s.habits == nil {
		return Habit{}, fmt.Errorf("habit repository not configured")
	}

	input := params.Input
	vErr := &ValidationError{}
	validateHabitCore(input, vErr)
	if vErr.HasErrors() {
		return Habit{}, vErr
	}

	createdAt := s.now()
	habit := Habit{
		ID:              s.idGenerator(),
		UserID:          params.Principal.UserID,
		Title:           strings.TrimSpace(input.Title),
		Description:     strings.TrimSpace(input.Description),
		Frequency:       input.Frequency,
		TargetTime:      input.TargetTime,
		DaysOfWeek:      normalizeDays(input.DaysOfWeek),
		ReminderEnabled: input.ReminderEnabled,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}

	persisted, err := s.habits.CreateHabit(ctx, habit)
	if err != nil {
		serviceLogger(ctx, s.logger, "HabitService", "CreateHabit").
			ErrorContext(ctx, "create habit failed", "error", err, "error_kind", ErrorKind(err))
		return Habit{}, err
	}

	s.syncUser(ctx, persisted.UserID)
	return persisted, nil
}

// GetHabit returns a single habit owned by the principal.
func (s *HabitService) GetHabit(ctx context.Context, principal Principal, habitID string) (Habit, error) {
	if s == nil {
		return Habit{}, fmt.Errorf("HabitService is nil")
	}
	habit, err := s.habits.GetHabit(ctx, habitID)
	if err != nil {
		return Habit{}, err
	}
	if habit.UserID != principal.UserID {
		return Habit{}, ErrUnauthorized
	}
	return habit, nil
}

// ListHabits returns the principal's habits sorted by title.
func (s *HabitService) ListHabits(ctx context.Context, principal Principal) ([]Habit, error) {
	if s == nil {
		return nil, fmt.Errorf("HabitService is nil")
	}
	habits, err := s.habits.ListHabitsByUser(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	sort.Slice(habits, func(i, j int) bool { return habits[i].Title < habits[j].Title })
	return habits, nil
}

// UpdateHabit applies validation and ownership checks before updating persistence state.
func (s *HabitService) UpdateHabit(ctx context.Context, params UpdateHabitParams) (Habit, error) {
	if s == nil {
		return Habit{}, fmt.Errorf("HabitService is nil")
	}

	existing, err := s.habits.GetHabit(ctx, params.HabitID)
	if err != nil {
		return Habit{}, err
	}
	if existing.UserID != params.Principal.UserID {
		return Habit{}, ErrUnauthorized
	}

	input := params.Input
	vErr := &ValidationError{}
	validateHabitCore(input, vErr)
	if vErr.HasErrors() {
		return Habit{}, vErr
	}

	existing.Title = strings.TrimSpace(input.Title)
	existing.Description = strings.TrimSpace(input.Description)
	existing.Frequency = input.Frequency
	existing.TargetTime = input.TargetTime
	existing.DaysOfWeek = normalizeDays(input.DaysOfWeek)
	existing.ReminderEnabled = input.ReminderEnabled
	existing.UpdatedAt = s.now()

	persisted, err := s.habits.UpdateHabit(ctx, existing)
	if err != nil {
		return Habit{}, err
	}

	s.syncUser(ctx, persisted.UserID)
	return persisted, nil
}

// DeleteHabit removes a habit owned by the principal.
func (s *HabitService) DeleteHabit(ctx context.Context, principal Principal, habitID string) error {
	if s == nil {
		return fmt.Errorf("HabitService is nil")
	}

	existing, err := s.habits.GetHabit(ctx, habitID)
	if err != nil {
		return err
	}
	if existing.UserID != principal.UserID {
		return ErrUnauthorized
	}

	if err := s.habits.DeleteHabit(ctx, habitID); err != nil {
		return err
	}

	s.syncUser(ctx, principal.UserID)
	return nil
}

// MarkCompleted records today's completion for a habit. Marking an already
// completed habit again on the same day is a no-op. Completing on consecutive
// periods extends the streak; a gap resets it to one.
func (s *HabitService) MarkCompleted(ctx context.Context, principal Principal, habitID string) (Habit, error) {
	if s == nil {
		return Habit{}, fmt.Errorf("HabitService is nil")
	}

	existing, err := s.habits.GetHabit(ctx, habitID)
	if err != nil {
		return Habit{}, err
	}
	if existing.UserID != principal.UserID {
		return Habit{}, ErrUnauthorized
	}

	now := s.now()
	if existing.LastCompletedAt != nil && sameDay(*existing.LastCompletedAt, now) {
		return existing, nil
	}

	existing.Streak = nextStreak(existing, now)
	completedAt := now
	existing.LastCompletedAt = &completedAt
	existing.UpdatedAt = now

	persisted, err := s.habits.UpdateHabit(ctx, existing)
	if err != nil {
		return Habit{}, err
	}

	// A completed habit has no reminder left today; rebuild the timers.
	s.syncUser(ctx, principal.UserID)
	return persisted, nil
}

func sameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// nextStreak extends the streak when the previous completion falls within one
// recurrence period, with a day of slack for weekly and monthly habits.
func nextStreak(habit Habit, now time.Time) int {
	if habit.LastCompletedAt == nil || habit.Streak == 0 {
		return 1
	}
	gap := now.Sub(*habit.LastCompletedAt)

	var limit time.Duration
	switch habit.Frequency {
	case string(schedule.FrequencyWeekly):
		limit = 8 * 24 * time.Hour
	case string(schedule.FrequencyMonthly):
		limit = 32 * 24 * time.Hour
	default:
		limit = 48 * time.Hour
	}
	if gap > limit {
		return 1
	}
	return habit.Streak + 1
}

func validateHabitCore(input HabitInput, vErr *ValidationError) {
	if strings.TrimSpace(input.Title) == "" {
		vErr.add("title", "title is required")
	}

	switch schedule.Frequency(input.Frequency) {
	case schedule.FrequencyDaily, schedule.FrequencyMonthly:
	case schedule.FrequencyWeekly:
		if len(input.DaysOfWeek) == 0 {
			vErr.add("days_of_week", "weekly habits need at least one day")
		}
	default:
		vErr.add("frequency", "frequency must be daily, weekly or monthly")
	}

	for _, day := range input.DaysOfWeek {
		if _, ok := ParseWeekday(day); !ok {
			vErr.add("days_of_week", fmt.Sprintf("unknown day %q", day))
			break
		}
	}

	if input.TargetTime != "" {
		if _, err := schedule.ParseClock(input.TargetTime); err != nil {
			vErr.add("target_time", "target time must be HH:MM")
		}
	}
}

func normalizeDays(days []string) []string {
	normalized := make([]string, 0, len(days))
	for _, day := range days {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(day)))
	}
	return normalized
}
