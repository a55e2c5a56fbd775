package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/example/studenthub/internal/application"
)

// CreateHabit stores a habit.
func (s *Store) CreateHabit(ctx context.Context, habit application.Habit) (application.Habit, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO habits (id, user_id, title, description, frequency, target_time,
		                     days_of_week, reminder_enabled, streak, last_completed_at,
		                     created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		habit.ID, habit.UserID, habit.Title, habit.Description, habit.Frequency,
		habit.TargetTime, strings.Join(habit.DaysOfWeek, ","), boolToInt(habit.ReminderEnabled),
		habit.Streak, formatNullableTime(habit.LastCompletedAt),
		formatTime(habit.CreatedAt), formatTime(habit.UpdatedAt))
	if err != nil {
		return application.Habit{}, mapError(err)
	}
	return habit, nil
}

// GetHabit retrieves a habit by id.
func (s *Store) GetHabit(ctx context.Context, id string) (application.Habit, error) {
	row := s.db.QueryRowContext(ctx, habitSelect+` WHERE id = ?`, id)
	return scanHabitInto(row)
}

// UpdateHabit replaces a stored habit.
func (s *Store) UpdateHabit(ctx context.Context, habit application.Habit) (application.Habit, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE habits SET title = ?, description = ?, frequency = ?, target_time = ?,
		        days_of_week = ?, reminder_enabled = ?, streak = ?, last_completed_at = ?,
		        updated_at = ?
		 WHERE id = ?`,
		habit.Title, habit.Description, habit.Frequency, habit.TargetTime,
		strings.Join(habit.DaysOfWeek, ","), boolToInt(habit.ReminderEnabled),
		habit.Streak, formatNullableTime(habit.LastCompletedAt),
		formatTime(habit.UpdatedAt), habit.ID)
	if err != nil {
		return application.Habit{}, mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return application.Habit{}, err
	}
	if affected == 0 {
		return application.Habit{}, application.ErrNotFound
	}
	return habit, nil
}

// DeleteHabit removes a habit.
func (s *Store) DeleteHabit(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM habits WHERE id = ?`, id)
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

// ListHabitsByUser returns a user's habits ordered by title.
func (s *Store) ListHabitsByUser(ctx context.Context, userID string) ([]application.Habit, error) {
	rows, err := s.db.QueryContext(ctx, habitSelect+` WHERE user_id = ? ORDER BY title, id`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	habits := make([]application.Habit, 0)
	for rows.Next() {
		habit, err := scanHabitInto(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, habit)
	}
	return habits, rows.Err()
}

const habitSelect = `SELECT id, user_id, title, description, frequency, target_time,
       days_of_week, reminder_enabled, streak, last_completed_at, created_at, updated_at
  FROM habits`

func scanHabitInto(scanner rowScanner) (application.Habit, error) {
	var (
		habit                application.Habit
		days                 string
		reminderEnabled      int
		lastCompletedAt      sql.NullString
		createdAt, updatedAt string
	)
	err := scanner.Scan(&habit.ID, &habit.UserID, &habit.Title, &habit.Description,
		&habit.Frequency, &habit.TargetTime, &days, &reminderEnabled, &habit.Streak,
		&lastCompletedAt, &createdAt, &updatedAt)
	if err != nil {
		return application.Habit{}, mapError(err)
	}

	if days != "" {
		habit.DaysOfWeek = strings.Split(days, ",")
	}
	habit.ReminderEnabled = reminderEnabled != 0
	if habit.LastCompletedAt, err = parseNullableTime(lastCompletedAt); err != nil {
		return application.Habit{}, fmt.Errorf("parse last_completed_at: %w", err)
	}
	if habit.CreatedAt, err = parseTime(createdAt); err != nil {
		return application.Habit{}, fmt.Errorf("parse created_at: %w", err)
	}
	if habit.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return application.Habit{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return habit, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
