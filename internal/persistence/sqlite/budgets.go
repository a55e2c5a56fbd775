package sqlite

import (
	"context"
	"fmt"

	"github.com/example/studenthub/internal/application"
)

// UpsertBudget stores or replaces the budget for one user and month. The
// original id and creation time survive a replace.
func (s *Store) UpsertBudget(ctx context.Context, budget application.Budget) (application.Budget, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO budgets (id, user_id, month, total, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, month) DO UPDATE SET total = excluded.total, updated_at = excluded.updated_at`,
		budget.ID, budget.UserID, budget.Month, budget.Total,
		formatTime(budget.CreatedAt), formatTime(budget.UpdatedAt))
	if err != nil {
		return application.Budget{}, mapError(err)
	}
	return s.GetBudget(ctx, budget.UserID, budget.Month)
}

// GetBudget retrieves the budget for one user and month.
func (s *Store) GetBudget(ctx context.Context, userID, month string) (application.Budget, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, month, total, created_at, updated_at
		 FROM budgets WHERE user_id = ? AND month = ?`, userID, month)

	var (
		budget               application.Budget
		createdAt, updatedAt string
	)
	err := row.Scan(&budget.ID, &budget.UserID, &budget.Month, &budget.Total, &createdAt, &updatedAt)
	if err != nil {
		return application.Budget{}, mapError(err)
	}
	if budget.CreatedAt, err = parseTime(createdAt); err != nil {
		return application.Budget{}, fmt.Errorf("parse created_at: %w", err)
	}
	if budget.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return application.Budget{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return budget, nil
}

// AddExpense appends an expense record.
func (s *Store) AddExpense(ctx context.Context, expense application.Expense) (application.Expense, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (id, user_id, amount, category, description, spent_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.UserID, expense.Amount, expense.Category, expense.Description,
		formatTime(expense.SpentAt), formatTime(expense.CreatedAt))
	if err != nil {
		return application.Expense{}, mapError(err)
	}
	return expense, nil
}

// SumExpenses totals a user's spend in the given month. Timestamps are stored
// in UTC RFC3339, so a month prefix match on spent_at selects the month.
func (s *Store) SumExpenses(ctx context.Context, userID, month string) (float64, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM expenses
		 WHERE user_id = ? AND spent_at LIKE ? || '%'`, userID, month)

	var total float64
	if err := row.Scan(&total); err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

// ListExpenses returns a user's expenses in the given month, newest first.
func (s *Store) ListExpenses(ctx context.Context, userID, month string) ([]application.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, amount, category, description, spent_at, created_at
		 FROM expenses WHERE user_id = ? AND spent_at LIKE ? || '%'
		 ORDER BY spent_at DESC, id`, userID, month)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	expenses := make([]application.Expense, 0)
	for rows.Next() {
		var (
			expense            application.Expense
			spentAt, createdAt string
		)
		err := rows.Scan(&expense.ID, &expense.UserID, &expense.Amount, &expense.Category,
			&expense.Description, &spentAt, &createdAt)
		if err != nil {
			return nil, err
		}
		if expense.SpentAt, err = parseTime(spentAt); err != nil {
			return nil, fmt.Errorf("parse spent_at: %w", err)
		}
		if expense.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		expenses = append(expenses, expense)
	}
	return expenses, rows.Err()
}
