package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// BudgetRepository captures the persistence interactions needed by the service.
type BudgetRepository interface {
	UpsertBudget(ctx context.Context, budget Budget) (Budget, error)
	GetBudget(ctx context.Context, userID, month string) (Budget, error)
	AddExpense(ctx context.Context, expense Expense) (Expense, error)
	SumExpenses(ctx context.Context, userID, month string) (float64, error)
	ListExpenses(ctx context.Context, userID, month string) ([]Expense, error)
}

// BudgetService orchestrates monthly budgets and expense recording.
type BudgetService struct {
	budgets     BudgetRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewBudgetService wires dependencies for budget operations.
func NewBudgetService(budgets BudgetRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BudgetService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &BudgetService{
		budgets:     budgets,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *BudgetService) month() string {
	return s.now().Format("2006-01")
}

// SetBudget creates or replaces the principal's budget for the current month.
func (s *BudgetService) SetBudget(ctx context.Context, principal Principal, total float64) (Budget, error) {
	if s == nil {
		return Budget{}, fmt.Errorf("BudgetService is nil")
	}
	if s.budgets == nil {
		return Budget{}, fmt.Errorf("budget repository not configured")
	}

	if total <= 0 {
		vErr := &ValidationError{}
		vErr.add("total", "total must be greater than zero")
		return Budget{}, vErr
	}

	now := s.now()
	budget := Budget{
		ID:        s.idGenerator(),
		UserID:    principal.UserID,
		Month:     s.month(),
		Total:     total,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.budgets.UpsertBudget(ctx, budget)
}

// AddExpense records a spend against the current month.
func (s *BudgetService) AddExpense(ctx context.Context, principal Principal, input ExpenseInput) (Expense, error) {
	if s == nil {
		return Expense{}, fmt.Errorf("BudgetService is nil")
	}
	if s.budgets == nil {
		return Expense{}, fmt.Errorf("budget repository not configured")
	}

	vErr := &ValidationError{}
	if input.Amount <= 0 {
		vErr.add("amount", "amount must be greater than zero")
	}
	if strings.TrimSpace(input.Category) == "" {
		vErr.add("category", "category is required")
	}
	if vErr.HasErrors() {
		return Expense{}, vErr
	}

	now := s.now()
	expense := Expense{
		ID:          s.idGenerator(),
		UserID:      principal.UserID,
		Amount:      input.Amount,
		Category:    strings.TrimSpace(input.Category),
		Description: strings.TrimSpace(input.Description),
		SpentAt:     now,
		CreatedAt:   now,
	}
	return s.budgets.AddExpense(ctx, expense)
}

// ListExpenses returns the principal's expenses for the current month.
func (s *BudgetService) ListExpenses(ctx context.Context, principal Principal) ([]Expense, error) {
	if s == nil {
		return nil, fmt.Errorf("BudgetService is nil")
	}
	return s.budgets.ListExpenses(ctx, principal.UserID, s.month())
}

// CurrentBudget returns the current-month position. A user without a budget
// gets a zero-total status rather than an error, so sweep callers can treat
// "no budget" and "no alert" uniformly.
func (s *BudgetService) CurrentBudget(ctx context.Context, userID string) (BudgetStatus, error) {
	if s == nil {
		return BudgetStatus{}, fmt.Errorf("BudgetService is nil")
	}

	month := s.month()
	status := BudgetStatus{Month: month}

	budget, err := s.budgets.GetBudget(ctx, userID, month)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return BudgetStatus{}, err
	}
	if err == nil {
		status.TotalBudget = budget.Total
	}

	spent, err := s.budgets.SumExpenses(ctx, userID, month)
	if err != nil {
		return BudgetStatus{}, err
	}
	status.SpentThisMonth = spent
	return status, nil
}
