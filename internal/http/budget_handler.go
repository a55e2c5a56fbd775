package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/studenthub/internal/application"
)

type budgetService interface {
	SetBudget(ctx context.Context, principal application.Principal, total float64) (application.Budget, error)
	AddExpense(ctx context.Context, principal application.Principal, input application.ExpenseInput) (application.Expense, error)
	ListExpenses(ctx context.Context, principal application.Principal) ([]application.Expense, error)
	CurrentBudget(ctx context.Context, userID string) (application.BudgetStatus, error)
}

// BudgetHandler serves the monthly budget and expense endpoints.
type BudgetHandler struct {
	service   budgetService
	responder responder
}

// NewBudgetHandler wires the handler.
func NewBudgetHandler(service budgetService, logger *slog.Logger) *BudgetHandler {
	return &BudgetHandler{service: service, responder: newResponder(logger)}
}

type setBudgetRequest struct {
	Total float64 `json:"total"`
}

type budgetStatusDTO struct {
	Month          string  `json:"month"`
	TotalBudget    float64 `json:"total_budget"`
	SpentThisMonth float64 `json:"spent_this_month"`
}

type expenseRequest struct {
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
}

type expenseDTO struct {
	ID          string    `json:"id"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	SpentAt     time.Time `json:"spent_at"`
}

func toExpenseDTO(expense application.Expense) expenseDTO {
	return expenseDTO{
		ID:          expense.ID,
		Amount:      expense.Amount,
		Category:    expense.Category,
		Description: expense.Description,
		SpentAt:     expense.SpentAt,
	}
}

// GetCurrent handles GET /budgets/current.
func (h *BudgetHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	status, err := h.service.CurrentBudget(r.Context(), principal.UserID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, budgetStatusDTO{
		Month:          status.Month,
		TotalBudget:    status.TotalBudget,
		SpentThisMonth: status.SpentThisMonth,
	})
}

// SetCurrent handles PUT /budgets/current.
func (h *BudgetHandler) SetCurrent(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req setBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	budget, err := h.service.SetBudget(r.Context(), principal, req.Total)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, budgetStatusDTO{
		Month:       budget.Month,
		TotalBudget: budget.Total,
	})
}

// CreateExpense handles POST /expenses.
func (h *BudgetHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	expense, err := h.service.AddExpense(r.Context(), principal, application.ExpenseInput{
		Amount:      req.Amount,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toExpenseDTO(expense))
}

// ListExpenses handles GET /expenses.
func (h *BudgetHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	expenses, err := h.service.ListExpenses(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]expenseDTO, 0, len(expenses))
	for _, expense := range expenses {
		dtos = append(dtos, toExpenseDTO(expense))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string][]expenseDTO{"expenses": dtos})
}
