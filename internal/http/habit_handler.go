package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/studenthub/internal/application"
)

type habitService interface {
	CreateHabit(ctx context.Context, params application.CreateHabitParams) (application.Habit, error)
	GetHabit(ctx context.Context, principal application.Principal, habitID string) (application.Habit, error)
	ListHabits(ctx context.Context, principal application.Principal) ([]application.Habit, error)
	UpdateHabit(ctx context.Context, params application.UpdateHabitParams) (application.Habit, error)
	DeleteHabit(ctx context.Context, principal application.Principal, habitID string) error
	MarkCompleted(ctx context.Context, principal application.Principal, habitID string) (application.Habit, error)
}

// HabitHandler serves the habit tracking endpoints.
type HabitHandler struct {
	service   habitService
	responder responder
}

// NewHabitHandler wires the handler.
func NewHabitHandler(service habitService, logger *slog.Logger) *HabitHandler {
	return &HabitHandler{service: service, responder: newResponder(logger)}
}

type habitRequest struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Frequency       string   `json:"frequency"`
	TargetTime      string   `json:"target_time"`
	DaysOfWeek      []string `json:"days_of_week"`
	ReminderEnabled bool     `json:"reminder_enabled"`
}

func (req habitRequest) toInput() application.HabitInput {
	return application.HabitInput{
		Title:           req.Title,
		Description:     req.Description,
		Frequency:       req.Frequency,
		TargetTime:      req.TargetTime,
		DaysOfWeek:      req.DaysOfWeek,
		ReminderEnabled: req.ReminderEnabled,
	}
}

type habitDTO struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Frequency       string     `json:"frequency"`
	TargetTime      string     `json:"target_time,omitempty"`
	DaysOfWeek      []string   `json:"days_of_week,omitempty"`
	ReminderEnabled bool       `json:"reminder_enabled"`
	Streak          int        `json:"streak"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toHabitDTO(habit application.Habit) habitDTO {
	return habitDTO{
		ID:              habit.ID,
		Title:           habit.Title,
		Description:     habit.Description,
		Frequency:       habit.Frequency,
		TargetTime:      habit.TargetTime,
		DaysOfWeek:      habit.DaysOfWeek,
		ReminderEnabled: habit.ReminderEnabled,
		Streak:          habit.Streak,
		LastCompletedAt: habit.LastCompletedAt,
		CreatedAt:       habit.CreatedAt,
		UpdatedAt:       habit.UpdatedAt,
	}
}

// List handles GET /habits.
func (h *HabitHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	habits, err := h.service.ListHabits(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]habitDTO, 0, len(habits))
	for _, habit := range habits {
		dtos = append(dtos, toHabitDTO(habit))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string][]habitDTO{"habits": dtos})
}

// Create handles POST /habits.
func (h *HabitHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req habitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	habit, err := h.service.CreateHabit(r.Context(), application.CreateHabitParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toHabitDTO(habit))
}

// Get handles GET /habits/{id}.
func (h *HabitHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	habitID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(habitID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	habit, err := h.service.GetHabit(r.Context(), principal, habitID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toHabitDTO(habit))
}

// Update handles PUT /habits/{id}.
func (h *HabitHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	habitID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(habitID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	var req habitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	habit, err := h.service.UpdateHabit(r.Context(), application.UpdateHabitParams{
		Principal: principal,
		HabitID:   habitID,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toHabitDTO(habit))
}

// Delete handles DELETE /habits/{id}.
func (h *HabitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	habitID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(habitID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteHabit(r.Context(), principal, habitID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Complete handles POST /habits/{id}/complete.
func (h *HabitHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	habitID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(habitID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	habit, err := h.service.MarkCompleted(r.Context(), principal, habitID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toHabitDTO(habit))
}
