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

type courseService interface {
	CreateCourse(ctx context.Context, params application.CreateCourseParams) (application.Course, error)
	GetCourse(ctx context.Context, principal application.Principal, courseID string) (application.Course, error)
	ListCourses(ctx context.Context, principal application.Principal) ([]application.Course, error)
	UpdateCourse(ctx context.Context, params application.UpdateCourseParams) (application.Course, error)
	DeleteCourse(ctx context.Context, principal application.Principal, courseID string) error
}

// CourseHandler serves the course timetable endpoints.
type CourseHandler struct {
	service   courseService
	responder responder
}

// NewCourseHandler wires the handler.
func NewCourseHandler(service courseService, logger *slog.Logger) *CourseHandler {
	return &CourseHandler{service: service, responder: newResponder(logger)}
}

type meetingDTO struct {
	Day       string `json:"day"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Room      string `json:"room,omitempty"`
}

type courseRequest struct {
	Name       string       `json:"name"`
	Code       string       `json:"code"`
	Instructor string       `json:"instructor"`
	Meetings   []meetingDTO `json:"meetings"`
}

func (req courseRequest) toInput() application.CourseInput {
	meetings := make([]application.CourseMeeting, 0, len(req.Meetings))
	for _, m := range req.Meetings {
		meetings = append(meetings, application.CourseMeeting{
			Day:       m.Day,
			StartTime: m.StartTime,
			EndTime:   m.EndTime,
			Room:      m.Room,
		})
	}
	return application.CourseInput{
		Name:       req.Name,
		Code:       req.Code,
		Instructor: req.Instructor,
		Meetings:   meetings,
	}
}

type courseDTO struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Code       string       `json:"code,omitempty"`
	Instructor string       `json:"instructor,omitempty"`
	Meetings   []meetingDTO `json:"meetings"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func toCourseDTO(course application.Course) courseDTO {
	meetings := make([]meetingDTO, 0, len(course.Meetings))
	for _, m := range course.Meetings {
		meetings = append(meetings, meetingDTO{
			Day:       m.Day,
			StartTime: m.StartTime,
			EndTime:   m.EndTime,
			Room:      m.Room,
		})
	}
	return courseDTO{
		ID:         course.ID,
		Name:       course.Name,
		Code:       course.Code,
		Instructor: course.Instructor,
		Meetings:   meetings,
		CreatedAt:  course.CreatedAt,
		UpdatedAt:  course.UpdatedAt,
	}
}

// List handles GET /courses.
func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	courses, err := h.service.ListCourses(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]courseDTO, 0, len(courses))
	for _, course := range courses {
		dtos = append(dtos, toCourseDTO(course))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string][]courseDTO{"courses": dtos})
}

// Create handles POST /courses.
func (h *CourseHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req courseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	course, err := h.service.CreateCourse(r.Context(), application.CreateCourseParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toCourseDTO(course))
}

// Get handles GET /courses/{id}.
func (h *CourseHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	courseID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(courseID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	course, err := h.service.GetCourse(r.Context(), principal, courseID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toCourseDTO(course))
}

// Update handles PUT /courses/{id}.
func (h *CourseHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	courseID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(courseID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	var req courseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	course, err := h.service.UpdateCourse(r.Context(), application.UpdateCourseParams{
		Principal: principal,
		CourseID:  courseID,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toCourseDTO(course))
}

// Delete handles DELETE /courses/{id}.
func (h *CourseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	courseID, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(courseID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteCourse(r.Context(), principal, courseID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}
