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

// CourseRepository captures the persistence interactions needed by the service.
type CourseRepository interface {
	CreateCourse(ctx context.Context, course Course) (Course, error)
	GetCourse(ctx context.Context, id string) (Course, error)
	UpdateCourse(ctx context.Context, course Course) (Course, error)
	DeleteCourse(ctx context.Context, id string) error
	ListCoursesByUser(ctx context.Context, userID string) ([]Course, error)
}

// ReminderSync is notified after a user's timetable or habits change so that
// armed reminder timers can be rebuilt. A nil sync is a no-op.
type ReminderSync interface {
	SyncUser(ctx context.Context, userID string)
}

// weekdayNames is the accepted day vocabulary, in timetable order.
var weekdayNames = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

// ParseWeekday maps a day name (mon..sun) to its time.Weekday.
func ParseWeekday(name string) (time.Weekday, bool) {
	day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return day, ok
}

// CourseService orchestrates validation and persistence for course operations.
type CourseService struct {
	courses     CourseRepository
	idGenerator func() string
	now         func() time.Time
	sync        ReminderSync
	logger      *slog.Logger
}

// NewCourseService wires dependencies for course operations.
func NewCourseService(courses CourseRepository, idGenerator func() string, now func() time.Time, sync ReminderSync, logger *slog.Logger) *CourseService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &CourseService{
		courses:     courses,
		idGenerator: idGenerator,
		now:         now,
		sync:        sync,
		logger:      defaultLogger(logger),
	}
}

func (s *CourseService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CourseService", operation, attrs...)
}

func (s *CourseService) syncUser(ctx context.Context, userID string) {
	if s.sync != nil {
		s.sync.SyncUser(ctx, userID)
	}
}

// CreateCourse validates the request before delegating to persistence.
func (s *CourseService) CreateCourse(ctx context.Context, params CreateCourseParams) (Course, error) {
	if s == nil {
		return Course{}, fmt.Errorf("CourseService is nil")
	}
	if s.courses == nil {
		return Course{}, fmt.Errorf("course repository not configured")
	}

	input := params.Input
	vErr := &ValidationError{}
	validateCourseCore(input, vErr)
	if vErr.HasErrors() {
		return Course{}, vErr
	}

	createdAt := s.now()
	course := Course{
		ID:         s.idGenerator(),
		UserID:     params.Principal.UserID,
		Name:       strings.TrimSpace(input.Name),
		Code:       strings.TrimSpace(input.Code),
		Instructor: strings.TrimSpace(input.Instructor),
		Meetings:   normalizeMeetings(input.Meetings),
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}

	persisted, err := s.courses.CreateCourse(ctx, course)
	if err != nil {
		s.loggerWith(ctx, "CreateCourse").ErrorContext(ctx, "create course failed", "error", err, "error_kind", ErrorKind(err))
		return Course{}, err
	}

	s.syncUser(ctx, persisted.UserID)
	return persisted, nil
}

// GetCourse returns a single course owned by the principal.
func (s *CourseService) GetCourse(ctx context.Context, principal Principal, courseID string) (Course, error) {
	if s == nil {
		return Course{}, fmt.Errorf("CourseService is nil")
	}
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	if course.UserID != principal.UserID {
		return Course{}, ErrUnauthorized
	}
	return course, nil
}

// ListCourses returns the principal's courses sorted by name.
func (s *CourseService) ListCourses(ctx context.Context, principal Principal) ([]Course, error) {
	if s == nil {
		return nil, fmt.Errorf("CourseService is nil")
	}
	courses, err := s.courses.ListCoursesByUser(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].Name < courses[j].Name })
	return courses, nil
}

// UpdateCourse applies validation and ownership checks before updating persistence state.
func (s *CourseService) UpdateCourse(ctx context.Context, params UpdateCourseParams) (Course, error) {
	if s == nil {
		return Course{}, fmt.Errorf("CourseService is nil")
	}

	existing, err := s.courses.GetCourse(ctx, params.CourseID)
	if err != nil {
		return Course{}, err
	}
	if existing.UserID != params.Principal.UserID {
		return Course{}, ErrUnauthorized
	}

	input := params.Input
	vErr := &ValidationError{}
	validateCourseCore(input, vErr)
	if vErr.HasErrors() {
		return Course{}, vErr
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.Code = strings.TrimSpace(input.Code)
	existing.Instructor = strings.TrimSpace(input.Instructor)
	existing.Meetings = normalizeMeetings(input.Meetings)
	existing.UpdatedAt = s.now()

	persisted, err := s.courses.UpdateCourse(ctx, existing)
	if err != nil {
		return Course{}, err
	}

	s.syncUser(ctx, persisted.UserID)
	return persisted, nil
}

// DeleteCourse removes a course owned by the principal.
func (s *CourseService) DeleteCourse(ctx context.Context, principal Principal, courseID string) error {
	if s == nil {
		return fmt.Errorf("CourseService is nil")
	}

	existing, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if existing.UserID != principal.UserID {
		return ErrUnauthorized
	}

	if err := s.courses.DeleteCourse(ctx, courseID); err != nil {
		return err
	}

	s.syncUser(ctx, principal.UserID)
	return nil
}

func validateCourseCore(input CourseInput, vErr *ValidationError) {
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	for i, meeting := range input.Meetings {
		prefix := fmt.Sprintf("meetings[%d]", i)
		if _, ok := ParseWeekday(meeting.Day); !ok {
			vErr.add(prefix+".day", "day must be one of mon..sun")
		}
		start, err := schedule.ParseClock(meeting.StartTime)
		if err != nil {
			vErr.add(prefix+".start_time", "start time must be HH:MM")
		}
		end, err := schedule.ParseClock(meeting.EndTime)
		if err != nil {
			vErr.add(prefix+".end_time", "end time must be HH:MM")
			continue
		}
		if _, hasStartErr := vErr.FieldErrors[prefix+".start_time"]; !hasStartErr && end <= start {
			vErr.add(prefix+".end_time", "end time must be after start time")
		}
	}
}

func normalizeMeetings(meetings []CourseMeeting) []CourseMeeting {
	normalized := make([]CourseMeeting, 0, len(meetings))
	for _, meeting := range meetings {
		meeting.Day = strings.ToLower(strings.TrimSpace(meeting.Day))
		meeting.Room = strings.TrimSpace(meeting.Room)
		normalized = append(normalized, meeting)
	}
	return normalized
}
