package application

import "time"

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
}

// UserInput captures caller provided registration attributes.
type UserInput struct {
	Email       string
	DisplayName string
	Password    string
}

// User represents a student account exposed by the application services.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserCredentials models the authentication attributes persisted for a user.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// Session represents an authenticated session issued to a user.
type Session struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// AuthenticateParams captures the data required to authenticate a user.
type AuthenticateParams struct {
	Email    string
	Password string
}

// AuthenticateResult captures the outcome of a successful authentication attempt.
type AuthenticateResult struct {
	User    User
	Session Session
}

// CourseMeeting is one weekly timetable slot of a course.
type CourseMeeting struct {
	Day       string // mon..sun
	StartTime string // HH:MM, 24-hour
	EndTime   string // HH:MM
	Room      string
}

// CourseInput captures caller provided course fields.
type CourseInput struct {
	Name       string
	Code       string
	Instructor string
	Meetings   []CourseMeeting
}

// Course represents a persisted course with its weekly meetings.
type Course struct {
	ID         string
	UserID     string
	Name       string
	Code       string
	Instructor string
	Meetings   []CourseMeeting
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreateCourseParams wraps the data required to create a course.
type CreateCourseParams struct {
	Principal Principal
	Input     CourseInput
}

// UpdateCourseParams wraps the data required to update an existing course.
type UpdateCourseParams struct {
	Principal Principal
	CourseID  string
	Input     CourseInput
}

// HabitInput captures caller provided habit fields.
type HabitInput struct {
	Title           string
	Description     string
	Frequency       string // daily, weekly, monthly
	TargetTime      string // HH:MM, optional
	DaysOfWeek      []string
	ReminderEnabled bool
}

// Habit represents a tracked habit with its completion state.
type Habit struct {
	ID              string
	UserID          string
	Title           string
	Description     string
	Frequency       string
	TargetTime      string
	DaysOfWeek      []string
	ReminderEnabled bool
	Streak          int
	LastCompletedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateHabitParams wraps the data required to create a habit.
type CreateHabitParams struct {
	Principal Principal
	Input     HabitInput
}

// UpdateHabitParams wraps the data required to update an existing habit.
type UpdateHabitParams struct {
	Principal Principal
	HabitID   string
	Input     HabitInput
}

// Budget is one user's budget for one calendar month.
type Budget struct {
	ID        string
	UserID    string
	Month     string // 2006-01
	Total     float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExpenseInput captures caller provided expense fields.
type ExpenseInput struct {
	Amount      float64
	Category    string
	Description string
}

// Expense is a single recorded spend.
type Expense struct {
	ID          string
	UserID      string
	Amount      float64
	Category    string
	Description string
	SpentAt     time.Time
	CreatedAt   time.Time
}

// BudgetStatus is the current-month position returned to callers and fed to
// the hourly budget sweep.
type BudgetStatus struct {
	Month          string
	TotalBudget    float64
	SpentThisMonth float64
}
