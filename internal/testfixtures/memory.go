package testfixtures

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/studenthub/internal/application"
	"github.com/example/studenthub/internal/notify"
)

// MemoryStore is an in-memory implementation of every repository interface the
// application services consume, plus the notification emitter's store. It
// keeps service and handler tests free of SQLite.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[string]application.UserCredentials
	sessions      map[string]application.Session
	courses       map[string]application.Course
	habits        map[string]application.Habit
	budgets       map[string]application.Budget // keyed userID|month
	expenses      []application.Expense
	notifications map[string]notify.Notification
	notifOrder    []string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]application.UserCredentials),
		sessions:      make(map[string]application.Session),
		courses:       make(map[string]application.Course),
		habits:        make(map[string]application.Habit),
		budgets:       make(map[string]application.Budget),
		notifications: make(map[string]notify.Notification),
	}
}

func budgetMapKey(userID, month string) string { return userID + "|" + month }

// CreateUser stores a new account, enforcing email uniqueness.
func (s *MemoryStore) CreateUser(_ context.Context, creds application.UserCredentials) (application.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.User.Email == creds.User.Email {
			return application.User{}, application.ErrAlreadyExists
		}
	}
	s.users[creds.User.ID] = creds
	return creds.User, nil
}

// GetUser returns an account by id.
func (s *MemoryStore) GetUser(_ context.Context, id string) (application.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds, ok := s.users[id]
	if !ok {
		return application.User{}, application.ErrNotFound
	}
	return creds.User, nil
}

// GetUserCredentialsByEmail returns the stored credentials for an email.
func (s *MemoryStore) GetUserCredentialsByEmail(_ context.Context, email string) (application.UserCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, creds := range s.users {
		if creds.User.Email == email {
			return creds, nil
		}
	}
	return application.UserCredentials{}, application.ErrNotFound
}

// ListUserIDs enumerates stored account ids in a stable order.
func (s *MemoryStore) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// CreateSession stores a session keyed by token.
func (s *MemoryStore) CreateSession(_ context.Context, session application.Session) (application.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Token] = session
	return session, nil
}

// GetSession returns a session by token.
func (s *MemoryStore) GetSession(_ context.Context, token string) (application.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return application.Session{}, application.ErrNotFound
	}
	return session, nil
}

// RevokeSession marks a session revoked.
func (s *MemoryStore) RevokeSession(_ context.Context, token string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return application.ErrNotFound
	}
	session.RevokedAt = &revokedAt
	s.sessions[token] = session
	return nil
}

// DeleteExpiredSessions drops sessions past their expiry.
func (s *MemoryStore) DeleteExpiredSessions(_ context.Context, reference time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, session := range s.sessions {
		if !session.ExpiresAt.IsZero() && !session.ExpiresAt.After(reference) {
			delete(s.sessions, token)
		}
	}
	return nil
}

// CreateCourse stores a course.
func (s *MemoryStore) CreateCourse(_ context.Context, course application.Course) (application.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[course.ID] = course
	return course, nil
}

// GetCourse returns a course by id.
func (s *MemoryStore) GetCourse(_ context.Context, id string) (application.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	course, ok := s.courses[id]
	if !ok {
		return application.Course{}, application.ErrNotFound
	}
	return course, nil
}

// UpdateCourse replaces a stored course.
func (s *MemoryStore) UpdateCourse(_ context.Context, course application.Course) (application.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[course.ID]; !ok {
		return application.Course{}, application.ErrNotFound
	}
	s.courses[course.ID] = course
	return course, nil
}

// DeleteCourse removes a course.
func (s *MemoryStore) DeleteCourse(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[id]; !ok {
		return application.ErrNotFound
	}
	delete(s.courses, id)
	return nil
}

// ListCoursesByUser returns the courses owned by a user.
func (s *MemoryStore) ListCoursesByUser(_ context.Context, userID string) ([]application.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	courses := make([]application.Course, 0)
	for _, course := range s.courses {
		if course.UserID == userID {
			courses = append(courses, course)
		}
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].ID < courses[j].ID })
	return courses, nil
}

// CreateHabit stores a habit.
func (s *MemoryStore) CreateHabit(_ context.Context, habit application.Habit) (application.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.habits[habit.ID] = habit
	return habit, nil
}

// GetHabit returns a habit by id.
func (s *MemoryStore) GetHabit(_ context.Context, id string) (application.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	habit, ok := s.habits[id]
	if !ok {
		return application.Habit{}, application.ErrNotFound
	}
	return habit, nil
}

// UpdateHabit replaces a stored habit.
func (s *MemoryStore) UpdateHabit(_ context.Context, habit application.Habit) (application.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.habits[habit.ID]; !ok {
		return application.Habit{}, application.ErrNotFound
	}
	s.habits[habit.ID] = habit
	return habit, nil
}

// DeleteHabit removes a habit.
func (s *MemoryStore) DeleteHabit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.habits[id]; !ok {
		return application.ErrNotFound
	}
	delete(s.habits, id)
	return nil
}

// ListHabitsByUser returns the habits owned by a user.
func (s *MemoryStore) ListHabitsByUser(_ context.Context, userID string) ([]application.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	habits := make([]application.Habit, 0)
	for _, habit := range s.habits {
		if habit.UserID == userID {
			habits = append(habits, habit)
		}
	}
	sort.Slice(habits, func(i, j int) bool { return habits[i].ID < habits[j].ID })
	return habits, nil
}

// UpsertBudget stores or replaces the budget for one user and month.
func (s *MemoryStore) UpsertBudget(_ context.Context, budget application.Budget) (application.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := budgetMapKey(budget.UserID, budget.Month)
	if existing, ok := s.budgets[key]; ok {
		budget.ID = existing.ID
		budget.CreatedAt = existing.CreatedAt
	}
	s.budgets[key] = budget
	return budget, nil
}

// GetBudget returns the budget for one user and month.
func (s *MemoryStore) GetBudget(_ context.Context, userID, month string) (application.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	budget, ok := s.budgets[budgetMapKey(userID, month)]
	if !ok {
		return application.Budget{}, application.ErrNotFound
	}
	return budget, nil
}

// AddExpense appends an expense record.
func (s *MemoryStore) AddExpense(_ context.Context, expense application.Expense) (application.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses = append(s.expenses, expense)
	return expense, nil
}

// SumExpenses totals a user's expenses in the given month.
func (s *MemoryStore) SumExpenses(_ context.Context, userID, month string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, expense := range s.expenses {
		if expense.UserID == userID && expense.SpentAt.Format("2006-01") == month {
			total += expense.Amount
		}
	}
	return total, nil
}

// ListExpenses returns a user's expenses in the given month, newest first.
func (s *MemoryStore) ListExpenses(_ context.Context, userID, month string) ([]application.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expenses := make([]application.Expense, 0)
	for _, expense := range s.expenses {
		if expense.UserID == userID && expense.SpentAt.Format("2006-01") == month {
			expenses = append(expenses, expense)
		}
	}
	sort.Slice(expenses, func(i, j int) bool { return expenses[i].SpentAt.After(expenses[j].SpentAt) })
	return expenses, nil
}

// SaveNotification appends a notification record. Implements notify.Store.
func (s *MemoryStore) SaveNotification(_ context.Context, n notify.Notification) (notify.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.ID] = n
	s.notifOrder = append(s.notifOrder, n.ID)
	return n, nil
}

// ListNotificationsByUser returns a user's notifications newest first.
func (s *MemoryStore) ListNotificationsByUser(_ context.Context, userID string, limit, offset int) ([]notify.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]notify.Notification, 0)
	for i := len(s.notifOrder) - 1; i >= 0; i-- {
		n := s.notifications[s.notifOrder[i]]
		if n.UserID == userID {
			all = append(all, n)
		}
	}
	if offset >= len(all) {
		return []notify.Notification{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// CountUnreadNotifications counts a user's unread notifications.
func (s *MemoryStore) CountUnreadNotifications(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, n := range s.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

// GetNotification returns a notification by id.
func (s *MemoryStore) GetNotification(_ context.Context, id string) (notify.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return notify.Notification{}, application.ErrNotFound
	}
	return n, nil
}

// MarkNotificationRead marks one notification read.
func (s *MemoryStore) MarkNotificationRead(_ context.Context, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return application.ErrNotFound
	}
	n.Read = true
	s.notifications[id] = n
	return nil
}

// MarkAllNotificationsRead marks every unread notification of a user read.
func (s *MemoryStore) MarkAllNotificationsRead(_ context.Context, userID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range s.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			s.notifications[id] = n
		}
	}
	return nil
}
