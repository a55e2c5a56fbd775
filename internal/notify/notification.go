package notify

import "time"

// Notification types understood by clients.
const (
	TypeClassReminder = "class_reminder"
	TypeHabitReminder = "habit_reminder"
	TypeBudgetAlert   = "budget_alert"
	TypeSystem        = "system"
)

// Priorities carried on notifications.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Notification is a persisted in-app notification record. The emitter creates
// records; ownership passes to the persistence layer afterwards and the only
// later mutation is the mark-read flow.
type Notification struct {
	ID       string
	UserID   string
	Title    string
	Message  string
	Type     string
	Priority string
	SentAt   time.Time
	Read     bool
}
