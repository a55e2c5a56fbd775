package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Kind distinguishes the two recurring event families the evaluator understands.
type Kind string

const (
	// KindClass is a timetabled course meeting with a start and end time.
	KindClass Kind = "class"
	// KindHabit is a tracked habit with a target time and completion state.
	KindHabit Kind = "habit"
)

// Frequency represents supported habit recurrence intervals.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Event is a read-only snapshot of a recurring event. Identity is the ID;
// schedule fields are owned by the CRUD layer and only observed here.
type Event struct {
	ID              string
	UserID          string
	Kind            Kind
	Title           string
	Days            []time.Weekday
	StartTime       string // HH:MM, 24-hour
	EndTime         string // HH:MM, classes only
	Frequency       Frequency
	CreatedAt       time.Time // anchors the day-of-month for monthly habits
	LastCompletedAt *time.Time
	ReminderEnabled bool
	Room            string
}

var clockPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)

// ErrMalformedClock reports a time field that does not parse as HH:MM.
var ErrMalformedClock = errors.New("schedule: malformed HH:MM time")

// ParseClock converts an HH:MM string into minutes since midnight.
func ParseClock(value string) (int, error) {
	if !clockPattern.MatchString(value) {
		return 0, fmt.Errorf("%w: %q", ErrMalformedClock, value)
	}
	var hour, minute int
	if _, err := fmt.Sscanf(value, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedClock, value)
	}
	return hour*60 + minute, nil
}

// minuteOfDay maps an instant to whole minutes since local midnight.
func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// dayMatches reports whether the weekday of now appears in the event's day set.
func dayMatches(days []time.Weekday, now time.Time) bool {
	weekday := now.Weekday()
	for _, day := range days {
		if day == weekday {
			return true
		}
	}
	return false
}

// OccursToday reports whether the event has an occurrence on now's calendar day.
// Classes occur on their timetabled weekdays. Habits follow their frequency:
// daily always, weekly on the selected weekdays, monthly on the day-of-month
// the habit was created.
func OccursToday(e Event, now time.Time) bool {
	switch e.Kind {
	case KindClass:
		return dayMatches(e.Days, now)
	case KindHabit:
		switch e.Frequency {
		case FrequencyDaily:
			return true
		case FrequencyWeekly:
			return dayMatches(e.Days, now)
		case FrequencyMonthly:
			return now.Day() == e.CreatedAt.Day()
		}
	}
	return false
}

// MinutesUntilStart returns whole minutes from now until the event's start
// time on now's day. Negative values mean the start has passed.
func MinutesUntilStart(e Event, now time.Time) (int, error) {
	start, err := ParseClock(e.StartTime)
	if err != nil {
		return 0, err
	}
	return start - minuteOfDay(now), nil
}

// StartOnDay materialises the event's start instant on the given calendar day,
// in that day's location.
func StartOnDay(e Event, day time.Time) (time.Time, error) {
	start, err := ParseClock(e.StartTime)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), start/60, start%60, 0, 0, day.Location()), nil
}

// completedOn reports whether the habit was already marked complete on the
// calendar day containing now.
func completedOn(e Event, now time.Time) bool {
	if e.LastCompletedAt == nil {
		return false
	}
	done := e.LastCompletedAt.In(now.Location())
	return done.Year() == now.Year() && done.YearDay() == now.YearDay()
}
