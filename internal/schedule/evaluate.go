package schedule

import "time"

// Status classifies an event relative to a reference instant.
type Status string

const (
	// StatusActive means a class is currently in session.
	StatusActive Status = "active"
	// StatusUpcoming means a class starts within the look-ahead window.
	StatusUpcoming Status = "upcoming"
	// StatusDue means a habit is due today and not yet completed.
	StatusDue Status = "due"
	// StatusInactive means the event has no occurrence state right now.
	StatusInactive Status = "inactive"
)

// UpcomingWindowMinutes is the look-ahead window before a class start during
// which it is reported as upcoming. The window excludes the start instant.
const UpcomingWindowMinutes = 5

// ActivationState is the derived, ephemeral evaluation result for one event.
// It is recomputed on every pass and never persisted.
type ActivationState struct {
	EventID          string
	Status           Status
	MinutesUntil     int
	MinutesRemaining int
}

// InvalidEvent reports an event excluded from an evaluation pass, typically
// because a time field failed HH:MM validation. Callers log and move on.
type InvalidEvent struct {
	EventID string
	Err     error
}

// Evaluate derives the activation state of every event at the reference
// instant. It is a pure function: no clock reads, no side effects, and the
// same inputs always yield the same states, so client-side minute ticks and
// server-side sweeps can share identical semantics.
//
// Evaluation is total: every event contributes a state, and overlapping
// active classes are all reported. Malformed events are collected separately
// rather than aborting the pass.
func Evaluate(events []Event, now time.Time) ([]ActivationState, []InvalidEvent) {
	states := make([]ActivationState, 0, len(events))
	var invalid []InvalidEvent

	for _, event := range events {
		state, err := evaluateOne(event, now)
		if err != nil {
			invalid = append(invalid, InvalidEvent{EventID: event.ID, Err: err})
			continue
		}
		states = append(states, state)
	}

	return states, invalid
}

func evaluateOne(e Event, now time.Time) (ActivationState, error) {
	switch e.Kind {
	case KindClass:
		return evaluateClass(e, now)
	default:
		return evaluateHabit(e, now)
	}
}

func evaluateClass(e Event, now time.Time) (ActivationState, error) {
	start, err := ParseClock(e.StartTime)
	if err != nil {
		return ActivationState{}, err
	}
	end, err := ParseClock(e.EndTime)
	if err != nil {
		return ActivationState{}, err
	}

	state := ActivationState{EventID: e.ID, Status: StatusInactive}
	if !dayMatches(e.Days, now) {
		return state, nil
	}

	current := minuteOfDay(now)

	// A class ending at the exact current minute still counts as in session.
	if current >= start && current <= end {
		state.Status = StatusActive
		state.MinutesRemaining = end - current
		return state, nil
	}

	if current >= start-UpcomingWindowMinutes && current < start {
		state.Status = StatusUpcoming
		state.MinutesUntil = start - current
		return state, nil
	}

	return state, nil
}

func evaluateHabit(e Event, now time.Time) (ActivationState, error) {
	state := ActivationState{EventID: e.ID, Status: StatusInactive}

	if e.StartTime != "" {
		if _, err := ParseClock(e.StartTime); err != nil {
			return ActivationState{}, err
		}
	}

	if !OccursToday(e, now) || completedOn(e, now) {
		return state, nil
	}

	state.Status = StatusDue
	if e.StartTime != "" {
		minutes, err := MinutesUntilStart(e, now)
		if err != nil {
			return ActivationState{}, err
		}
		state.MinutesUntil = minutes
	}
	return state, nil
}
