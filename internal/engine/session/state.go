package session

import (
	"errors"
	"fmt"
	"slices"
)

// State is the lifecycle state of a tracked run.
type State string

const (
	StateIdle           State = "idle"
	StateRunning        State = "running"
	StateCompleted      State = "completed"
	StateError          State = "error"
	StateBatchRunning   State = "batch_running"
	StateBatchCompleted State = "batch_completed"
)

// Kind distinguishes single runs from batches.
type Kind string

const (
	KindSingle Kind = "single"
	KindBatch  Kind = "batch"
)

// ErrInvalidTransition is wrapped by ValidateTransition.
var ErrInvalidTransition = errors.New("invalid session transition")

var allowedTransitions = map[State][]State{
	StateIdle:           {StateRunning, StateBatchRunning},
	StateRunning:        {StateCompleted, StateError},
	StateBatchRunning:   {StateBatchCompleted, StateError},
	StateCompleted:      {StateIdle},
	StateBatchCompleted: {StateIdle},
	StateError:          {StateIdle},
}

// ValidateTransition reports whether a session may move from one state to another.
func ValidateTransition(from, to State) error {
	if slices.Contains(allowedTransitions[from], to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Active reports whether the state has a poller attached.
func (s State) Active() bool {
	return s == StateRunning || s == StateBatchRunning
}

// Terminal reports whether the state only allows a reset.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateBatchCompleted || s == StateError
}

// Label is the human-facing state name.
func (s State) Label() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateCompleted:
		return "Completed"
	case StateError:
		return "Error"
	case StateBatchRunning:
		return "Batch running"
	case StateBatchCompleted:
		return "Batch completed"
	}
	return string(s)
}
