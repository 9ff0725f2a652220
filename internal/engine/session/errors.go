package session

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned when a launch is attempted while another run is
	// launching, running, or waiting for a reset.
	ErrBusy = errors.New("a run is already in progress")
	// ErrLocked is returned when another process holds the launch lock.
	ErrLocked = errors.New("another labwatch process is launching a run")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session tracker closed")
)

// LaunchError means the backend did not start the run. The tracker stays idle.
type LaunchError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *LaunchError) Error() string {
	what := "experiment"
	if e.Kind == KindBatch {
		what = "batch"
	}
	if e.Err != nil {
		return fmt.Sprintf("failed to launch %s: %s: %v", what, e.Message, e.Err)
	}
	return fmt.Sprintf("failed to launch %s: %s", what, e.Message)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// PollError is a transient failure of a single poll. State is unchanged and
// the next tick retries.
type PollError struct {
	Task string
	Err  error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll %s: %v", e.Task, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// BackendError is a failure reported by the backend through status "error".
// It is terminal for the run.
type BackendError struct {
	Kind    Kind
	Message string
}

func (e *BackendError) Error() string {
	return e.Message
}

func backendError(kind Kind, msg string) *BackendError {
	if msg == "" {
		if kind == KindBatch {
			msg = "batch failed"
		} else {
			msg = "experiment failed"
		}
	}
	return &BackendError{Kind: kind, Message: msg}
}
