package session

import (
	"context"
	"sync"
)

// RunHandle refers to one tracked run.
type RunHandle struct {
	Kind Kind

	tracker *Tracker
	done    chan struct{}
	once    sync.Once
	err     error
}

// Done is closed when the run reaches a terminal state.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run finishes, the tracker is closed, or ctx is done.
// A run that failed on the backend returns its *BackendError.
func (h *RunHandle) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-h.done:
		return h.tracker.Snapshot(), h.err
	case <-h.tracker.closedCh:
		return h.tracker.Snapshot(), ErrClosed
	case <-ctx.Done():
		return h.tracker.Snapshot(), ctx.Err()
	}
}

// abort ends the handle without a terminal state.
func (h *RunHandle) abort(err error) {
	h.once.Do(func() {
		h.err = err
		close(h.done)
	})
}

func (h *RunHandle) finish(berr *BackendError) {
	h.once.Do(func() {
		if berr != nil {
			h.err = berr
		}
		close(h.done)
	})
}
