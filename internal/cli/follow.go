package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/iotlab-io/labwatch/internal/engine/phase"
	"github.com/iotlab-io/labwatch/internal/engine/session"
)

type followOptions struct {
	quiet bool // hide scanner output
}

// followRun builds a tracker, lets launch start or reattach a run, and prints
// its progress until it finishes. Interrupting detaches without stopping the
// run on the backend.
func followRun(ctx context.Context, w io.Writer, a *app, opts followOptions, launch func(*session.Tracker) (*session.RunHandle, error)) error {
	sched := a.newScheduler(ctx)
	defer sched.Close()

	p := &progressPrinter{w: w, quiet: opts.quiet}
	tracker := a.newTracker(sched,
		session.WithNotify(p.update),
		session.WithOnComplete(a.onFinished),
	)
	defer tracker.Close()

	h, err := launch(tracker)
	if err != nil {
		return err
	}
	if h == nil {
		fmt.Fprintln(w, paint(styleHint, "No experiment is running."))
		return nil
	}

	snap, err := h.Wait(ctx)
	if ctx.Err() != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, paint(styleHint, "Detached. The run continues on the backend; 'labwatch attach' follows it again."))
		return nil
	}
	p.summary(snap)

	var berr *session.BackendError
	if errors.As(err, &berr) {
		return berr
	}
	return err
}

// progressPrinter turns tracker snapshots into incremental terminal output.
type progressPrinter struct {
	mu        sync.Mutex
	w         io.Writer
	quiet     bool
	started   bool
	phase     phase.ID
	lines     int
	completed int
	devices   int
}

func (p *progressPrinter) update(s session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !s.State.Active() {
		return
	}
	if !p.started {
		p.started = true
		p.header(s)
	}

	if s.Kind == session.KindBatch {
		if s.CompletedRuns != p.completed {
			p.completed = s.CompletedRuns
			fmt.Fprintf(p.w, "%s run %d/%d done  %s elapsed  %s avg\n",
				paint(stylePhase, "▸"),
				s.CompletedRuns, s.TotalRuns,
				session.FormatElapsed(s.Elapsed),
				session.FormatElapsed(s.AverageRunTime()))
		}
		return
	}

	if !p.quiet {
		lines := splitOutput(s.Output)
		// Output only grows within a run.
		if len(lines) < p.lines {
			p.lines = 0
		}
		for _, l := range lines[p.lines:] {
			fmt.Fprintln(p.w, paint(styleHint, "│ ")+l)
		}
		p.lines = len(lines)
	}

	if s.Phase.ID != p.phase {
		p.phase = s.Phase.ID
		fmt.Fprintf(p.w, "%s %s %s\n",
			paint(stylePhase, "▸"),
			paint(stylePhase, s.Phase.Label),
			paint(styleHint, fmt.Sprintf("(%d/%d, %s)", s.PhaseIndex()+1, len(s.Phases), session.FormatElapsed(s.Elapsed))))
	}
	if s.HasDeviceCount && s.DevicesFound != p.devices {
		p.devices = s.DevicesFound
		fmt.Fprintf(p.w, "%s %d devices found\n", paint(styleSuccess, "●"), s.DevicesFound)
	}
}

func (p *progressPrinter) header(s session.Snapshot) {
	what := "Experiment"
	if s.Kind == session.KindBatch {
		what = fmt.Sprintf("Batch of %d runs", s.TotalRuns)
	}
	verb := "started"
	if s.Reattached {
		verb = "attached"
	}
	fmt.Fprintf(p.w, "%s %s %s\n", stateBadge(s.State), paint(styleCommand, what), verb)
	printField(p.w, "Mode", string(s.Mode))
	if s.Network != "" {
		printField(p.w, "Network", s.Network)
	}
	if s.Command != "" {
		printField(p.w, "Command", s.Command)
	}
	if s.Reattached {
		printField(p.w, "Elapsed", session.FormatElapsed(s.Elapsed))
	}
	fmt.Fprintln(p.w)
}

func (p *progressPrinter) summary(s session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.w)
	fmt.Fprintf(p.w, "%s %s\n", stateBadge(s.State), paint(styleCommand, finishedTitle(s)))
	printField(p.w, "Elapsed", session.FormatElapsed(s.Elapsed))
	if s.Kind == session.KindBatch {
		printField(p.w, "Runs", fmt.Sprintf("%d/%d", s.CompletedRuns, s.TotalRuns))
		if avg := s.AverageRunTime(); avg > 0 {
			printField(p.w, "Average", session.FormatElapsed(avg))
		}
		if len(s.ExperimentIDs) > 0 {
			printField(p.w, "Experiments", strings.Join(s.ExperimentIDs, ", "))
		}
	} else {
		printField(p.w, "Phase", s.Phase.Label)
		if s.ExperimentID != "" {
			printField(p.w, "Experiment", s.ExperimentID)
		}
		if s.HasDeviceCount {
			printField(p.w, "Devices", fmt.Sprintf("%d", s.DevicesFound))
		}
	}
	if s.Error != "" {
		printField(p.w, "Error", s.Error)
	}
}

func finishedTitle(s session.Snapshot) string {
	switch s.State {
	case session.StateError:
		if s.Kind == session.KindBatch {
			return "Batch failed"
		}
		return "Experiment failed"
	case session.StateBatchCompleted:
		return "Batch completed"
	}
	return "Experiment completed"
}

func splitOutput(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
