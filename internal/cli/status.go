package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iotlab-io/labwatch/internal/engine/phase"
	"github.com/iotlab-io/labwatch/internal/engine/scheduler"
	"github.com/iotlab-io/labwatch/internal/engine/session"
	"github.com/iotlab-io/labwatch/internal/models"
)

var statusFlags struct {
	watch bool
	lines int
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the lab backend is running",
	Long: `Show the backend's single-run and batch status. The phase of a single run
is inferred from its scanner output.

With --watch the status is refreshed at the configured poll cadence until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusFlags.watch, "watch", "w", false, "Refresh until interrupted")
	statusCmd.Flags().IntVarP(&statusFlags.lines, "lines", "l", 0, "Show the last N scanner lines")
}

// backendStatus is one observation of both status endpoints.
type backendStatus struct {
	single *models.ExperimentStatus
	batch  *models.BatchStatus
}

func fetchStatus(ctx context.Context, a *app) (backendStatus, error) {
	var st backendStatus
	var err error
	if st.batch, err = a.client.BatchStatus(ctx); err != nil {
		return st, fmt.Errorf("failed to fetch batch status: %w", err)
	}
	if st.single, err = a.client.ExperimentStatus(ctx); err != nil {
		return st, fmt.Errorf("failed to fetch experiment status: %w", err)
	}
	return st, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := getApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if !statusFlags.watch {
		st, err := fetchStatus(ctx, a)
		if err != nil {
			return err
		}
		renderStatus(out, st, a.phases.Load(), statusFlags.lines)
		return nil
	}

	sched := a.newScheduler(ctx)
	defer sched.Close()

	w := &statusWatcher{
		w:       out,
		fetch:   func(ctx context.Context) (backendStatus, error) { return fetchStatus(ctx, a) },
		catalog: a.phases.Load,
	}
	if err := sched.Schedule(statusWatchTask, a.settings.Poll.Status, w.tick, scheduler.Immediate()); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

const statusWatchTask = "status-watch"

// statusWatcher prints a status line whenever it changes.
type statusWatcher struct {
	w       io.Writer
	fetch   func(context.Context) (backendStatus, error)
	catalog func() *phase.Catalog
	last    string
}

func (s *statusWatcher) tick(ctx context.Context) error {
	st, err := s.fetch(ctx)
	if err != nil {
		return err
	}
	if line := statusLine(st, s.catalog()); line != s.last {
		s.last = line
		fmt.Fprintf(s.w, "%s  %s\n", paint(styleHint, time.Now().Format("15:04:05")), line)
	}
	return nil
}

// singleState maps a backend status to the tracker state it implies.
func singleState(s models.RunStatus) session.State {
	switch s {
	case models.RunStatusRunning:
		return session.StateRunning
	case models.RunStatusCompleted:
		return session.StateCompleted
	case models.RunStatusError:
		return session.StateError
	}
	return session.StateIdle
}

func batchState(s models.RunStatus) session.State {
	switch s {
	case models.RunStatusRunning:
		return session.StateBatchRunning
	case models.RunStatusCompleted:
		return session.StateBatchCompleted
	case models.RunStatusError:
		return session.StateError
	}
	return session.StateIdle
}

func detectSingle(st *models.ExperimentStatus, c *phase.Catalog) phase.Phase {
	return c.Detect(st.ScannerOutput, session.ModeFromCommand(st.Command) == models.ModeAutoML)
}

func statusLine(st backendStatus, c *phase.Catalog) string {
	if st.batch != nil && st.batch.Status == models.RunStatusRunning {
		return fmt.Sprintf("%s batch %d/%d  %s",
			stateBadge(session.StateBatchRunning),
			st.batch.CompletedRuns, st.batch.TotalRuns,
			session.FormatElapsed(time.Duration(st.batch.ElapsedSeconds*float64(time.Second))))
	}
	s := st.single
	if s == nil {
		return stateBadge(session.StateIdle)
	}
	state := singleState(s.Status)
	if !state.Active() && !state.Terminal() {
		return stateBadge(state)
	}
	line := fmt.Sprintf("%s %s  %s", stateBadge(state), detectSingle(s, c).Label,
		session.FormatElapsed(time.Duration(s.ElapsedSeconds*float64(time.Second))))
	if n, ok := phase.CountDevices(s.ScannerOutput); ok {
		line += fmt.Sprintf("  %d devices", n)
	}
	return line
}

func renderStatus(w io.Writer, st backendStatus, c *phase.Catalog, lines int) {
	if b := st.batch; b != nil && b.Status != models.RunStatusIdle {
		fmt.Fprintf(w, "%s %s\n", stateBadge(batchState(b.Status)), paint(styleCommand, "Batch"))
		printField(w, "Runs", fmt.Sprintf("%d/%d", b.CompletedRuns, b.TotalRuns))
		printField(w, "Elapsed", session.FormatElapsed(time.Duration(b.ElapsedSeconds*float64(time.Second))))
		if b.Mode != "" {
			printField(w, "Mode", b.Mode)
		}
		if len(b.ExperimentIDs) > 0 {
			printField(w, "Experiments", strings.Join(b.ExperimentIDs, ", "))
		}
		if b.Error != "" {
			printField(w, "Error", b.Error)
		}
		printTail(w, b.ScannerOutput, lines)
		fmt.Fprintln(w)
	}

	s := st.single
	if s == nil {
		s = &models.ExperimentStatus{Status: models.RunStatusIdle}
	}
	state := singleState(s.Status)
	fmt.Fprintf(w, "%s %s\n", stateBadge(state), paint(styleCommand, "Experiment"))
	if state == session.StateIdle {
		fmt.Fprintln(w, paint(styleHint, "  Nothing running. Start one with 'labwatch run'."))
		return
	}
	if s.ExperimentID != "" {
		printField(w, "ID", s.ExperimentID)
	}
	printField(w, "Mode", string(session.ModeFromCommand(s.Command)))
	printField(w, "Phase", paint(stylePhase, detectSingle(s, c).Label))
	printField(w, "Elapsed", session.FormatElapsed(time.Duration(s.ElapsedSeconds*float64(time.Second))))
	if n, ok := phase.CountDevices(s.ScannerOutput); ok {
		printField(w, "Devices", fmt.Sprintf("%d", n))
	}
	if s.Error != "" {
		printField(w, "Error", s.Error)
	}
	printTail(w, s.ScannerOutput, lines)
}

func printTail(w io.Writer, output string, n int) {
	if n <= 0 {
		return
	}
	lines := splitOutput(output)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, l := range lines {
		fmt.Fprintln(w, paint(styleHint, "  │ ")+l)
	}
}
