// Package session tracks the lifecycle of single and batch experiment runs.
//
// A Tracker launches runs through a Backend, polls their status on a
// scheduler task, and derives the state shown to the user: lifecycle state,
// pipeline phase, device count, scanner tail and elapsed time. After a
// restart, Reattach resumes a run that is still in progress on the backend.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iotlab-io/labwatch/internal/engine/phase"
	"github.com/iotlab-io/labwatch/internal/engine/scheduler"
	"github.com/iotlab-io/labwatch/internal/models"
)

// Scheduler task names owned by a Tracker.
const (
	StatusTask      = "status"
	BatchStatusTask = "batch-status"
)

// Number of scanner lines kept for display.
const (
	singleTailLines = 15
	batchTailLines  = 10
)

// Backend is the subset of the lab API used by the tracker.
type Backend interface {
	RunExperiment(ctx context.Context, p models.RunParameters) (*models.LaunchResponse, error)
	ExperimentStatus(ctx context.Context) (*models.ExperimentStatus, error)
	StartBatch(ctx context.Context, req models.BatchRequest) (*models.LaunchResponse, error)
	BatchStatus(ctx context.Context) (*models.BatchStatus, error)
}

// Locker guards launches across processes. *flock.Flock satisfies it.
type Locker interface {
	TryLock() (bool, error)
	Unlock() error
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.logger = l.With().Str("component", "session").Logger() }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithCatalog supplies the phase catalog. It is called on every detection so
// a hot-reloaded catalog takes effect on the next poll.
func WithCatalog(fn func() *phase.Catalog) Option {
	return func(t *Tracker) { t.catalog = fn }
}

// WithIntervals sets the single and batch polling periods.
func WithIntervals(status, batch time.Duration) Option {
	return func(t *Tracker) {
		if status > 0 {
			t.statusEvery = status
		}
		if batch > 0 {
			t.batchEvery = batch
		}
	}
}

// WithNotify registers a callback invoked after every state change.
func WithNotify(fn func(Snapshot)) Option {
	return func(t *Tracker) { t.notify = fn }
}

// WithOnComplete registers a callback invoked once when a run reaches a
// terminal state.
func WithOnComplete(fn func(Snapshot)) Option {
	return func(t *Tracker) { t.onComplete = fn }
}

// WithLaunchLock serializes launches with other processes on the same host.
func WithLaunchLock(l Locker) Option {
	return func(t *Tracker) { t.lock = l }
}

// Tracker is the run session state machine.
type Tracker struct {
	backend Backend
	sched   *scheduler.Scheduler
	logger  zerolog.Logger
	now     func() time.Time
	catalog func() *phase.Catalog
	lock    Locker

	statusEvery time.Duration
	batchEvery  time.Duration
	notify      func(Snapshot)
	onComplete  func(Snapshot)

	mu        sync.Mutex
	state     State
	kind      Kind
	launching bool
	closed    bool
	closedCh  chan struct{}
	handle    *RunHandle

	mode          models.Mode
	network       string
	phase         phase.Phase
	devices       int
	hasDevices    bool
	lines         []string
	output        string
	experimentID  string
	command       string
	startedAt     time.Time
	finalElapsed  time.Duration
	reattached    bool
	requestedRuns int
	completedRuns int
	totalRuns     int
	experimentIDs []string
	err           *BackendError
}

// New creates an idle tracker that polls on sched.
func New(backend Backend, sched *scheduler.Scheduler, opts ...Option) *Tracker {
	t := &Tracker{
		backend:     backend,
		sched:       sched,
		logger:      zerolog.Nop(),
		now:         time.Now,
		catalog:     phase.Default,
		statusEvery: 2 * time.Second,
		batchEvery:  3 * time.Second,
		state:       StateIdle,
		closedCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.phase = t.catalog().First()
	return t
}

// Start launches a single run. On success the tracker is running and polls
// the backend until the run completes or fails.
func (t *Tracker) Start(ctx context.Context, p models.RunParameters) (*RunHandle, error) {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, &LaunchError{Kind: KindSingle, Message: "invalid parameters", Err: err}
	}
	release, err := t.beginLaunch()
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := t.backend.RunExperiment(ctx, p)
	if err != nil {
		return nil, &LaunchError{Kind: KindSingle, Message: "backend unreachable", Err: err}
	}
	if resp.Status == string(models.RunStatusError) {
		return nil, &LaunchError{Kind: KindSingle, Message: launchMessage(resp)}
	}

	t.mu.Lock()
	if err := t.transitionLocked(StateRunning); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	t.clearLocked()
	t.kind = KindSingle
	t.mode = p.Mode
	t.network = p.Network
	t.command = resp.Command
	t.startedAt = t.now()
	h := t.newHandleLocked()
	t.mu.Unlock()

	t.logger.Info().Str("mode", string(p.Mode)).Str("network", p.Network).Msg("experiment started")
	if err := t.sched.Schedule(StatusTask, t.statusEvery, t.statusTick); err != nil {
		return nil, t.abortRun(h, err)
	}
	t.emit()
	return h, nil
}

// StartBatch launches a batch of runs.
func (t *Tracker) StartBatch(ctx context.Context, req models.BatchRequest) (*RunHandle, error) {
	if err := req.Validate(); err != nil {
		return nil, &LaunchError{Kind: KindBatch, Message: "invalid parameters", Err: err}
	}
	release, err := t.beginLaunch()
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := t.backend.StartBatch(ctx, req)
	if err != nil {
		return nil, &LaunchError{Kind: KindBatch, Message: "backend unreachable", Err: err}
	}
	if resp.Status == string(models.RunStatusError) {
		return nil, &LaunchError{Kind: KindBatch, Message: launchMessage(resp)}
	}

	t.mu.Lock()
	if err := t.transitionLocked(StateBatchRunning); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	t.clearLocked()
	t.kind = KindBatch
	t.mode = req.Mode
	t.network = req.Network
	t.requestedRuns = req.Runs
	t.totalRuns = req.Runs
	t.startedAt = t.now()
	h := t.newHandleLocked()
	t.mu.Unlock()

	t.logger.Info().Str("mode", string(req.Mode)).Int("runs", req.Runs).Msg("batch started")
	if err := t.sched.Schedule(BatchStatusTask, t.batchEvery, t.batchTick); err != nil {
		return nil, t.abortRun(h, err)
	}
	t.emit()
	return h, nil
}

func launchMessage(resp *models.LaunchResponse) string {
	if resp.Message != "" {
		return resp.Message
	}
	return "rejected by backend"
}

// beginLaunch claims the launch slot and, when configured, the host lock.
func (t *Tracker) beginLaunch() (func(), error) {
	t.mu.Lock()
	switch {
	case t.closed:
		t.mu.Unlock()
		return nil, ErrClosed
	case t.launching || t.state != StateIdle:
		t.mu.Unlock()
		return nil, ErrBusy
	}
	t.launching = true
	t.mu.Unlock()

	done := func() {
		t.mu.Lock()
		t.launching = false
		t.mu.Unlock()
	}
	if t.lock == nil {
		return done, nil
	}
	ok, err := t.lock.TryLock()
	if err != nil || !ok {
		done()
		if err != nil {
			return nil, &LaunchError{Message: "launch lock", Err: err}
		}
		return nil, ErrLocked
	}
	return func() {
		if err := t.lock.Unlock(); err != nil {
			t.logger.Warn().Err(err).Msg("failed to release launch lock")
		}
		done()
	}, nil
}

// Poll fetches the single-run status once and applies it. Transport
// failures return a *PollError and leave the state unchanged.
func (t *Tracker) Poll(ctx context.Context) (*models.ExperimentStatus, error) {
	st, err := t.backend.ExperimentStatus(ctx)
	if err != nil {
		return nil, &PollError{Task: StatusTask, Err: err}
	}
	if t.applyStatus(st) {
		t.emit()
	}
	return st, nil
}

// PollBatch fetches the batch status once and applies it.
func (t *Tracker) PollBatch(ctx context.Context) (*models.BatchStatus, error) {
	st, err := t.backend.BatchStatus(ctx)
	if err != nil {
		return nil, &PollError{Task: BatchStatusTask, Err: err}
	}
	if t.applyBatch(st) {
		t.emit()
	}
	return st, nil
}

func (t *Tracker) statusTick(ctx context.Context) error {
	if _, err := t.Poll(ctx); err != nil {
		t.logger.Debug().Err(err).Msg("status poll failed")
		return err
	}
	if t.State() != StateRunning {
		return scheduler.ErrStop
	}
	return nil
}

func (t *Tracker) batchTick(ctx context.Context) error {
	if _, err := t.PollBatch(ctx); err != nil {
		t.logger.Debug().Err(err).Msg("batch poll failed")
		return err
	}
	if t.State() != StateBatchRunning {
		return scheduler.ErrStop
	}
	return nil
}

// applyStatus folds a single-run status into the tracker. It reports
// whether anything was applied.
func (t *Tracker) applyStatus(st *models.ExperimentStatus) bool {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		return false
	}

	t.rebaseLocked(st.ElapsedSeconds)
	if st.ExperimentID != "" {
		t.experimentID = st.ExperimentID
	}
	if st.Command != "" {
		t.command = st.Command
	}
	if st.ScannerOutput != "" {
		t.output = mergeOutput(t.output, st.ScannerOutput)
		t.lines = tailLines(st.ScannerOutput, singleTailLines)
		t.phase = t.catalog().Detect(t.output, t.mode == models.ModeAutoML)
		if n, ok := phase.CountDevices(t.output); ok {
			t.devices, t.hasDevices = n, true
		}
	}

	var finished bool
	switch st.Status {
	case models.RunStatusCompleted:
		finished = t.finishLocked(StateCompleted, nil)
	case models.RunStatusError:
		finished = t.finishLocked(StateError, backendError(KindSingle, st.Error))
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if finished {
		t.completed(snap)
	}
	return true
}

func (t *Tracker) applyBatch(st *models.BatchStatus) bool {
	t.mu.Lock()
	if t.state != StateBatchRunning {
		t.mu.Unlock()
		return false
	}

	t.rebaseLocked(st.ElapsedSeconds)
	total := st.TotalRuns
	if total <= 0 {
		total = t.requestedRuns
	}
	t.totalRuns = total
	t.completedRuns = min(max(st.CompletedRuns, 0), total)
	if st.ExperimentIDs != nil {
		t.experimentIDs = append([]string(nil), st.ExperimentIDs...)
	}
	if st.Mode != "" {
		if m, err := models.ParseMode(st.Mode); err == nil {
			t.mode = m
		}
	}
	if st.ScannerOutput != "" {
		t.output = st.ScannerOutput
		t.lines = tailLines(st.ScannerOutput, batchTailLines)
	}

	var finished bool
	switch {
	case st.Status == models.RunStatusError:
		finished = t.finishLocked(StateError, backendError(KindBatch, st.Error))
	case st.Status == models.RunStatusCompleted || (total > 0 && t.completedRuns == total):
		t.completedRuns = total
		finished = t.finishLocked(StateBatchCompleted, nil)
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if finished {
		t.completed(snap)
	}
	return true
}

// rebaseLocked anchors the local clock to the server's elapsed time so the
// displayed elapsed time is serverElapsed plus the time since the last poll.
func (t *Tracker) rebaseLocked(serverElapsed float64) {
	if serverElapsed <= 0 {
		return
	}
	t.startedAt = t.now().Add(-time.Duration(serverElapsed * float64(time.Second)))
}

func (t *Tracker) finishLocked(to State, berr *BackendError) bool {
	if err := t.transitionLocked(to); err != nil {
		t.logger.Error().Err(err).Msg("dropping status update")
		return false
	}
	t.finalElapsed = t.now().Sub(t.startedAt)
	t.err = berr
	if berr != nil {
		t.lines = []string{berr.Message}
		t.logger.Warn().Str("kind", string(t.kind)).Str("error", berr.Message).Msg("run failed")
	} else {
		t.logger.Info().Str("kind", string(t.kind)).Str("experiment", t.experimentID).Dur("elapsed", t.finalElapsed).Msg("run completed")
	}
	if t.handle != nil {
		t.handle.finish(berr)
	}
	return true
}

func (t *Tracker) completed(snap Snapshot) {
	if t.onComplete != nil {
		t.onComplete(snap)
	}
}

// Reattach resumes a run already in progress on the backend. A running batch
// takes precedence and the single-run status is not queried in that case.
// It returns nil when nothing is running. Calling it again while the same
// run is tracked refreshes the state without adding pollers.
func (t *Tracker) Reattach(ctx context.Context) (*RunHandle, error) {
	t.mu.Lock()
	switch {
	case t.closed:
		t.mu.Unlock()
		return nil, ErrClosed
	case t.state.Terminal() || t.launching:
		t.mu.Unlock()
		return nil, nil
	}
	t.mu.Unlock()

	bst, err := t.backend.BatchStatus(ctx)
	if err != nil {
		return nil, &PollError{Task: BatchStatusTask, Err: err}
	}
	if bst.Status == models.RunStatusRunning {
		return t.reattachBatch(bst)
	}

	st, err := t.backend.ExperimentStatus(ctx)
	if err != nil {
		return nil, &PollError{Task: StatusTask, Err: err}
	}
	if st.Status == models.RunStatusRunning {
		return t.reattachSingle(st)
	}
	return nil, nil
}

func (t *Tracker) reattachBatch(st *models.BatchStatus) (*RunHandle, error) {
	t.mu.Lock()
	switch t.state {
	case StateIdle:
		if err := t.transitionLocked(StateBatchRunning); err != nil {
			t.mu.Unlock()
			return nil, err
		}
		t.clearLocked()
		t.kind = KindBatch
		t.mode = models.ModeAutoML
		t.startedAt = t.now()
		t.reattached = true
		t.newHandleLocked()
	case StateBatchRunning:
	default:
		t.mu.Unlock()
		return nil, ErrBusy
	}
	h := t.handle
	t.mu.Unlock()

	t.applyBatch(st)
	t.logger.Info().Int("completed", st.CompletedRuns).Int("total", st.TotalRuns).Msg("reattached to batch")
	if err := t.sched.Schedule(BatchStatusTask, t.batchEvery, t.batchTick); err != nil {
		return nil, t.abortRun(h, err)
	}
	t.emit()
	return h, nil
}

func (t *Tracker) reattachSingle(st *models.ExperimentStatus) (*RunHandle, error) {
	t.mu.Lock()
	switch t.state {
	case StateIdle:
		if err := t.transitionLocked(StateRunning); err != nil {
			t.mu.Unlock()
			return nil, err
		}
		t.clearLocked()
		t.kind = KindSingle
		t.mode = ModeFromCommand(st.Command)
		t.startedAt = t.now()
		t.reattached = true
		t.newHandleLocked()
	case StateRunning:
	default:
		t.mu.Unlock()
		return nil, ErrBusy
	}
	h := t.handle
	t.mu.Unlock()

	t.applyStatus(st)
	t.logger.Info().Str("mode", string(t.Mode())).Float64("elapsed_seconds", st.ElapsedSeconds).Msg("reattached to experiment")
	if err := t.sched.Schedule(StatusTask, t.statusEvery, t.statusTick); err != nil {
		return nil, t.abortRun(h, err)
	}
	t.emit()
	return h, nil
}

// abortRun returns the tracker to idle when the poller for a run could not be
// scheduled. The run itself continues on the backend and can be reattached.
func (t *Tracker) abortRun(h *RunHandle, err error) error {
	err = fmt.Errorf("failed to schedule status polling: %w", err)

	t.mu.Lock()
	t.logger.Warn().Err(err).Str("kind", string(t.kind)).Msg("run detached")
	t.state = StateIdle
	t.clearLocked()
	if t.handle == h {
		t.handle = nil
	}
	t.mu.Unlock()

	if h != nil {
		h.abort(err)
	}
	t.emit()
	return err
}

// ModeFromCommand infers the mode of a run started elsewhere. The scanner is
// invoked with -aml for AutoML runs.
func ModeFromCommand(cmd string) models.Mode {
	if strings.Contains(cmd, "-aml") {
		return models.ModeAutoML
	}
	return models.ModeStatic
}

// Reset returns a finished session to idle and clears all derived state.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	if err := t.transitionLocked(StateIdle); err != nil {
		t.mu.Unlock()
		return err
	}
	t.clearLocked()
	t.handle = nil
	t.mu.Unlock()

	t.cancelTasks()
	t.emit()
	return nil
}

// Close cancels every task created by the tracker. The backend run, if any,
// keeps going and can be reattached later.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.closedCh)
	t.mu.Unlock()

	t.cancelTasks()
}

func (t *Tracker) cancelTasks() {
	t.sched.Cancel(StatusTask)
	t.sched.Cancel(BatchStatusTask)
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Mode returns the mode of the tracked run.
func (t *Tracker) Mode() models.Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// Err returns the backend-reported error of a failed run.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		return nil
	}
	return t.err
}

// Elapsed returns the run time: live while running, frozen once finished.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsedLocked()
}

func (t *Tracker) elapsedLocked() time.Duration {
	switch {
	case t.state.Active():
		return t.now().Sub(t.startedAt)
	case t.state.Terminal():
		return t.finalElapsed
	}
	return 0
}

// Snapshot returns a copy of the derived state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := Snapshot{
		State:          t.state,
		Kind:           t.kind,
		Mode:           t.mode,
		Network:        t.network,
		Phase:          t.phase,
		Phases:         t.catalog().Active(t.mode == models.ModeAutoML),
		DevicesFound:   t.devices,
		HasDeviceCount: t.hasDevices,
		ScannerLines:   append([]string(nil), t.lines...),
		Output:         t.output,
		ExperimentID:   t.experimentID,
		Command:        t.command,
		Elapsed:        t.elapsedLocked(),
		Reattached:     t.reattached,
		CompletedRuns:  t.completedRuns,
		TotalRuns:      t.totalRuns,
		ExperimentIDs:  append([]string(nil), t.experimentIDs...),
	}
	if t.state != StateIdle {
		s.StartedAt = t.startedAt
	}
	if t.err != nil {
		s.Error = t.err.Message
	}
	return s
}

func (t *Tracker) transitionLocked(to State) error {
	if err := ValidateTransition(t.state, to); err != nil {
		return err
	}
	t.logger.Debug().Str("from", string(t.state)).Str("to", string(to)).Msg("session transition")
	t.state = to
	return nil
}

func (t *Tracker) clearLocked() {
	t.kind = ""
	t.mode = ""
	t.network = ""
	t.phase = t.catalog().First()
	t.devices, t.hasDevices = 0, false
	t.lines = nil
	t.output = ""
	t.experimentID = ""
	t.command = ""
	t.startedAt = time.Time{}
	t.finalElapsed = 0
	t.reattached = false
	t.requestedRuns, t.completedRuns, t.totalRuns = 0, 0, 0
	t.experimentIDs = nil
	t.err = nil
}

func (t *Tracker) newHandleLocked() *RunHandle {
	t.handle = &RunHandle{
		Kind:    t.kind,
		tracker: t,
		done:    make(chan struct{}),
	}
	return t.handle
}

func (t *Tracker) emit() {
	if t.notify != nil {
		t.notify(t.Snapshot())
	}
}
