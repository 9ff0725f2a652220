package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotlab-io/labwatch/internal/engine/logview"
	"github.com/iotlab-io/labwatch/internal/engine/phase"
	"github.com/iotlab-io/labwatch/internal/engine/scheduler"
	"github.com/iotlab-io/labwatch/internal/models"
)

func init() {
	plainOutput = true
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "Labwatch")
	assert.Contains(t, buf.String(), "Commit:")
}

func TestHistoryPath(t *testing.T) {
	p, err := historyPath("learning-curve")
	require.NoError(t, err)
	assert.Equal(t, "/experiments/learning-curve", p)

	p, err = historyPath("/experiments/exp_3/summary")
	require.NoError(t, err)
	assert.Equal(t, "/experiments/exp_3/summary", p)

	_, err = historyPath("/admin")
	assert.ErrorContains(t, err, "unknown endpoint")
}

func TestParseQuery(t *testing.T) {
	q, err := parseQuery([]string{"mode=automl", "limit=5", "mode=static"})
	require.NoError(t, err)
	assert.Equal(t, []string{"automl", "static"}, q["mode"])
	assert.Equal(t, "5", q.Get("limit"))

	_, err = parseQuery([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseQuery([]string{"=x"})
	assert.Error(t, err)
}

func TestRunParametersMergesFlagsOverDefaults(t *testing.T) {
	saved := runFlags
	t.Cleanup(func() { runFlags = saved })

	s := *models.NewSettings()
	runFlags.mode = ""
	runFlags.network = ""
	runFlags.output = ""
	runFlags.ports = ""
	p, err := runParameters(s)
	require.NoError(t, err)
	assert.Equal(t, models.ModeAutoML, p.Mode)
	assert.True(t, p.AutoML)
	assert.Equal(t, s.Run.Network, p.Network)
	assert.Equal(t, models.OutputHTML, p.Output)

	runFlags.mode = "static"
	runFlags.network = "10.0.0.0/24"
	runFlags.output = "csv"
	runFlags.ports = "1883,22"
	p, err = runParameters(s)
	require.NoError(t, err)
	assert.Equal(t, models.ModeStatic, p.Mode)
	assert.False(t, p.AutoML)
	assert.Equal(t, "10.0.0.0/24", p.Network)
	assert.Equal(t, models.OutputCSV, p.Output)
	assert.Equal(t, []int{1883, 22}, p.Ports)

	runFlags.mode = "turbo"
	_, err = runParameters(s)
	assert.Error(t, err)
}

func TestStatusLine(t *testing.T) {
	c := phase.Default()

	line := statusLine(backendStatus{
		batch: &models.BatchStatus{Status: models.RunStatusRunning, CompletedRuns: 3, TotalRuns: 10, ElapsedSeconds: 90},
	}, c)
	assert.Contains(t, line, "batch 3/10")

	output := "Starting scan\nNmap scan report for 172.20.0.5"
	single := &models.ExperimentStatus{
		Status:         models.RunStatusRunning,
		ScannerOutput:  output,
		ElapsedSeconds: 12,
		Command:        "python scanner.py -aml",
	}
	line = statusLine(backendStatus{single: single, batch: &models.BatchStatus{Status: models.RunStatusIdle}}, c)
	assert.Contains(t, line, c.Detect(output, true).Label)

	idle := statusLine(backendStatus{single: &models.ExperimentStatus{Status: models.RunStatusIdle}}, c)
	assert.NotContains(t, idle, "devices")
}

func TestRenderStatusIdle(t *testing.T) {
	var buf bytes.Buffer
	renderStatus(&buf, backendStatus{}, phase.Default(), 0)
	assert.Contains(t, buf.String(), "Nothing running")
}

func TestRenderStatusShowsBatchAndTail(t *testing.T) {
	var buf bytes.Buffer
	renderStatus(&buf, backendStatus{
		batch: &models.BatchStatus{
			Status:        models.RunStatusCompleted,
			CompletedRuns: 2,
			TotalRuns:     2,
			ExperimentIDs: []string{"exp_1", "exp_2"},
			ScannerOutput: "one\ntwo\nthree",
		},
		single: &models.ExperimentStatus{Status: models.RunStatusIdle},
	}, phase.Default(), 2)

	out := buf.String()
	assert.Contains(t, out, "Runs:")
	assert.Contains(t, out, "2/2")
	assert.Contains(t, out, "exp_1, exp_2")
	assert.Contains(t, out, "three")
	assert.NotContains(t, out, "│ one")
}

func TestStatusWatcherPrintsChangesOnly(t *testing.T) {
	var buf bytes.Buffer
	st := backendStatus{single: &models.ExperimentStatus{Status: models.RunStatusIdle}}
	fail := true
	w := &statusWatcher{
		w: &buf,
		fetch: func(context.Context) (backendStatus, error) {
			if fail {
				return st, errors.New("connection refused")
			}
			return st, nil
		},
		catalog: phase.Default,
	}

	assert.Error(t, w.tick(context.Background()))
	assert.Empty(t, buf.String())

	fail = false
	require.NoError(t, w.tick(context.Background()))
	require.NoError(t, w.tick(context.Background()))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))

	st = backendStatus{batch: &models.BatchStatus{Status: models.RunStatusRunning, CompletedRuns: 1, TotalRuns: 4}}
	require.NoError(t, w.tick(context.Background()))
	assert.Contains(t, buf.String(), "batch 1/4")
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
}

func TestStatusWatcherRunsOnScheduler(t *testing.T) {
	var calls atomic.Int32
	w := &statusWatcher{
		w: &bytes.Buffer{},
		fetch: func(context.Context) (backendStatus, error) {
			calls.Add(1)
			return backendStatus{}, errors.New("down")
		},
		catalog: phase.Default,
	}

	sched := scheduler.New(context.Background(), scheduler.WithRetry(scheduler.RetryExponential, 50*time.Millisecond))
	defer sched.Close()
	require.NoError(t, sched.Schedule(statusWatchTask, 5*time.Millisecond, w.tick, scheduler.Immediate()))

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, sched.IsActive(statusWatchTask), "failed ticks are retried")
	assert.True(t, sched.Cancel(statusWatchTask))
}

func TestLogPrinterPrintsEachLineOnce(t *testing.T) {
	var buf bytes.Buffer
	agg := logview.New()
	p := &logPrinter{w: &buf, agg: agg}

	agg.Ingest(map[string]string{"broker": "2024-01-15T10:00:00.000Z up"})
	p.printNew()
	agg.Ingest(map[string]string{"broker": "2024-01-15T10:00:00.000Z up\n2024-01-15T10:00:01.000Z client connected"})
	p.printNew()

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, " up"))
	assert.Equal(t, 1, strings.Count(out, "client connected"))
	assert.Contains(t, out, "[broker]")
}

func TestLogPrinterKeepsRepeatedUntimestampedLines(t *testing.T) {
	var buf bytes.Buffer
	agg := logview.New()
	p := &logPrinter{w: &buf, agg: agg}

	agg.Ingest(map[string]string{"sensor": "heartbeat\nreading 21.5"})
	p.printNew()
	agg.Ingest(map[string]string{"sensor": "heartbeat\nreading 21.5\nheartbeat"})
	p.printNew()
	// The window slid: the first heartbeat fell out and another arrived.
	agg.Ingest(map[string]string{"sensor": "reading 21.5\nheartbeat\nheartbeat"})
	p.printNew()
	// Unchanged window prints nothing.
	p.printNew()

	out := buf.String()
	assert.Equal(t, 3, strings.Count(out, "heartbeat"))
	assert.Equal(t, 1, strings.Count(out, "reading 21.5"))
}

func TestWindowOverlap(t *testing.T) {
	assert.Equal(t, 0, windowOverlap(nil, []string{"a"}))
	assert.Equal(t, 2, windowOverlap([]string{"a", "b", "c"}, []string{"b", "c", "d"}))
	assert.Equal(t, 3, windowOverlap([]string{"a", "b", "c"}, []string{"a", "b", "c"}))
	assert.Equal(t, 0, windowOverlap([]string{"a", "b"}, []string{"c", "d"}))
	assert.Equal(t, 1, windowOverlap([]string{"x", "x"}, []string{"x", "y"}))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}
