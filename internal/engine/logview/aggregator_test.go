package logview

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotlab-io/labwatch/internal/engine/scheduler"
	"github.com/iotlab-io/labwatch/internal/models"
)

func TestParseLine(t *testing.T) {
	l := ParseLine("scanner", "2024-01-15T12:34:56.789012345Z Running nmap")
	assert.True(t, l.HasTime())
	assert.Equal(t, "12:34:56", l.Clock)
	assert.Equal(t, "Running nmap", l.Message)
	assert.Equal(t, time.Date(2024, 1, 15, 12, 34, 56, 0, time.UTC), l.Timestamp)

	l = ParseLine("scanner", "Traceback (most recent call last):")
	assert.False(t, l.HasTime())
	assert.Equal(t, "Traceback (most recent call last):", l.Message)

	// Whole seconds without a fraction are not a recognized prefix.
	l = ParseLine("x", "2024-01-15T12:34:56Z hi")
	assert.False(t, l.HasTime())
}

func TestUnifiedOrdersByTimestamp(t *testing.T) {
	a := New()
	a.Ingest(map[string]string{
		"A": "2024-01-15T10:00:00.000Z hello",
		"B": "2024-01-15T09:59:59.000Z world",
	})

	lines := a.Unified(Filter{})
	require.Len(t, lines, 2)
	assert.Equal(t, "B", lines[0].Container)
	assert.Equal(t, "world", lines[0].Message)
	assert.Equal(t, "A", lines[1].Container)
}

func TestUnifiedPutsUntimestampedLinesFirst(t *testing.T) {
	a := New()
	a.Ingest(map[string]string{
		"scanner": "2024-01-15T10:00:01.0Z b\nbanner one\n2024-01-15T10:00:00.0Z a\nbanner two",
		"http_1":  "plain\n\n",
	})

	var got []string
	for _, l := range a.Unified(Filter{}) {
		got = append(got, l.Message)
	}
	assert.Equal(t, []string{"plain", "banner one", "banner two", "a", "b"}, got)
}

func TestUnifiedIsBounded(t *testing.T) {
	a := New()
	streams := make(map[string]string)
	for c := 0; c < 5; c++ {
		var b strings.Builder
		for i := 0; i < 100; i++ {
			fmt.Fprintf(&b, "2024-01-15T10:%02d:%02d.000Z c%d line %d\n", i/60, i%60, c, i)
		}
		streams[fmt.Sprintf("c%d", c)] = b.String()
	}
	a.Ingest(streams)

	lines := a.Unified(Filter{})
	require.Len(t, lines, DefaultUnifiedLimit)
	// The most recent lines survive the cut.
	assert.Contains(t, lines[len(lines)-1].Message, "line 99")

	a = New(WithLimits(10, 0))
	a.Ingest(streams)
	assert.Len(t, a.Unified(Filter{}), 10)
}

func TestSplitIsBoundedPerPanel(t *testing.T) {
	a := New()
	var b strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	a.Ingest(map[string]string{"scanner": b.String(), "mqtt_broker": "one\ntwo"})
	a.SetContainers([]models.ContainerInfo{{Name: "scanner", Status: "running", Image: "lab/scanner"}})

	panels := a.Split(Filter{})
	require.Len(t, panels, 2)
	assert.Equal(t, "mqtt_broker", panels[0].Name)
	assert.Len(t, panels[0].Lines, 2)

	assert.Equal(t, "scanner", panels[1].Name)
	require.Len(t, panels[1].Lines, DefaultSplitLimit)
	assert.Equal(t, "line 20", panels[1].Lines[0].Message)
	assert.Equal(t, "line 49", panels[1].Lines[DefaultSplitLimit-1].Message)
	assert.Equal(t, "running", panels[1].Info.Status)
}

func TestFilterComposesWithAnd(t *testing.T) {
	a := New()
	a.Ingest(map[string]string{
		"http_camera": "x",
		"http_plug":   "y",
		"ssh_router":  "z",
	})

	assert.Equal(t, []string{"http_camera", "http_plug"}, a.Visible(Filter{Text: "HTTP"}))
	assert.Equal(t, []string{"http_plug", "ssh_router"}, a.Visible(Filter{Include: []string{"http_plug", "ssh_router"}}))
	assert.Equal(t, []string{"http_plug"}, a.Visible(Filter{Text: "http", Include: []string{"http_plug", "ssh_router"}}))
	assert.Empty(t, a.Visible(Filter{Text: "coap"}))
	assert.Len(t, a.Unified(Filter{Text: "ssh"}), 1)
}

func TestIngestReplacesAndNeverMutatesInput(t *testing.T) {
	a := New()
	in := map[string]string{"scanner": "a\nb"}
	a.Ingest(in)
	in["scanner"] = "changed"
	in["extra"] = "x"

	assert.Equal(t, []string{"scanner"}, a.Names())
	assert.Len(t, a.Unified(Filter{}), 2)

	a.Ingest(map[string]string{"scanner": "b\nc"})
	var got []string
	for _, l := range a.Unified(Filter{}) {
		got = append(got, l.Message)
	}
	assert.Equal(t, []string{"b", "c"}, got)

	v := a.Version()
	a.Ingest(nil)
	assert.Equal(t, v, a.Version())
	assert.Len(t, a.Unified(Filter{}), 2)
}

func TestAppend(t *testing.T) {
	a := New()
	a.Append("scanner", "first")
	a.Append("scanner", "second\nthird\n")
	a.Append("scanner", "fourth")
	a.Append("scanner", "")

	lines := a.Single("scanner", 0)
	require.Len(t, lines, 4)
	assert.Equal(t, "fourth", lines[3].Message)
	assert.Len(t, a.Single("scanner", 2), 2)
}

func TestFamily(t *testing.T) {
	assert.Equal(t, "scanner", Family("scanner"))
	assert.Equal(t, "http", Family("http_camera"))
	assert.Equal(t, "modbus", Family("modbus_plc"))
	assert.Equal(t, "other", Family("postgres"))
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	lines []string
}

func (s *fakeSource) Logs(ctx context.Context, tail int, filter string) (*models.LogsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lines = append(s.lines, fmt.Sprintf("2024-01-15T10:00:%02d.000Z tick %d", s.calls%60, s.calls))
	window := s.lines
	if len(window) > tail {
		window = window[len(window)-tail:]
	}
	return &models.LogsResponse{
		Logs:          map[string]string{"scanner": strings.Join(window, "\n")},
		ContainerInfo: []models.ContainerInfo{{Name: "scanner", Status: "running"}},
	}, nil
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestFollowerPauseResumeWithoutDuplication(t *testing.T) {
	sched := scheduler.New(context.Background())
	defer sched.Close()

	src := &fakeSource{}
	agg := New()
	f := NewFollower(src, agg, sched, WithTail(80), WithPeriod(10*time.Millisecond))
	require.NoError(t, f.Start())

	require.Eventually(t, func() bool { return src.Calls() >= 3 }, time.Second, time.Millisecond)

	assert.True(t, f.Toggle())
	assert.True(t, f.Paused())
	time.Sleep(30 * time.Millisecond)
	frozen := agg.Unified(Filter{})
	calls := src.Calls()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, calls, src.Calls())
	assert.Equal(t, frozen, agg.Unified(Filter{}))
	assert.NotEmpty(t, frozen)

	f.Resume()
	require.Eventually(t, func() bool { return src.Calls() > calls+2 }, time.Second, time.Millisecond)

	seen := make(map[string]bool)
	for _, l := range agg.Unified(Filter{}) {
		assert.False(t, seen[l.Raw], "duplicate line %q", l.Raw)
		seen[l.Raw] = true
	}
	info, ok := agg.Container("scanner")
	require.True(t, ok)
	assert.Equal(t, "running", info.Status)

	f.Stop()
	assert.NotContains(t, sched.Active(), TaskName)
}
