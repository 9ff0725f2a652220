// Package logview merges per-container log text into bounded views.
//
// The aggregator stores the latest raw text of each container. Polling
// transports replace a container's text wholesale on every fetch, since the
// backend returns a tail window rather than a delta; push transports append.
// Views are derived on demand and never modify the stored text.
package logview

import (
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/iotlab-io/labwatch/internal/models"
)

// Default view bounds.
const (
	DefaultUnifiedLimit = 300
	DefaultSplitLimit   = 30
)

// maxAppendedLines bounds a container's text when it grows through Append.
const maxAppendedLines = 2000

// Filter selects containers by name. Text is a case-insensitive substring
// match; Include is an explicit allow-list where empty means all. Both must
// hold for a container to be shown.
type Filter struct {
	Text    string
	Include []string
}

// Match reports whether the container passes the filter.
func (f Filter) Match(name string) bool {
	if f.Text != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(f.Text)) {
		return false
	}
	if len(f.Include) > 0 && !slices.Contains(f.Include, name) {
		return false
	}
	return true
}

// Panel is one container's slice of the split view.
type Panel struct {
	Name  string
	Info  models.ContainerInfo
	Lines []Line
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLimits overrides the unified and per-panel line bounds.
// Non-positive values keep the defaults.
func WithLimits(unified, split int) Option {
	return func(a *Aggregator) {
		if unified > 0 {
			a.unifiedLimit = unified
		}
		if split > 0 {
			a.splitLimit = split
		}
	}
}

// Aggregator holds the current log text of every container.
type Aggregator struct {
	mu           sync.RWMutex
	logs         map[string]string
	containers   []models.ContainerInfo
	version      uint64
	unifiedLimit int
	splitLimit   int
}

// New creates an empty aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		logs:         make(map[string]string),
		unifiedLimit: DefaultUnifiedLimit,
		splitLimit:   DefaultSplitLimit,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ingest replaces the stored logs with streams. A nil map leaves the current
// content untouched, matching a fetch that returned no logs field.
func (a *Aggregator) Ingest(streams map[string]string) {
	if streams == nil {
		return
	}
	next := make(map[string]string, len(streams))
	for name, text := range streams {
		next[name] = text
	}

	a.mu.Lock()
	a.logs = next
	a.version++
	a.mu.Unlock()
}

// IngestResponse applies a /logs response: the log map and, when present,
// the container status list.
func (a *Aggregator) IngestResponse(resp *models.LogsResponse) {
	if resp == nil {
		return
	}
	a.Ingest(resp.Logs)
	if resp.ContainerInfo != nil {
		a.SetContainers(resp.ContainerInfo)
	}
}

// Append adds text to the end of one container's stream.
func (a *Aggregator) Append(name, text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	cur := a.logs[name]
	if cur != "" && !strings.HasSuffix(cur, "\n") {
		cur += "\n"
	}
	cur += text
	if lines := splitLines(cur); len(lines) > maxAppendedLines {
		cur = strings.Join(lines[len(lines)-maxAppendedLines:], "\n")
	}
	a.logs[name] = cur
	a.version++
}

// SetContainers replaces the container status list.
func (a *Aggregator) SetContainers(info []models.ContainerInfo) {
	cp := make([]models.ContainerInfo, len(info))
	copy(cp, info)

	a.mu.Lock()
	a.containers = cp
	a.version++
	a.mu.Unlock()
}

// Container returns the status entry for name.
func (a *Aggregator) Container(name string) (models.ContainerInfo, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.containerLocked(name)
}

func (a *Aggregator) containerLocked(name string) (models.ContainerInfo, bool) {
	for _, c := range a.containers {
		if c.Name == name {
			return c, true
		}
	}
	return models.ContainerInfo{}, false
}

// Clear drops every stored stream.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.logs = make(map[string]string)
	a.version++
	a.mu.Unlock()
}

// Version increases on every change and lets renderers skip unchanged frames.
func (a *Aggregator) Version() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.version
}

// Names returns every container name, sorted.
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.namesLocked(Filter{})
}

// Visible returns the sorted container names passing f.
func (a *Aggregator) Visible(f Filter) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.namesLocked(f)
}

func (a *Aggregator) namesLocked(f Filter) []string {
	names := make([]string, 0, len(a.logs))
	for name := range a.logs {
		if f.Match(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Unified merges the lines of every visible container into one sequence.
// Lines without a timestamp come first in container order; timestamped lines
// follow in lexicographic order of the raw text, which is chronological for
// ISO-8601 prefixes. Only the most recent lines up to the unified limit are
// returned.
func (a *Aggregator) Unified(f Filter) []Line {
	a.mu.RLock()
	var lines []Line
	for _, name := range a.namesLocked(f) {
		for _, raw := range splitLines(a.logs[name]) {
			lines = append(lines, ParseLine(name, raw))
		}
	}
	limit := a.unifiedLimit
	a.mu.RUnlock()

	sort.SliceStable(lines, func(i, j int) bool {
		li, lj := lines[i], lines[j]
		switch {
		case !li.HasTime() && !lj.HasTime():
			return false
		case !li.HasTime():
			return true
		case !lj.HasTime():
			return false
		}
		return li.Raw < lj.Raw
	})

	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines
}

// Split returns one panel per visible container with its most recent lines
// in their own order.
func (a *Aggregator) Split(f Filter) []Panel {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := a.namesLocked(f)
	panels := make([]Panel, 0, len(names))
	for _, name := range names {
		raw := splitLines(a.logs[name])
		if len(raw) > a.splitLimit {
			raw = raw[len(raw)-a.splitLimit:]
		}
		p := Panel{Name: name, Lines: make([]Line, len(raw))}
		p.Info, _ = a.containerLocked(name)
		for i, r := range raw {
			p.Lines[i] = ParseLine(name, r)
		}
		panels = append(panels, p)
	}
	return panels
}

// Single returns the last n lines of one container, or all lines when n is
// not positive.
func (a *Aggregator) Single(name string, n int) []Line {
	a.mu.RLock()
	raw := splitLines(a.logs[name])
	a.mu.RUnlock()

	if n > 0 && len(raw) > n {
		raw = raw[len(raw)-n:]
	}
	lines := make([]Line, len(raw))
	for i, r := range raw {
		lines[i] = ParseLine(name, r)
	}
	return lines
}
