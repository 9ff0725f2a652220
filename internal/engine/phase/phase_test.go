package phase

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		output string
		automl bool
		want   ID
	}{
		{name: "empty", output: "", automl: true, want: Init},
		{name: "empty static", output: "", automl: false, want: Init},
		{name: "garbled", output: "\x00\x01 ???", automl: true, want: Init},
		{name: "init banner", output: "Inicializando...", automl: true, want: Init},
		{name: "discovery", output: "Running nmap scan on network", automl: true, want: Discovery},
		{name: "discovery case", output: "NMAP SCAN completed", automl: false, want: Discovery},
		{name: "static", output: "Running Nmap\nStarting static vulnerability tests...", automl: false, want: StaticTesting},
		{name: "automl", output: "Running nmap\nRunning AutoML to generate test cases", automl: true, want: AutoML},
		{name: "automl ignored in static mode", output: "Running nmap\nRunning AutoML to generate test cases", automl: false, want: Discovery},
		{name: "adaptive", output: "Running AutoML\nStarting adaptive vulnerability tests...", automl: true, want: AdaptiveTesting},
		{name: "report", output: "Report saved as report.html", automl: false, want: Report},
		{name: "iot devices identified", output: "5 IoT devices identified", automl: true, want: Report},
		{name: "highest match wins", output: "running automl ... report saved as x.html", automl: true, want: Report},
		{name: "out of order markers", output: "report saved as a.html\nrunning nmap", automl: false, want: Report},
	}

	c := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Detect(tt.output, tt.automl)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestDetectIsMonotonic(t *testing.T) {
	c := Default()
	chunks := []string{
		"Inicializando...",
		"Running nmap scan on network 172.20.0.0/27",
		"3 devices found",
		"Starting static vulnerability tests...",
		"Running AutoML to generate test cases",
		"Starting adaptive vulnerability tests...",
		"some unrelated chatter",
		"Report saved as report.html",
	}

	for _, automl := range []bool{true, false} {
		var acc string
		prev := -1
		for _, chunk := range chunks {
			acc += "\n" + chunk
			idx := c.Index(c.Detect(acc, automl).ID)
			assert.GreaterOrEqual(t, idx, prev, "phase regressed after %q (automl=%v)", chunk, automl)
			prev = idx
		}
		assert.Equal(t, Report, c.Detect(acc, automl).ID)
	}
}

func TestActive(t *testing.T) {
	c := Default()

	ids := func(ps []Phase) []ID {
		out := make([]ID, len(ps))
		for i, p := range ps {
			out[i] = p.ID
		}
		return out
	}

	assert.Equal(t, []ID{Init, Discovery, StaticTesting, AutoML, AdaptiveTesting, Report}, ids(c.Active(true)))
	assert.Equal(t, []ID{Init, Discovery, StaticTesting, Report}, ids(c.Active(false)))
}

func TestNewCatalogValidation(t *testing.T) {
	tests := []struct {
		name string
		defs []Definition
	}{
		{name: "empty", defs: nil},
		{name: "missing id", defs: []Definition{{Label: "x"}}},
		{name: "duplicate", defs: []Definition{{ID: "a"}, {ID: "a", Patterns: []string{"x"}}}},
		{name: "automl-only first", defs: []Definition{{ID: "a", AutoMLOnly: true}}},
		{name: "no patterns", defs: []Definition{{ID: "a"}, {ID: "b"}}},
		{name: "bad regex", defs: []Definition{{ID: "a"}, {ID: "b", Patterns: []string{"("}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.defs)
			assert.Error(t, err)
		})
	}
}

func TestDefinitionsRoundTrip(t *testing.T) {
	c := Default()
	again, err := NewCatalog(c.Definitions())
	require.NoError(t, err)
	assert.Equal(t, DefaultDefinitions(), again.Definitions())
}

func TestCountDevices(t *testing.T) {
	n, ok := CountDevices("scan done\n12 devices found on 172.20.0.0/27\n1 device found")
	require.True(t, ok)
	assert.Equal(t, 12, n)

	_, ok = CountDevices("no hosts up")
	assert.False(t, ok)
}

func TestLoadFileAndStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phases.yaml")

	store, err := OpenStore(path)
	require.NoError(t, err)
	assert.Same(t, Default(), store.Load())

	custom := []Definition{
		{ID: "init", Label: "Starting"},
		{ID: "probe", Label: "Probing", Patterns: []string{`probing hosts`}},
	}
	c, err := NewCatalog(custom)
	require.NoError(t, err)
	require.NoError(t, WriteFile(path, c))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ID("probe"), loaded.Detect("Probing hosts now", false).ID)

	store, err = OpenStore(path)
	require.NoError(t, err)
	assert.Equal(t, 2, len(store.Load().Phases()))
}

func TestWatcherReloadsCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phases.yaml")
	store := NewStore(nil)

	reloaded := make(chan *Catalog, 4)
	w, err := NewWatcher(path, store, zerolog.Nop(), func(c *Catalog) { reloaded <- c })
	require.NoError(t, err)
	defer w.Close()

	yamlDoc := strings.Join([]string{
		"version: 1",
		"phases:",
		"  - id: init",
		"    label: Starting",
		"  - id: fuzz",
		"    label: Fuzzing",
		"    patterns: [\"fuzzing target\"]",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	select {
	case c := <-reloaded:
		assert.Equal(t, ID("fuzz"), c.Detect("fuzzing target 10.0.0.1", false).ID)
	case <-time.After(3 * time.Second):
		t.Fatal("catalog was not reloaded")
	}
	assert.Equal(t, ID("fuzz"), store.Load().Detect("FUZZING TARGET", true).ID)

	// A broken edit keeps the previous catalog.
	require.NoError(t, os.WriteFile(path, []byte("phases: [{id: init}, {id: x}]"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, ID("fuzz"), store.Load().Detect("fuzzing target", false).ID)
}
