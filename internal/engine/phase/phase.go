// Package phase infers the pipeline phase of a run from the scanner's
// accumulated text output.
//
// A Catalog is an ordered list of phases. Each phase carries keyword patterns;
// the detected phase is the highest-index phase whose patterns match anywhere
// in the accumulated output. Because scanner output only grows within a run,
// detection never moves backwards.
package phase

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ID identifies a phase in the catalog.
type ID string

// Built-in phase identifiers.
const (
	Init            ID = "init"
	Discovery       ID = "discovery"
	StaticTesting   ID = "static_testing"
	AutoML          ID = "automl"
	AdaptiveTesting ID = "adaptive_testing"
	Report          ID = "report"
)

// Definition is the serializable form of a phase, as stored in phases.yaml.
type Definition struct {
	ID         string   `yaml:"id"`
	Label      string   `yaml:"label"`
	AutoMLOnly bool     `yaml:"automl_only,omitempty"`
	Patterns   []string `yaml:"patterns,omitempty"`
}

// Phase is one compiled catalog entry.
type Phase struct {
	ID         ID
	Label      string
	AutoMLOnly bool

	patterns []*regexp.Regexp
}

// Match reports whether the phase marker occurs in text.
// A phase without patterns always matches.
func (p Phase) Match(text string) bool {
	if len(p.patterns) == 0 {
		return true
	}
	for _, re := range p.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// AppliesTo reports whether the phase is part of runs in the given mode.
func (p Phase) AppliesTo(automl bool) bool {
	return automl || !p.AutoMLOnly
}

// Catalog is an immutable ordered list of phases.
type Catalog struct {
	phases []Phase
}

// ErrEmptyCatalog is returned when a catalog has no phases.
var ErrEmptyCatalog = errors.New("phase catalog is empty")

// NewCatalog compiles definitions into a catalog. Patterns are matched
// case-insensitively. The first phase is the default and must apply to
// every mode.
func NewCatalog(defs []Definition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, ErrEmptyCatalog
	}
	if defs[0].AutoMLOnly {
		return nil, fmt.Errorf("first phase %q cannot be automl-only", defs[0].ID)
	}

	seen := make(map[string]struct{}, len(defs))
	phases := make([]Phase, 0, len(defs))
	for i, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("phase %d has no id", i)
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("duplicate phase id %q", d.ID)
		}
		seen[d.ID] = struct{}{}
		if i > 0 && len(d.Patterns) == 0 {
			return nil, fmt.Errorf("phase %q has no patterns", d.ID)
		}

		p := Phase{ID: ID(d.ID), Label: d.Label, AutoMLOnly: d.AutoMLOnly}
		if p.Label == "" {
			p.Label = d.ID
		}
		for _, pat := range d.Patterns {
			re, err := regexp.Compile("(?i)" + pat)
			if err != nil {
				return nil, fmt.Errorf("phase %q: invalid pattern %q: %w", d.ID, pat, err)
			}
			p.patterns = append(p.patterns, re)
		}
		phases = append(phases, p)
	}
	return &Catalog{phases: phases}, nil
}

// DefaultDefinitions returns the built-in catalog matching the scanner's
// log wording.
func DefaultDefinitions() []Definition {
	return []Definition{
		{ID: string(Init), Label: "Initializing scanner"},
		{ID: string(Discovery), Label: "Discovering devices (Nmap)", Patterns: []string{`running nmap`, `nmap scan`}},
		{ID: string(StaticTesting), Label: "Static vulnerability tests", Patterns: []string{`starting static vulnerability tests`}},
		{ID: string(AutoML), Label: "AutoML generating adaptive tests", AutoMLOnly: true, Patterns: []string{`running automl`}},
		{ID: string(AdaptiveTesting), Label: "Adaptive vulnerability tests", AutoMLOnly: true, Patterns: []string{`starting adaptive vulnerability tests`}},
		{ID: string(Report), Label: "Generating reports", Patterns: []string{`report saved as`, `iot devices identified`}},
	}
}

var defaultCatalog = mustCatalog(DefaultDefinitions())

// Default returns the built-in catalog.
func Default() *Catalog {
	return defaultCatalog
}

func mustCatalog(defs []Definition) *Catalog {
	c, err := NewCatalog(defs)
	if err != nil {
		panic(err)
	}
	return c
}

// Detect returns the most advanced phase whose marker appears in the
// accumulated output. Phases that do not apply to the mode are skipped.
// Empty or unrecognized output yields the first phase.
func (c *Catalog) Detect(output string, automl bool) Phase {
	last := 0
	if output == "" {
		return c.phases[last]
	}
	for i := 1; i < len(c.phases); i++ {
		p := c.phases[i]
		if !p.AppliesTo(automl) {
			continue
		}
		if p.Match(output) {
			last = i
		}
	}
	return c.phases[last]
}

// Phases returns every phase in catalog order.
func (c *Catalog) Phases() []Phase {
	out := make([]Phase, len(c.phases))
	copy(out, c.phases)
	return out
}

// Active returns the phases that apply to the given mode, in order.
func (c *Catalog) Active(automl bool) []Phase {
	out := make([]Phase, 0, len(c.phases))
	for _, p := range c.phases {
		if p.AppliesTo(automl) {
			out = append(out, p)
		}
	}
	return out
}

// Index returns the catalog position of id, or -1.
func (c *Catalog) Index(id ID) int {
	for i, p := range c.phases {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// First returns the default phase.
func (c *Catalog) First() Phase {
	return c.phases[0]
}

// Definitions returns the serializable form of the catalog.
func (c *Catalog) Definitions() []Definition {
	defs := make([]Definition, len(c.phases))
	for i, p := range c.phases {
		d := Definition{ID: string(p.ID), Label: p.Label, AutoMLOnly: p.AutoMLOnly}
		for _, re := range p.patterns {
			d.Patterns = append(d.Patterns, re.String()[len("(?i)"):])
		}
		defs[i] = d
	}
	return defs
}

var devicesFoundRe = regexp.MustCompile(`(?i)(\d+)\s*devices?\s*found`)

// CountDevices extracts the first "N devices found" report from the output.
func CountDevices(output string) (int, bool) {
	m := devicesFoundRe.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
