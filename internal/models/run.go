// Package models contains shared data structures used across the application.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Mode selects the scanning pipeline variant.
type Mode string

const (
	ModeStatic Mode = "static"
	ModeAutoML Mode = "automl"
)

// OutputFormat is the report format requested from the scanner.
type OutputFormat string

const (
	OutputHTML OutputFormat = "html"
	OutputJSON OutputFormat = "json"
	OutputCSV  OutputFormat = "csv"
)

// RunStatus is the status string reported by the backend for a run or batch.
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeStatic:
		return ModeStatic, nil
	case ModeAutoML:
		return ModeAutoML, nil
	}
	return "", fmt.Errorf("invalid mode %q (expected static or automl)", s)
}

// ParseOutputFormat validates an output format string.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputHTML:
		return OutputHTML, nil
	case OutputJSON:
		return OutputJSON, nil
	case OutputCSV:
		return OutputCSV, nil
	}
	return "", fmt.Errorf("invalid output format %q (expected html, json or csv)", s)
}

// ParsePorts parses a comma-separated port list such as "22,80,1883".
func ParsePorts(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	seen := make(map[int]struct{})
	var ports []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", part)
		}
		if p < 1 || p > 65535 {
			return nil, fmt.Errorf("port %d out of range", p)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		ports = append(ports, p)
	}
	return ports, nil
}

// RunParameters are the launch parameters of a single experiment run.
type RunParameters struct {
	Mode    Mode         `json:"mode"`
	Network string       `json:"network"`
	Output  OutputFormat `json:"output"`
	Ports   []int        `json:"-"`
	Verbose bool         `json:"verbose"`
	Test    bool         `json:"test"`
	AutoML  bool         `json:"automl"`
}

// Normalize derives AutoML from Mode and fills empty optional fields.
func (p RunParameters) Normalize() RunParameters {
	if p.Output == "" {
		p.Output = OutputHTML
	}
	p.AutoML = p.Mode == ModeAutoML
	return p
}

// Validate checks the parameters before they are sent to the backend.
func (p RunParameters) Validate() error {
	if _, err := ParseMode(string(p.Mode)); err != nil {
		return err
	}
	if _, err := ParseOutputFormat(string(p.Output)); err != nil {
		return err
	}
	if _, _, err := net.ParseCIDR(p.Network); err != nil {
		return fmt.Errorf("invalid network %q: expected CIDR notation", p.Network)
	}
	for _, port := range p.Ports {
		if port < 1 || port > 65535 {
			return fmt.Errorf("port %d out of range", port)
		}
	}
	if p.AutoML != (p.Mode == ModeAutoML) {
		return errors.New("automl flag does not match mode")
	}
	return nil
}

// PortList renders Ports as the comma-separated form field the backend expects.
func (p RunParameters) PortList() string {
	parts := make([]string, len(p.Ports))
	for i, port := range p.Ports {
		parts[i] = strconv.Itoa(port)
	}
	return strings.Join(parts, ",")
}

// MarshalJSON encodes ports as a comma-separated string, omitted when empty.
func (p RunParameters) MarshalJSON() ([]byte, error) {
	type alias RunParameters
	return json.Marshal(struct {
		alias
		Ports string `json:"ports,omitempty"`
	}{alias: alias(p), Ports: p.PortList()})
}

// BatchRequest launches a batch of identical runs.
type BatchRequest struct {
	Mode    Mode   `json:"mode"`
	Network string `json:"network"`
	Runs    int    `json:"runs"`
}

// Validate checks the batch request.
func (b BatchRequest) Validate() error {
	if _, err := ParseMode(string(b.Mode)); err != nil {
		return err
	}
	if _, _, err := net.ParseCIDR(b.Network); err != nil {
		return fmt.Errorf("invalid network %q: expected CIDR notation", b.Network)
	}
	if b.Runs < 1 {
		return fmt.Errorf("runs must be at least 1, got %d", b.Runs)
	}
	return nil
}

// LaunchResponse is returned by POST /experiments/run and /experiments/batch.
type LaunchResponse struct {
	Status  string `json:"status"`
	Command string `json:"command,omitempty"`
	Message string `json:"message,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Network string `json:"network,omitempty"`
}

// ExperimentStatus is returned by GET /experiments/status.
type ExperimentStatus struct {
	Status         RunStatus `json:"status"`
	ExperimentID   string    `json:"experiment_id,omitempty"`
	ScannerOutput  string    `json:"scanner_output,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Error          string    `json:"error,omitempty"`
	Command        string    `json:"command,omitempty"`
}

// BatchStatus is returned by GET /experiments/batch/status.
type BatchStatus struct {
	Status         RunStatus `json:"status"`
	CompletedRuns  int       `json:"completed_runs"`
	TotalRuns      int       `json:"total_runs"`
	ExperimentIDs  []string  `json:"experiment_ids"`
	ScannerOutput  string    `json:"scanner_output,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Mode           string    `json:"mode,omitempty"`
	Error          string    `json:"error,omitempty"`
}
