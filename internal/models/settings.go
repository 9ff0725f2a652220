package models

import "time"

// APIConfig holds the backend connection settings.
type APIConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// PollConfig holds the polling cadences and the retry policy for failed polls.
type PollConfig struct {
	Status     time.Duration `yaml:"status"`
	Batch      time.Duration `yaml:"batch"`
	Logs       time.Duration `yaml:"logs"`
	Summary    time.Duration `yaml:"summary"`
	Retry      string        `yaml:"retry"` // "fixed" | "exponential"
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// LogsConfig holds the log view limits.
type LogsConfig struct {
	Tail         int `yaml:"tail"`
	UnifiedLimit int `yaml:"unified_limit"`
	SplitLimit   int `yaml:"split_limit"`
}

// RunDefaults pre-fill the run form and the run command flags.
type RunDefaults struct {
	Mode    string `yaml:"mode"`
	Network string `yaml:"network"`
	Output  string `yaml:"output"`
}

// BatchDefaults pre-fill batch launches.
type BatchDefaults struct {
	Runs int `yaml:"runs"`
}

// LogConfig holds diagnostic logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" | "json"
}

// TelemetryConfig holds opt-in usage reporting settings.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
}

// Settings represents global application settings.
// This corresponds to ~/.labwatch/settings.yaml.
type Settings struct {
	Version   int             `yaml:"version"`
	API       APIConfig       `yaml:"api"`
	Poll      PollConfig      `yaml:"poll"`
	Logs      LogsConfig      `yaml:"logs"`
	Run       RunDefaults     `yaml:"run"`
	Batch     BatchDefaults   `yaml:"batch"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// NewSettings creates settings with default values.
func NewSettings() *Settings {
	return &Settings{
		Version: 1,
		API: APIConfig{
			URL:     "http://localhost:8000",
			Timeout: 10 * time.Second,
		},
		Poll: PollConfig{
			Status:     2 * time.Second,
			Batch:      3 * time.Second,
			Logs:       3 * time.Second,
			Summary:    15 * time.Second,
			Retry:      "fixed",
			MaxBackoff: 30 * time.Second,
		},
		Logs: LogsConfig{
			Tail:         80,
			UnifiedLimit: 300,
			SplitLimit:   30,
		},
		Run: RunDefaults{
			Mode:    string(ModeAutoML),
			Network: "172.20.0.0/27",
			Output:  string(OutputHTML),
		},
		Batch: BatchDefaults{
			Runs: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Endpoint: "https://us.i.posthog.com",
		},
	}
}
