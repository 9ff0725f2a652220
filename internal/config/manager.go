package config

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/iotlab-io/labwatch/internal/engine/scheduler"
	"github.com/iotlab-io/labwatch/internal/models"
)

// EnvPrefix is the prefix of environment overrides. LABWATCH_POLL_MAX_BACKOFF
// maps to poll.max_backoff: the first underscore separates the section.
const EnvPrefix = "LABWATCH_"

var durationKeys = map[string]bool{
	"api.timeout":      true,
	"poll.status":      true,
	"poll.batch":       true,
	"poll.logs":        true,
	"poll.summary":     true,
	"poll.max_backoff": true,
}

// Manager merges configuration from, lowest to highest precedence: built-in
// defaults, the settings file, LABWATCH_* environment variables, and
// command-line flags.
type Manager struct {
	mu      sync.RWMutex
	k       *koanf.Koanf
	path    string
	current models.Settings
}

// NewManager creates a manager reading the settings file at path. An empty
// path means ~/.labwatch/settings.yaml.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		p, err := GlobalSettingsFile()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Manager{k: koanf.New("."), path: path, current: *models.NewSettings()}, nil
}

// Path returns the settings file path.
func (m *Manager) Path() string {
	return m.path
}

// Load merges every source. flagKeys maps flag names to config keys; only
// flags the user actually set override lower layers.
func (m *Manager) Load(flags *pflag.FlagSet, flagKeys map[string]string) error {
	k := koanf.New(".")

	defaults, err := DefaultsMap()
	if err != nil {
		return err
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return fmt.Errorf("error loading defaults: %w", err)
	}

	if FileExists(m.path) {
		if err := k.Load(file.Provider(m.path), koanfyaml.Parser()); err != nil {
			return fmt.Errorf("error loading config from %s: %w", m.path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return fmt.Errorf("error loading config from environment: %w", err)
	}

	if flags != nil && len(flagKeys) > 0 {
		overrides := make(map[string]any)
		flags.Visit(func(f *pflag.Flag) {
			if key, ok := flagKeys[f.Name]; ok {
				overrides[key] = f.Value.String()
			}
		})
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return fmt.Errorf("error loading config from flags: %w", err)
		}
	}

	var s models.Settings
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := Validate(&s); err != nil {
		return err
	}

	m.mu.Lock()
	m.k = k
	m.current = s
	m.mu.Unlock()
	return nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// Get returns a copy of the merged settings.
func (m *Manager) Get() models.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Value returns the merged value of a key, or nil.
func (m *Manager) Value(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.k.Get(key)
}

// Keys returns every known configuration key, sorted.
func (m *Manager) Keys() []string {
	defaults, err := DefaultsMap()
	if err != nil {
		return nil
	}
	k := koanf.New(".")
	_ = k.Load(confmap.Provider(defaults, "."), nil)
	keys := k.Keys()
	sort.Strings(keys)
	return keys
}

// Set writes one key to the settings file and reloads. The value is coerced
// to the key's type.
func (m *Manager) Set(key, value string) error {
	defaults, err := DefaultsMap()
	if err != nil {
		return err
	}
	dk := koanf.New(".")
	_ = dk.Load(confmap.Provider(defaults, "."), nil)
	if _, section := dk.Get(key).(map[string]any); !dk.Exists(key) || section {
		return fmt.Errorf("unknown setting %q", key)
	}

	v, err := coerce(key, dk.Get(key), value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	fk := koanf.New(".")
	if FileExists(m.path) {
		if err := fk.Load(file.Provider(m.path), koanfyaml.Parser()); err != nil {
			return fmt.Errorf("error loading config from %s: %w", m.path, err)
		}
	}
	if err := fk.Set(key, v); err != nil {
		return err
	}

	// Validate the file layer on top of defaults before persisting.
	check := koanf.New(".")
	_ = check.Load(confmap.Provider(defaults, "."), nil)
	_ = check.Load(confmap.Provider(fk.Raw(), "."), nil)
	var s models.Settings
	if err := check.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return err
	}
	if err := Validate(&s); err != nil {
		return err
	}

	data, err := fk.Marshal(koanfyaml.Parser())
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := writeFileAtomic(m.path, data); err != nil {
		return err
	}
	return m.Load(nil, nil)
}

func coerce(key string, current any, value string) (any, error) {
	if durationKeys[key] {
		d, err := cast.ToDurationE(value)
		if err != nil {
			return nil, err
		}
		return d.String(), nil
	}
	switch current.(type) {
	case bool:
		return cast.ToBoolE(value)
	case int, int64, float64:
		return cast.ToIntE(value)
	}
	return value, nil
}

// DefaultsMap renders models.NewSettings as a nested map for the defaults layer.
func DefaultsMap() (map[string]any, error) {
	data, err := yaml.Marshal(models.NewSettings())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal defaults: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse defaults: %w", err)
	}
	return m, nil
}

// Validate checks merged settings.
func Validate(s *models.Settings) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(s.API.URL) == "" {
		add("api.url must not be empty")
	}
	for key, d := range map[string]time.Duration{
		"api.timeout":      s.API.Timeout,
		"poll.status":      s.Poll.Status,
		"poll.batch":       s.Poll.Batch,
		"poll.logs":        s.Poll.Logs,
		"poll.summary":     s.Poll.Summary,
		"poll.max_backoff": s.Poll.MaxBackoff,
	} {
		if d <= 0 {
			add("%s must be positive", key)
		}
	}
	if _, err := scheduler.ParseRetryPolicy(s.Poll.Retry); err != nil {
		add("poll.retry: %v", err)
	}
	if s.Logs.Tail < 1 || s.Logs.UnifiedLimit < 1 || s.Logs.SplitLimit < 1 {
		add("logs limits must be at least 1")
	}
	if _, err := models.ParseMode(s.Run.Mode); err != nil {
		add("run.mode: %v", err)
	}
	if _, err := models.ParseOutputFormat(s.Run.Output); err != nil {
		add("run.output: %v", err)
	}
	if _, _, err := net.ParseCIDR(s.Run.Network); err != nil {
		add("run.network: %q is not a CIDR", s.Run.Network)
	}
	if s.Batch.Runs < 1 {
		add("batch.runs must be at least 1")
	}
	if _, err := zerolog.ParseLevel(s.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	if s.Log.Format != "console" && s.Log.Format != "json" {
		add("log.format must be console or json")
	}
	if s.Telemetry.Enabled && s.Telemetry.APIKey == "" {
		add("telemetry.api_key is required when telemetry is enabled")
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

// removeIfExists deletes path, ignoring a missing file.
func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Reset deletes the settings file so only defaults and overrides remain.
func (m *Manager) Reset() error {
	if err := removeIfExists(m.path); err != nil {
		return err
	}
	return m.Load(nil, nil)
}
