package config

import (
	"fmt"

	"github.com/iotlab-io/labwatch/internal/models"
)

// LoadSettingsFile reads a settings file over the built-in defaults, without
// environment or flag overrides. A missing file yields the defaults.
func LoadSettingsFile(path string) (*models.Settings, error) {
	s, err := LoadYAMLOrDefault(path, models.NewSettings)
	if err != nil {
		return nil, err
	}
	if err := Validate(s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// SaveSettingsFile validates s and writes it to path as a complete settings
// file.
func SaveSettingsFile(path string, s *models.Settings) error {
	if err := Validate(s); err != nil {
		return err
	}
	return SaveYAML(path, s)
}

// FileSettings returns the settings file layered over the defaults only.
func (m *Manager) FileSettings() (*models.Settings, error) {
	return LoadSettingsFile(m.path)
}

// Export writes the merged settings to path. The result can be passed back
// with --config.
func (m *Manager) Export(path string) error {
	s := m.Get()
	return SaveSettingsFile(path, &s)
}
