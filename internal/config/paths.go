// Package config handles configuration loading, saving, and path management.
package config

import (
	"os"
	"path/filepath"
)

const (
	// GlobalDirName is the name of the labwatch directory in the user's home.
	GlobalDirName = ".labwatch"

	// HomeEnv overrides the labwatch directory.
	HomeEnv = "LABWATCH_HOME"

	// TranscriptsDirName is the name of the transcripts directory.
	TranscriptsDirName = "transcripts"
)

// File names
const (
	SettingsFileName = "settings.yaml"
	PhasesFileName   = "phases.yaml"
	LogFileName      = "labwatch.log"
	LockFileName     = "launch.lock"
)

// GlobalDir returns the path to the labwatch directory (~/.labwatch/).
func GlobalDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, GlobalDirName), nil
}

func globalPath(elem ...string) (string, error) {
	dir, err := GlobalDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{dir}, elem...)...), nil
}

// GlobalSettingsFile returns the path to the settings.yaml file.
func GlobalSettingsFile() (string, error) {
	return globalPath(SettingsFileName)
}

// GlobalPhasesFile returns the path to the phase catalog override.
func GlobalPhasesFile() (string, error) {
	return globalPath(PhasesFileName)
}

// GlobalLogFile returns the path to the log file used while the TUI runs.
func GlobalLogFile() (string, error) {
	return globalPath(LogFileName)
}

// GlobalLockFile returns the path to the launch lock.
func GlobalLockFile() (string, error) {
	return globalPath(LockFileName)
}

// GlobalTranscriptsDir returns the path to the transcripts directory.
func GlobalTranscriptsDir() (string, error) {
	return globalPath(TranscriptsDirName)
}

// EnsureGlobalDir creates the labwatch directory if it doesn't exist.
func EnsureGlobalDir() error {
	dir, err := GlobalDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// EnsureTranscriptsDir creates the transcripts directory if it doesn't exist.
func EnsureTranscriptsDir() error {
	dir, err := GlobalTranscriptsDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}
