package config

import (
	"github.com/gofrs/flock"
)

// NewLaunchLock returns the cross-process lock that guards experiment
// launches, so two labwatch processes cannot start runs at the same time.
func NewLaunchLock() (*flock.Flock, error) {
	if err := EnsureGlobalDir(); err != nil {
		return nil, err
	}
	path, err := GlobalLockFile()
	if err != nil {
		return nil, err
	}
	return flock.New(path), nil
}
