// SPDX-License-Identifier: MPL-2.0

package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultName is the profile loaded when none is requested.
	DefaultName = "default.json"

	// EnvPrefix prefixes environment overrides of profile keys.
	EnvPrefix = "BBGUM"

	// EnvProfilesDir overrides DefaultDir.
	EnvProfilesDir = "BBGUM_PROFILES_DIR"

	// MaxSize is the largest profile accepted, in bytes.
	MaxSize = 4 << 20

	// DefaultKillGrace is the default for server.kill_grace.
	DefaultKillGrace = 2 * time.Second
)

var (
	// ErrNotFound is returned when the profile file does not exist.
	ErrNotFound = errors.New("profile not found")
	// ErrUnsupportedFormat is returned for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported profile format")
	// ErrTooLarge is returned for profiles larger than MaxSize.
	ErrTooLarge = errors.New("profile too large")
	// ErrInvalid is returned when a profile does not parse or violates the
	// schema.
	ErrInvalid = errors.New("invalid profile")
)

type (
	// Profile is a loaded configuration profile.
	Profile struct {
		// Path is the file the profile was read from.
		Path   string        `mapstructure:"-"`
		Server ServerSection `mapstructure:"server"`
		Log    LogSection    `mapstructure:"log"`
		// Tree is the decoded document as written, including unknown keys.
		Tree map[string]any `mapstructure:"-"`
		// Effective is every known setting after defaults and environment
		// overrides were applied.
		Effective map[string]any `mapstructure:"-"`
	}

	// ServerSection holds the "server" keys.
	ServerSection struct {
		Hostname      string        `mapstructure:"hostname"`
		Isolation     string        `mapstructure:"isolation"`
		KillGrace     time.Duration `mapstructure:"kill_grace"`
		StatusAddress string        `mapstructure:"status_address"`
	}

	// LogSection holds the "log" keys.
	LogSection struct {
		File string `mapstructure:"file"`
	}

	// LoadError reports which file failed to load.
	LoadError struct {
		Path string
		Err  error
	}
)

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("load profile %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error { return e.Err }

// DefaultDir returns the profiles directory: $BBGUM_PROFILES_DIR when set,
// ~/resources/profiles otherwise.
func DefaultDir() (string, error) {
	if dir := os.Getenv(EnvProfilesDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, "resources", "profiles"), nil
}
