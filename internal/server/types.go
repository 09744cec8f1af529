// SPDX-License-Identifier: MPL-2.0

package server

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/bbgum/bbgum/internal/worker"
	"github.com/bbgum/bbgum/pkg/types"
)

// DefaultShutdownTimeout bounds how long shutdown waits for workers.
const DefaultShutdownTimeout = 10 * time.Second

// maxHostnameLength is the DNS limit on a full hostname.
const maxHostnameLength = 253

var (
	// ErrInvalidHostAddress is the sentinel wrapped by InvalidHostAddressError.
	ErrInvalidHostAddress = errors.New("invalid host address")
	// ErrInvalidDuration is returned for negative timeouts.
	ErrInvalidDuration = errors.New("invalid duration")
)

type (
	// HostAddress is the interface to bind. Empty means all interfaces.
	HostAddress string

	// InvalidHostAddressError is returned when a HostAddress is neither an
	// IP literal nor a plausible hostname.
	InvalidHostAddressError struct {
		Value  HostAddress
		Reason string
	}

	// Config holds the command-line level settings of a Server. Zero values
	// fall back to the profile, then to built-in defaults.
	Config struct {
		// Profile is a profile name or path handed to the ProfileLoader.
		Profile string
		// Host overrides the profile's server.hostname.
		Host HostAddress
		// Port to listen on; 0 picks an ephemeral port.
		Port types.ListenPort
		// Isolation overrides the profile's server.isolation.
		Isolation worker.Isolation
		// KillGrace overrides the profile's server.kill_grace.
		KillGrace time.Duration
		// ShutdownTimeout bounds worker termination on shutdown.
		ShutdownTimeout time.Duration
	}
)

// Error implements the error interface.
func (e *InvalidHostAddressError) Error() string {
	return fmt.Sprintf("invalid host address %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidHostAddress for errors.Is() compatibility.
func (e *InvalidHostAddressError) Unwrap() error { return ErrInvalidHostAddress }

// String returns the string representation of the HostAddress.
func (h HostAddress) String() string { return string(h) }

// IsAllInterfaces reports whether h binds every interface.
func (h HostAddress) IsAllInterfaces() bool { return h == "" }

// Validate accepts the empty string, IP literals, and hostnames made of
// letters, digits, hyphens and dots.
func (h HostAddress) Validate() error {
	s := string(h)
	if s == "" || net.ParseIP(s) != nil {
		return nil
	}
	if len(s) > maxHostnameLength {
		return &InvalidHostAddressError{Value: h, Reason: "too long"}
	}
	for _, label := range strings.Split(s, ".") {
		if label == "" {
			return &InvalidHostAddressError{Value: h, Reason: "empty label"}
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return &InvalidHostAddressError{Value: h, Reason: "label starts or ends with a hyphen"}
		}
		for _, r := range label {
			if !isHostRune(r) {
				return &InvalidHostAddressError{Value: h, Reason: fmt.Sprintf("unexpected character %q", r)}
			}
		}
	}
	return nil
}

func isHostRune(r rune) bool {
	return r == '-' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// Validate checks every field and returns *InvalidConfigError listing all
// problems, or nil.
func (c Config) Validate() error {
	var errs []error
	if err := c.Port.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Host.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Isolation != "" {
		if err := c.Isolation.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.KillGrace < 0 {
		errs = append(errs, fmt.Errorf("%w: kill grace %s", ErrInvalidDuration, c.KillGrace))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: shutdown timeout %s", ErrInvalidDuration, c.ShutdownTimeout))
	}
	if err := checkKillGrace(c.KillGrace, c.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// checkKillGrace rejects a kill grace that would use up the whole shutdown
// budget on a single worker. A zero shutdown timeout means the default.
func checkKillGrace(killGrace, shutdownTimeout time.Duration) error {
	if shutdownTimeout == 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	if killGrace > 0 && shutdownTimeout > 0 && killGrace >= shutdownTimeout {
		return fmt.Errorf("%w: kill grace %s must be shorter than the shutdown timeout %s",
			ErrInvalidDuration, killGrace, shutdownTimeout)
	}
	return nil
}
