// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultListenPort is the port the echo service binds when none is given.
const DefaultListenPort ListenPort = 10080

// ErrInvalidListenPort is the sentinel error wrapped by InvalidListenPortError.
var ErrInvalidListenPort = errors.New("invalid listen port")

type (
	// ListenPort represents a TCP port for server listening.
	// The zero value (0) is valid and asks the kernel for an ephemeral port.
	// Non-zero values must be in the range 1–65535.
	ListenPort int

	// InvalidListenPortError is returned when a ListenPort value is
	// outside the valid range (0 or 1–65535), or when a textual port
	// cannot be parsed.
	InvalidListenPortError struct {
		Value ListenPort
		Input string
	}
)

// ParseListenPort parses a decimal port from the command line or a profile.
// An empty string yields DefaultListenPort.
func ParseListenPort(s string) (ListenPort, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultListenPort, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &InvalidListenPortError{Value: -1, Input: s}
	}
	p := ListenPort(n)
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return p, nil
}

// String returns the decimal string representation of the ListenPort.
func (p ListenPort) String() string { return strconv.Itoa(int(p)) }

// IsEphemeral reports whether the port asks the kernel to pick one.
func (p ListenPort) IsEphemeral() bool { return p == 0 }

// Validate returns an error if the ListenPort is outside the valid range.
func (p ListenPort) Validate() error {
	if p < 0 || p > 65535 {
		return &InvalidListenPortError{Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidListenPortError.
func (e *InvalidListenPortError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("invalid listen port %q: must be 0 (ephemeral) or 1-65535", e.Input)
	}
	return fmt.Sprintf("invalid listen port %d: must be 0 (ephemeral) or 1-65535", e.Value)
}

// Unwrap returns ErrInvalidListenPort for errors.Is() compatibility.
func (e *InvalidListenPortError) Unwrap() error { return ErrInvalidListenPort }
