// SPDX-License-Identifier: MPL-2.0

package worker

import (
	"errors"
	"fmt"
)

const (
	// IsolationProcess services each connection in a child process.
	IsolationProcess Isolation = "process"
	// IsolationGoroutine services each connection in a goroutine.
	IsolationGoroutine Isolation = "goroutine"

	// DefaultIsolation is used when neither flag nor profile select a mode.
	DefaultIsolation = IsolationProcess
)

// ErrInvalidIsolation is returned when an isolation mode is not recognized.
var ErrInvalidIsolation = errors.New("invalid isolation mode")

type (
	// Isolation selects how connections are isolated from each other.
	Isolation string

	// InvalidIsolationError is returned when an Isolation value is unknown.
	InvalidIsolationError struct {
		Value Isolation
	}
)

// Error implements the error interface.
func (e *InvalidIsolationError) Error() string {
	return fmt.Sprintf("invalid isolation mode %q (valid: %s, %s)", e.Value, IsolationProcess, IsolationGoroutine)
}

// Unwrap returns ErrInvalidIsolation for errors.Is() compatibility.
func (e *InvalidIsolationError) Unwrap() error { return ErrInvalidIsolation }

// Validate returns nil for known modes, *InvalidIsolationError otherwise.
func (i Isolation) Validate() error {
	switch i {
	case IsolationProcess, IsolationGoroutine:
		return nil
	default:
		return &InvalidIsolationError{Value: i}
	}
}

// String returns the string representation of the Isolation.
func (i Isolation) String() string { return string(i) }

// ParseIsolation parses s; the empty string yields DefaultIsolation.
func ParseIsolation(s string) (Isolation, error) {
	if s == "" {
		return DefaultIsolation, nil
	}
	i := Isolation(s)
	if err := i.Validate(); err != nil {
		return "", err
	}
	return i, nil
}
