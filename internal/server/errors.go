// SPDX-License-Identifier: MPL-2.0

package server

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrServer is the root of every error returned by this package.
	ErrServer = errors.New("bbgum server error")

	// ErrConfiguration is returned when the server cannot be configured,
	// most often because the profile is missing or invalid.
	ErrConfiguration = fmt.Errorf("%w: configuration", ErrServer)
	// ErrBind is returned when the listening endpoint cannot be bound.
	ErrBind = fmt.Errorf("%w: bind", ErrServer)
	// ErrAccept is returned when the accept loop fails unrecoverably.
	ErrAccept = fmt.Errorf("%w: accept", ErrServer)
)

type (
	// ConfigurationError reports a profile that could not be loaded or
	// holds unusable values.
	ConfigurationError struct {
		Profile string
		Err     error
	}

	// BindError reports a failure to bind the listening endpoint.
	BindError struct {
		Address string
		Err     error
	}

	// AcceptError reports an unrecoverable accept failure.
	AcceptError struct {
		Err error
	}

	// InvalidConfigError aggregates every invalid field of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}
)

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("problems came up when reading configuration profile %q: %v", e.Profile, e.Err)
}

// Unwrap returns ErrConfiguration and the cause.
func (e *ConfigurationError) Unwrap() []error { return []error{ErrConfiguration, e.Err} }

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Address, e.Err)
}

// Unwrap returns ErrBind and the cause.
func (e *BindError) Unwrap() []error { return []error{ErrBind, e.Err} }

func (e *AcceptError) Error() string {
	return fmt.Sprintf("accept: %v", e.Err)
}

// Unwrap returns ErrAccept and the cause.
func (e *AcceptError) Unwrap() []error { return []error{ErrAccept, e.Err} }

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return "invalid server config: " + strings.Join(msgs, "; ")
}

// Unwrap returns ErrConfiguration followed by every field error.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrConfiguration}, e.FieldErrors...)
}
