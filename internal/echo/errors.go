// SPDX-License-Identifier: MPL-2.0

package echo

import (
	"errors"
	"fmt"
)

// ErrConnectionIO is the sentinel for read/write failures on a connection.
var ErrConnectionIO = errors.New("connection I/O error")

// ConnectionIOError describes a failed read or write on a served connection.
type ConnectionIOError struct {
	// Op is "read" or "write".
	Op     string
	Remote string
	Err    error
}

func (e *ConnectionIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Remote, e.Err)
}

// Unwrap returns both ErrConnectionIO and the underlying cause.
func (e *ConnectionIOError) Unwrap() []error {
	return []error{ErrConnectionIO, e.Err}
}
