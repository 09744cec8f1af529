// SPDX-License-Identifier: MPL-2.0

//go:build unix

package server

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isTemporary reports accept errors that clear up on their own: an aborted
// handshake or running out of descriptors or buffers.
func isTemporary(err error) bool {
	return errors.Is(err, unix.ECONNABORTED) ||
		errors.Is(err, unix.EMFILE) ||
		errors.Is(err, unix.ENFILE) ||
		errors.Is(err, unix.ENOBUFS) ||
		errors.Is(err, unix.ENOMEM)
}
