// SPDX-License-Identifier: MPL-2.0

//go:build unix

package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func TestIsTemporary(t *testing.T) {
	t.Parallel()

	wrap := func(errno error) error {
		return &net.OpError{Op: "accept", Net: "tcp", Err: os.NewSyscallError("accept4", errno)}
	}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "aborted", err: wrap(unix.ECONNABORTED), want: true},
		{name: "process fd limit", err: wrap(unix.EMFILE), want: true},
		{name: "system fd limit", err: wrap(unix.ENFILE), want: true},
		{name: "closed listener", err: net.ErrClosed, want: false},
		{name: "bad descriptor", err: wrap(unix.EBADF), want: false},
		{name: "plain", err: errors.New("boom"), want: false},
		{name: "wrapped", err: fmt.Errorf("outer: %w", wrap(unix.EMFILE)), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isTemporary(tt.err); got != tt.want {
				t.Errorf("isTemporary(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
