// SPDX-License-Identifier: MPL-2.0

//go:build unix

package worker

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr puts the child in its own process group so that a terminal
// Ctrl-C reaches only the parent, which then terminates workers itself.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func terminateProcess(p *os.Process) error {
	return unix.Kill(p.Pid, unix.SIGTERM)
}

func isNoSuchProcess(err error) bool {
	return errors.Is(err, unix.ESRCH)
}
