// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package worker

import (
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr { return nil }

// Non-unix platforms have no SIGTERM; termination is immediate.
func terminateProcess(p *os.Process) error {
	return p.Kill()
}

func isNoSuchProcess(error) bool { return false }
