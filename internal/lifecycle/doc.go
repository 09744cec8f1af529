// SPDX-License-Identifier: MPL-2.0

// Package lifecycle provides the state machine shared by the long-running
// servers in bbgum: the connection server and the optional status server.
//
// A Machine moves Created -> Starting -> Running -> Stopping -> Stopped, or
// into Failed from any non-terminal state. Reads are lock-free; the error
// that caused a failure is kept under a mutex.
package lifecycle
