// SPDX-License-Identifier: MPL-2.0

package worker

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
)

// Outcome values for a finished worker.
const (
	OutcomeEOF        Outcome = "eof"
	OutcomeError      Outcome = "error"
	OutcomeTerminated Outcome = "terminated"
	OutcomeCrashed    Outcome = "crashed"
)

var (
	// ErrAlreadyStarted is returned by Start on a worker that already ran.
	ErrAlreadyStarted = errors.New("worker already started")
	// ErrAlreadyTerminated is returned by Start after Terminate.
	ErrAlreadyTerminated = errors.New("worker already terminated")
	// ErrUnsupportedConn is returned when a connection cannot be handed to a
	// child process.
	ErrUnsupportedConn = errors.New("connection does not expose a file descriptor")
)

type (
	// ID uniquely identifies a worker for the life of the server.
	ID string

	// Outcome is how a worker's connection ended.
	Outcome string

	// Info describes a worker. It is a value copy; PID and StartedAt are set
	// once the worker starts.
	Info struct {
		ID        ID        `json:"id"`
		Remote    string    `json:"remote"`
		Isolation Isolation `json:"isolation"`
		PID       int       `json:"pid,omitempty"`
		StartedAt time.Time `json:"started_at"`
	}

	// Exit is the final status of a worker.
	Exit struct {
		Outcome Outcome
		// Code is the child exit code in process mode, or -1.
		Code int
		// Err carries the connection or crash error, if any.
		Err error
	}

	// Worker services exactly one connection.
	Worker interface {
		// Info returns a snapshot of the worker's identity.
		Info() Info
		// Start begins servicing the connection without blocking.
		Start() error
		// Terminate requests the worker to stop. It does not wait; use Done.
		// Terminating an unstarted worker releases its connection.
		Terminate() error
		// Kill stops the worker without a grace period: SIGKILL for a
		// process, a closed connection for a goroutine. It does not wait.
		Kill() error
		// Done is closed once the worker has exited and been reaped.
		Done() <-chan struct{}
		// Wait blocks until Done and returns the exit status.
		Wait() Exit
	}

	// Spawner creates unstarted workers. Prepare takes ownership of conn:
	// on error the connection has already been closed.
	Spawner interface {
		Prepare(ctx context.Context, conn net.Conn) (Worker, error)
	}
)

// NewID returns a fresh random worker ID.
func NewID() ID { return ID(uuid.NewString()) }

// String returns the string representation of the ID.
func (id ID) String() string { return string(id) }

// String returns the string representation of the Outcome.
func (o Outcome) String() string { return string(o) }

func remoteOf(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
