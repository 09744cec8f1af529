// SPDX-License-Identifier: MPL-2.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/bbgum/bbgum/internal/echo"
	"github.com/bbgum/bbgum/pkg/types"
)

const (
	// InheritedConnFD is the descriptor number of the connection in a
	// process-mode worker (the first entry of exec.Cmd.ExtraFiles).
	InheritedConnFD = 3

	// EnvWorkerID carries the worker ID into the child's environment.
	EnvWorkerID = "BBGUM_WORKER_ID"
)

// ErrNoInheritedConn is returned when fd 3 is not a usable connection.
var ErrNoInheritedConn = errors.New("no inherited connection on fd 3")

// ServeInherited serves the connection inherited on fd 3 with handler.
// Cancelling ctx (typically on SIGTERM) terminates the connection.
func ServeInherited(ctx context.Context, handler *echo.Handler) (echo.Result, error) {
	f := os.NewFile(InheritedConnFD, "bbgum-conn")
	if f == nil {
		return echo.Result{}, ErrNoInheritedConn
	}
	conn, err := net.FileConn(f)
	// FileConn dups the descriptor; the original is no longer needed.
	_ = f.Close()
	if err != nil {
		return echo.Result{}, fmt.Errorf("%w: %w", ErrNoInheritedConn, err)
	}
	return handler.Serve(ctx, conn), nil
}

// ExitCodeFor maps a handler result to the child's exit code, which the
// parent decodes back into an Outcome.
func ExitCodeFor(res echo.Result) types.ExitCode {
	switch res.Outcome {
	case echo.OutcomeEOF:
		return types.ExitSuccess
	case echo.OutcomeTerminated:
		return types.ExitTerminated
	default:
		return types.ExitConnectionIO
	}
}
