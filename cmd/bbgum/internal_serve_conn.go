// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bbgum/bbgum/internal/echo"
	"github.com/bbgum/bbgum/internal/logging"
	"github.com/bbgum/bbgum/internal/worker"
	"github.com/bbgum/bbgum/pkg/types"
)

// internalServeConnCmd is the body of a process-mode worker. The parent
// passes the accepted connection as fd 3; the exit code reports how the
// connection ended (0 peer closed, 3 I/O error, 143 terminated).
var internalServeConnCmd = &cobra.Command{
	Use:    "serve-conn",
	Short:  "Serve one inherited connection (internal use only)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runInternalServeConn,
}

func runInternalServeConn(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	logger, closeLog, err := logging.Setup(logging.Options{
		Console: cmd.ErrOrStderr(),
		Prefix:  "worker",
	})
	if err != nil {
		return &ExitError{Code: types.ExitFailure, Err: err}
	}
	defer func() { _ = closeLog() }()
	logger = logger.With("worker", os.Getenv(worker.EnvWorkerID), "pid", os.Getpid())

	res, err := worker.ServeInherited(ctx, echo.NewHandler(logger))
	if err != nil {
		logger.Error("cannot serve inherited connection", "error", err)
		return &ExitError{Code: types.ExitFailure}
	}

	if code := worker.ExitCodeFor(res); !code.IsSuccess() {
		return &ExitError{Code: code}
	}
	return nil
}
