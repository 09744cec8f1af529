// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/bbgum/bbgum/internal/issue"
	"github.com/bbgum/bbgum/internal/logging"
	"github.com/bbgum/bbgum/internal/worker"
	"github.com/bbgum/bbgum/pkg/types"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	rootCmd = &cobra.Command{
		Use:   "bbgum",
		Short: "Connection-accepting echo service with supervised per-connection workers",
		Long: TitleStyle.Render("bbgum") + SubtitleStyle.Render(" - echo service with isolated per-connection workers") + `

bbgum listens on a TCP port and services every connection in its own
worker: a child process by default, or a goroutine with --isolation=goroutine.
Each worker echoes back whatever it receives until the peer closes.
Interrupting bbgum terminates and reaps every worker before exiting.

Defaults come from a configuration profile (default.json) in
~/resources/profiles; command-line flags take precedence.

` + SubtitleStyle.Render("Examples:") + `
  bbgum                       Listen on port 10080 with the default profile
  bbgum -p 9000 -c staging    Listen on 9000 with staging.json
  bbgum --status-addr 127.0.0.1:10081
                              Also serve /health, /workers and /metrics
  bbgum profile show          Print the default profile`,
		Args: cobra.NoArgs,
		RunE: runServer,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&rootFlags.debug, "debug", "d", false, "print debug information")
	flags.StringVarP(&rootFlags.profile, "config", "c", "", "load a specific config profile (name in the profiles dir, or a path)")
	flags.StringVar(&rootFlags.profilesDir, "profiles-dir", "", "directory holding profiles (default $BBGUM_PROFILES_DIR or ~/resources/profiles)")
	flags.StringVar(&rootFlags.logFile, "log-file", logging.DefaultFile, "log file path; empty disables file logging")

	local := rootCmd.Flags()
	local.StringVarP(&rootFlags.port, "port", "p", "", "launch the service on a specific port (default 10080)")
	local.StringVar(&rootFlags.host, "host", "", "interface to bind (default: profile server.hostname, else all)")
	local.StringVar(&rootFlags.isolation, "isolation", "", fmt.Sprintf("worker isolation: %s or %s (default %s)",
		worker.IsolationProcess, worker.IsolationGoroutine, worker.DefaultIsolation))
	local.DurationVar(&rootFlags.killGrace, "kill-grace", 0, "delay between SIGTERM and SIGKILL for worker processes")
	local.StringVar(&rootFlags.statusAddr, "status-addr", "", "serve the status API on this address (e.g. 127.0.0.1:10081)")

	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(internalCmd)
}

func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the root command. It is called by main.main.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(handleError),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) && exitErr.Code.Validate() == nil {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(int(types.ExitFailure))
	}
}

// errorStyle is the glamour style for actionable errors; it falls back to
// plain text when output is not a terminal.
const errorStyle = "auto"

// handleError prints command errors. Bare exit codes print nothing, and
// actionable errors are rendered with their suggestions.
func handleError(w io.Writer, styles fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		fmt.Fprint(w, issue.Render(err, rootFlags.debug, errorStyle))
		return
	}
	fang.DefaultErrorHandler(w, styles, err)
}
