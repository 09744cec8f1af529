// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bbgum/bbgum/internal/issue"
	"github.com/bbgum/bbgum/internal/logging"
	"github.com/bbgum/bbgum/internal/metrics"
	"github.com/bbgum/bbgum/internal/profile"
	"github.com/bbgum/bbgum/internal/server"
	"github.com/bbgum/bbgum/internal/statusserver"
	"github.com/bbgum/bbgum/internal/supervisor"
	"github.com/bbgum/bbgum/internal/worker"
	"github.com/bbgum/bbgum/pkg/types"
)

type (
	flagValues struct {
		debug       bool
		profile     string
		profilesDir string
		logFile     string
		port        string
		host        string
		isolation   string
		killGrace   time.Duration
		statusAddr  string
	}

	// loadedProfile hands an already loaded profile (or its load error) to
	// the server, so the profile is read once even though logging needs it
	// first.
	loadedProfile struct {
		prof *profile.Profile
		err  error
	}
)

var rootFlags flagValues

func (l loadedProfile) Load(context.Context, string) (*profile.Profile, error) {
	return l.prof, l.err
}

// runServer is the root command: load the profile, set up logging, run the
// connection server (and the status server when configured) until
// interrupted.
func runServer(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	port, err := types.ParseListenPort(rootFlags.port)
	if err != nil {
		return err
	}
	isolation := worker.Isolation(rootFlags.isolation)

	loader, err := profile.NewLoader(rootFlags.profilesDir)
	if err != nil {
		return err
	}
	prof, loadErr := loader.Load(ctx, rootFlags.profile)

	logger, closeLog, err := logging.Setup(logging.Options{
		Debug:   rootFlags.debug,
		File:    resolveLogFile(cmd, prof),
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	logger.Debug("starting", "version", getVersionString(), "port", port, "profile", loader.Resolve(rootFlags.profile))

	var sup *supervisor.Supervisor
	m := metrics.New(func() int { return sup.Len() })
	sup = supervisor.New(
		supervisor.WithLogger(logging.Component(logger, "supervisor")),
		supervisor.WithExitFunc(m.WorkerExited),
	)

	srv, err := server.New(ctx, server.Config{
		Profile:   rootFlags.profile,
		Host:      server.HostAddress(rootFlags.host),
		Port:      port,
		Isolation: isolation,
		KillGrace: rootFlags.killGrace,
	}, loadedProfile{prof: prof, err: loadErr}, logger, server.WithMetrics(m), server.WithSupervisor(sup))
	if err != nil {
		logger.Error("server configuration failed", "error", err)
		return configurationError(err, loader)
	}

	var status *statusserver.Server
	if addr := resolveStatusAddr(cmd, srv.Profile()); addr != "" {
		status = statusserver.New(statusserver.Config{Address: addr}, srv, sup, m, logger)
	}

	fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("Use Control-C to exit"))

	if err := serve(ctx, srv, status, logger); err != nil {
		return err
	}
	if ctx.Err() != nil {
		fmt.Fprintln(cmd.OutOrStdout(), WarningStyle.Render("Exiting"))
	}
	return nil
}

// serve runs the connection server and the optional status server. The
// status server is stopped only after the connection server has finished.
func serve(ctx context.Context, srv *server.Server, status *statusserver.Server, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(gctx); err != nil {
			logger.Error("server stopped with error", "error", err)
			return err
		}
		return nil
	})

	if status != nil {
		statusCtx, cancelStatus := context.WithCancel(context.WithoutCancel(gctx))
		stop := context.AfterFunc(gctx, func() {
			<-srv.Done()
			cancelStatus()
		})
		g.Go(func() error {
			defer stop()
			defer cancelStatus()
			return status.Run(statusCtx)
		})
	}

	return g.Wait()
}

// resolveLogFile picks the log file: an explicit --log-file, then the
// profile's log.file, then the default.
func resolveLogFile(cmd *cobra.Command, prof *profile.Profile) string {
	if cmd.Flags().Changed("log-file") || prof == nil || prof.Log.File == "" {
		return rootFlags.logFile
	}
	return prof.Log.File
}

// resolveStatusAddr picks --status-addr, then server.status_address.
func resolveStatusAddr(cmd *cobra.Command, prof *profile.Profile) string {
	if cmd.Flags().Changed("status-addr") || prof == nil {
		return rootFlags.statusAddr
	}
	return prof.Server.StatusAddress
}

// configurationError turns a server construction error into an actionable
// error naming the profile and what to try.
func configurationError(err error, loader *profile.Loader) error {
	var cfgErr *server.ConfigurationError
	if !errors.As(err, &cfgErr) {
		return err
	}
	return profileIssue(err, loader, rootFlags.profile).
		WithOperation("configure server").
		BuildError()
}

// profileIssue builds an ErrorContext for a profile failure, with
// suggestions matched to the cause.
func profileIssue(err error, loader *profile.Loader, name string) *issue.ErrorContext {
	resource := loader.Resolve(name)
	var loadErr *profile.LoadError
	if errors.As(err, &loadErr) {
		resource = loadErr.Path
	}

	ec := issue.NewErrorContext().
		WithOperation("load profile").
		WithResource(resource).
		Wrap(err)

	switch {
	case errors.Is(err, profile.ErrNotFound):
		ec.WithSuggestion(fmt.Sprintf("Create the profile in %s, or choose another with -c", loader.Dir())).
			WithSuggestion("Use --profiles-dir or BBGUM_PROFILES_DIR to look somewhere else")
	case errors.Is(err, profile.ErrUnsupportedFormat):
		ec.WithSuggestion("Use a .json, .cue, .toml, .yaml or .yml profile")
	case errors.Is(err, profile.ErrTooLarge):
		ec.WithSuggestion(fmt.Sprintf("Profiles are limited to %d bytes", profile.MaxSize))
	case errors.Is(err, profile.ErrInvalid):
		ec.WithSuggestion("Check the file syntax and the server.* values").
			WithSuggestion("Run 'bbgum profile validate' to see every problem")
	default:
		ec.WithSuggestion("Run 'bbgum profile show' to inspect the effective settings")
	}
	return ec
}
