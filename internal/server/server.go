// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bbgum/bbgum/internal/echo"
	"github.com/bbgum/bbgum/internal/lifecycle"
	"github.com/bbgum/bbgum/internal/logging"
	"github.com/bbgum/bbgum/internal/metrics"
	"github.com/bbgum/bbgum/internal/profile"
	"github.com/bbgum/bbgum/internal/supervisor"
	"github.com/bbgum/bbgum/internal/worker"
	"github.com/bbgum/bbgum/pkg/types"
)

// Server accepts TCP connections and services each in its own worker.
type Server struct {
	cfg        Config
	profile    *profile.Profile
	host       HostAddress
	isolation  worker.Isolation
	killGrace  time.Duration
	logger     *slog.Logger
	base       *slog.Logger
	spawner    worker.Spawner
	supervisor *supervisor.Supervisor
	metrics    *metrics.Metrics
	machine    *lifecycle.Machine

	mu       sync.Mutex
	listener net.Listener
	addr     net.Addr
}

// New validates cfg, loads the profile through loader and prepares the
// server. It performs no socket I/O. Profile problems are returned as
// *ConfigurationError, invalid fields of cfg as *InvalidConfigError.
func New(ctx context.Context, cfg Config, loader ProfileLoader, logger *slog.Logger, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}
	base := logger
	logger = logging.Component(base, "server")

	prof, err := loader.Load(ctx, cfg.Profile)
	if err != nil {
		return nil, &ConfigurationError{Profile: cfg.Profile, Err: err}
	}
	logger.Debug("profile loaded", "path", prof.Path)

	host := cfg.Host
	if host == "" {
		host = HostAddress(prof.Server.Hostname)
		if err := host.Validate(); err != nil {
			return nil, &ConfigurationError{Profile: prof.Path, Err: err}
		}
	}

	isolation := cfg.Isolation
	if isolation == "" {
		isolation, err = worker.ParseIsolation(prof.Server.Isolation)
		if err != nil {
			return nil, &ConfigurationError{Profile: prof.Path, Err: err}
		}
	}

	killGrace := cfg.KillGrace
	if killGrace == 0 {
		killGrace = prof.Server.KillGrace
		if err := checkKillGrace(killGrace, cfg.ShutdownTimeout); err != nil {
			return nil, &ConfigurationError{Profile: prof.Path, Err: err}
		}
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	s := &Server{
		cfg:       cfg,
		profile:   prof,
		host:      host,
		isolation: isolation,
		killGrace: killGrace,
		logger:    logger,
		base:      base,
		machine:   lifecycle.NewMachine(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.supervisor == nil {
		s.supervisor = supervisor.New(
			supervisor.WithLogger(logging.Component(base, "supervisor")),
			supervisor.WithExitFunc(s.metrics.WorkerExited),
		)
	}
	if s.spawner == nil {
		spawner, err := s.defaultSpawner()
		if err != nil {
			return nil, &ConfigurationError{Profile: prof.Path, Err: err}
		}
		s.spawner = spawner
	}

	return s, nil
}

func (s *Server) defaultSpawner() (worker.Spawner, error) {
	workerLog := logging.Component(s.base, "worker")
	if s.isolation == worker.IsolationGoroutine {
		return worker.NewGoroutineSpawner(echo.NewHandler(workerLog), workerLog), nil
	}
	spawner, err := worker.NewProcessSpawner(worker.ProcessConfig{KillGrace: s.killGrace}, workerLog)
	if err != nil {
		return nil, err
	}
	return spawner, nil
}

// Addr returns the bound address. It blocks until the server is listening
// or has failed, and returns nil if it never bound.
func (s *Server) Addr() net.Addr {
	select {
	case <-s.machine.Ready():
	case <-s.machine.Done():
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Port returns the bound port once listening, the configured port before.
func (s *Server) Port() types.ListenPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tcp, ok := s.addr.(*net.TCPAddr); ok {
		return types.ListenPort(tcp.Port)
	}
	return s.cfg.Port
}

// Host returns the effective bind host.
func (s *Server) Host() HostAddress { return s.host }

// Isolation returns the effective isolation mode.
func (s *Server) Isolation() worker.Isolation { return s.isolation }

// Profile returns the profile loaded at construction.
func (s *Server) Profile() *profile.Profile { return s.profile }

// State returns the lifecycle state.
func (s *Server) State() lifecycle.State { return s.machine.State() }

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.machine.Ready() }

// Done is closed once Start has returned.
func (s *Server) Done() <-chan struct{} { return s.machine.Done() }

// Supervisor returns the worker registry.
func (s *Server) Supervisor() *supervisor.Supervisor { return s.supervisor }

func (s *Server) bindAddress() string {
	return net.JoinHostPort(s.host.String(), s.cfg.Port.String())
}
