// SPDX-License-Identifier: MPL-2.0

package statusserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bbgum/bbgum/internal/lifecycle"
	"github.com/bbgum/bbgum/internal/logging"
	"github.com/bbgum/bbgum/internal/metrics"
	"github.com/bbgum/bbgum/internal/worker"
)

// DefaultShutdownTimeout bounds Stop.
const DefaultShutdownTimeout = 5 * time.Second

type (
	// StateReporter exposes the lifecycle state of the connection server.
	StateReporter interface {
		State() lifecycle.State
	}

	// WorkerLister exposes the live worker registry.
	WorkerLister interface {
		Active() []worker.Info
		Len() int
	}

	// Config configures a status server.
	Config struct {
		// Address to listen on, e.g. "127.0.0.1:10081".
		Address         string
		ShutdownTimeout time.Duration
	}

	// Server serves the status API.
	Server struct {
		cfg     Config
		logger  *slog.Logger
		engine  *gin.Engine
		machine *lifecycle.Machine

		mu         sync.Mutex
		httpServer *http.Server
		addr       string
		serveErr   chan error
	}
)

// New builds the status server and its routes. m may be nil, in which case
// /metrics answers 404.
func New(cfg Config, state StateReporter, workers WorkerLister, m *metrics.Metrics, logger *slog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	logger = logging.Component(logger, "status")

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		machine:  lifecycle.NewMachine(),
		serveErr: make(chan error, 1),
	}
	s.engine = newRouter(&handlers{state: state, workers: workers}, m, logger)
	return s
}

// Handler returns the router, for tests and for embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Start binds the listener and serves in the background. It returns once
// the server is accepting requests.
func (s *Server) Start(ctx context.Context) error {
	if err := s.machine.Begin(ctx); err != nil {
		return err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		err = fmt.Errorf("status server: listen on %s: %w", s.cfg.Address, err)
		s.machine.Fail(err)
		return err
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server failed", "error", err)
			s.serveErr <- err
		}
		close(s.serveErr)
	}()

	s.machine.MarkRunning()
	s.logger.Info("status server listening", "address", s.addr)
	return nil
}

// Stop shuts the server down, waiting up to the shutdown timeout for
// in-flight requests. Safe to call more than once.
func (s *Server) Stop() error {
	if !s.machine.BeginStop() {
		<-s.machine.Done()
		return nil
	}

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	var err error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		err = srv.Shutdown(ctx)
	}

	s.machine.MarkStopped()
	s.logger.Info("status server stopped")
	return err
}

// Run starts the server, serves until ctx is cancelled, then stops it.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return s.Stop()
	case err, ok := <-s.serveErr:
		_ = s.Stop()
		if ok {
			return err
		}
		return nil
	}
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// State returns the status server's own lifecycle state.
func (s *Server) State() lifecycle.State { return s.machine.State() }
