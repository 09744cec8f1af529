// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"errors"
	"net"
	"time"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// deadliner is implemented by *net.TCPListener.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Start binds the listening endpoint and runs the accept loop until ctx is
// cancelled (returns nil) or accepting fails unrecoverably (*AcceptError).
// A bind failure returns *BindError without retrying. Start may only be
// called once.
func (s *Server) Start(ctx context.Context) (err error) {
	if err := s.machine.Begin(ctx); err != nil {
		return err
	}

	address := s.bindAddress()
	var lc net.ListenConfig
	ln, lerr := lc.Listen(ctx, "tcp", address)
	if lerr != nil {
		bindErr := &BindError{Address: address, Err: lerr}
		s.logger.Error("failed to bind", "address", address, "error", lerr)
		s.machine.Fail(bindErr)
		return bindErr
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr()
	s.mu.Unlock()

	defer func() {
		s.shutdown(ln)
		if err != nil {
			s.machine.Fail(err)
			return
		}
		s.machine.MarkStopped()
	}()

	// Unblock Accept on cancellation while keeping the socket open, so
	// that it is closed only after every worker has been reaped.
	stopUnblock := context.AfterFunc(ctx, func() { unblockAccept(ln) })
	defer stopUnblock()

	s.machine.MarkRunning()
	s.logger.Info("listening", "address", ln.Addr().String(), "isolation", s.isolation)
	if s.cfg.Port.IsEphemeral() {
		s.logger.Debug("port chosen by the kernel", "port", s.Port())
	}

	return s.acceptLoop(ctx, ln)
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("shutting down")
				return nil
			}
			if isTemporary(err) {
				backoff = nextBackoff(backoff)
				s.logger.Warn("accept failed, retrying", "error", err, "backoff", backoff)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
				}
				continue
			}
			s.logger.Error("accept failed", "error", err)
			return &AcceptError{Err: err}
		}
		backoff = 0
		s.dispatch(ctx, conn)
	}
}

// dispatch hands conn to a new worker. It never waits on the worker, and a
// spawn failure only costs this one connection.
func (s *Server) dispatch(ctx context.Context, conn net.Conn) {
	s.metrics.ConnectionAccepted()
	remote := conn.RemoteAddr().String()

	w, err := s.spawner.Prepare(ctx, conn)
	if err != nil {
		s.metrics.SpawnFailed()
		s.logger.Warn("failed to prepare worker", "remote", remote, "error", err)
		return
	}
	if err := s.supervisor.Launch(w); err != nil {
		s.metrics.SpawnFailed()
		s.logger.Warn("failed to launch worker", "remote", remote, "error", err)
		return
	}

	info := w.Info()
	s.logger.Debug("worker spawned", "worker", info.ID, "remote", remote, "pid", info.PID)
}

// shutdown terminates and reaps every worker, then closes the listener.
func (s *Server) shutdown(ln net.Listener) {
	s.machine.BeginStop()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.supervisor.TerminateAll(ctx); err != nil {
		s.logger.Error("worker termination incomplete", "error", err)
	}
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("failed to close listener", "error", err)
	}
	s.logger.Info("listener closed")
}

func unblockAccept(ln net.Listener) {
	if d, ok := ln.(deadliner); ok {
		if err := d.SetDeadline(time.Now()); err == nil {
			return
		}
	}
	_ = ln.Close()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptBackoff
	}
	return min(2*d, maxAcceptBackoff)
}
