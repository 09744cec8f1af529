// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bbgum/bbgum/internal/worker"
)

// KillReapTimeout bounds how long TerminateAll waits for killed workers to
// be reaped once its context is done.
const KillReapTimeout = time.Second

var (
	// ErrSupervisorClosed is returned when registering after TerminateAll
	// has begun.
	ErrSupervisorClosed = errors.New("supervisor is shutting down")
	// ErrDuplicateWorker is returned when a worker ID is registered twice.
	ErrDuplicateWorker = errors.New("worker already registered")
)

type (
	// ExitFunc observes every worker that leaves the registry.
	ExitFunc func(info worker.Info, exit worker.Exit)

	// Option configures a Supervisor.
	Option func(*Supervisor)

	// Supervisor tracks live workers. The zero value is not usable; use New.
	Supervisor struct {
		logger *slog.Logger
		onExit ExitFunc

		mu      sync.Mutex
		workers map[worker.ID]worker.Worker
		closed  bool

		watchers sync.WaitGroup
	}

	// TerminateError reports a worker that could not be terminated.
	TerminateError struct {
		ID  worker.ID
		Err error
	}
)

// Error implements the error interface.
func (e *TerminateError) Error() string {
	return fmt.Sprintf("terminate worker %s: %v", e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *TerminateError) Unwrap() error { return e.Err }

// WithLogger sets the supervisor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithExitFunc registers fn to be called after each worker exits.
func WithExitFunc(fn ExitFunc) Option {
	return func(s *Supervisor) { s.onExit = fn }
}

// New creates an empty Supervisor.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		logger:  slog.New(slog.DiscardHandler),
		workers: make(map[worker.ID]worker.Worker),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds w to the registry and watches for its exit, removing it
// once its Done channel closes.
func (s *Supervisor) Register(w worker.Worker) error {
	id := w.Info().ID

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSupervisorClosed
	}
	if _, dup := s.workers[id]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateWorker, id)
	}
	s.workers[id] = w

	s.watchers.Go(func() { s.watch(id, w) })
	return nil
}

// Launch registers w and then starts it, so that a worker is never running
// without being tracked. If registration fails the worker is terminated; if
// Start fails it leaves the registry through its Done channel.
func (s *Supervisor) Launch(w worker.Worker) error {
	if err := s.Register(w); err != nil {
		_ = w.Terminate()
		return err
	}
	if err := w.Start(); err != nil {
		// Release the connection and let the watcher remove the entry.
		_ = w.Terminate()
		return err
	}
	return nil
}

func (s *Supervisor) watch(id worker.ID, w worker.Worker) {
	<-w.Done()

	s.mu.Lock()
	delete(s.workers, id)
	s.mu.Unlock()

	if s.onExit != nil {
		s.onExit(w.Info(), w.Wait())
	}
}

// Active returns the live workers ordered by start time. Liveness is
// best-effort: a worker may exit right after the snapshot is taken.
func (s *Supervisor) Active() []worker.Info {
	s.mu.Lock()
	infos := make([]worker.Info, 0, len(s.workers))
	for _, w := range s.workers {
		infos = append(infos, w.Info())
	}
	s.mu.Unlock()

	slices.SortFunc(infos, func(a, b worker.Info) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return infos
}

// Len returns the number of live workers.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// TerminateAll closes the registry and terminates every tracked worker one
// at a time, waiting for each to be reaped before moving to the next. Once
// ctx is done the remaining workers are still sent Terminate, without
// waiting, and every worker that has not exited is then killed. It returns
// once all watchers have finished, or KillReapTimeout after the deadline.
func (s *Supervisor) TerminateAll(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	workers := make([]worker.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	slices.SortFunc(workers, func(a, b worker.Worker) int {
		return a.Info().StartedAt.Compare(b.Info().StartedAt)
	})

	s.logger.Info("terminating workers", "count", len(workers))

	var errs []error
	for _, w := range workers {
		if err := w.Terminate(); err != nil {
			errs = append(errs, &TerminateError{ID: w.Info().ID, Err: err})
			continue
		}
		if ctx.Err() != nil {
			continue
		}
		select {
		case <-w.Done():
		case <-ctx.Done():
		}
	}

	watchersDone := make(chan struct{})
	go func() {
		s.watchers.Wait()
		close(watchersDone)
	}()

	if ctx.Err() == nil {
		select {
		case <-watchersDone:
			return errors.Join(errs...)
		case <-ctx.Done():
		}
	}

	errs = append(errs, s.killUnreaped(workers, ctx.Err())...)
	timer := time.NewTimer(KillReapTimeout)
	defer timer.Stop()
	select {
	case <-watchersDone:
	case <-timer.C:
		errs = append(errs, fmt.Errorf("wait for worker watchers: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}

// killUnreaped kills every worker that has not exited yet and reports each
// one as not terminated in time.
func (s *Supervisor) killUnreaped(workers []worker.Worker, cause error) []error {
	var errs []error
	for _, w := range workers {
		select {
		case <-w.Done():
			continue
		default:
		}
		id := w.Info().ID
		s.logger.Warn("worker still running after shutdown deadline, killing", "worker", id)
		errs = append(errs, &TerminateError{ID: id, Err: cause})
		if err := w.Kill(); err != nil {
			errs = append(errs, &TerminateError{ID: id, Err: err})
		}
	}
	return errs
}
