// SPDX-License-Identifier: MPL-2.0

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bbgum/bbgum/internal/echo"
)

type (
	// GoroutineSpawner runs each connection's handler in its own goroutine.
	GoroutineSpawner struct {
		handler *echo.Handler
		logger  *slog.Logger
	}

	goroutineWorker struct {
		handler *echo.Handler
		conn    net.Conn
		logger  *slog.Logger
		ctx     context.Context
		cancel  context.CancelFunc
		done    chan struct{}

		mu         sync.Mutex
		info       Info
		started    bool
		terminated bool
		exit       Exit
	}
)

// NewGoroutineSpawner creates a spawner for goroutine isolation.
func NewGoroutineSpawner(handler *echo.Handler, logger *slog.Logger) *GoroutineSpawner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if handler == nil {
		handler = echo.NewHandler(logger)
	}
	return &GoroutineSpawner{handler: handler, logger: logger}
}

// Prepare wraps conn in an unstarted goroutine worker. The worker's context
// keeps ctx's values but not its cancellation: only Terminate stops it.
func (s *GoroutineSpawner) Prepare(ctx context.Context, conn net.Conn) (Worker, error) {
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	id := NewID()
	w := &goroutineWorker{
		handler: s.handler,
		conn:    conn,
		logger:  s.logger.With("worker", id),
		ctx:     wctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		info: Info{
			ID:        id,
			Remote:    remoteOf(conn),
			Isolation: IsolationGoroutine,
		},
	}
	return w, nil
}

func (w *goroutineWorker) Info() Info {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.info
}

func (w *goroutineWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.terminated:
		return ErrAlreadyTerminated
	case w.started:
		return ErrAlreadyStarted
	}
	w.started = true
	w.info.StartedAt = time.Now()

	go w.run()
	return nil
}

func (w *goroutineWorker) run() {
	exit := Exit{Code: -1}
	defer func() {
		if r := recover(); r != nil {
			_ = w.conn.Close()
			exit = Exit{Outcome: OutcomeCrashed, Code: -1, Err: fmt.Errorf("handler panic: %v", r)}
			w.logger.Error("worker crashed", "panic", r)
		}
		w.finish(exit)
	}()

	res := w.handler.Serve(w.ctx, w.conn)
	exit.Outcome = Outcome(res.Outcome)
	exit.Err = res.Err
}

func (w *goroutineWorker) finish(exit Exit) {
	w.mu.Lock()
	w.exit = exit
	w.mu.Unlock()
	w.cancel()
	close(w.done)
}

func (w *goroutineWorker) Terminate() error {
	w.mu.Lock()
	if w.terminated {
		w.mu.Unlock()
		return nil
	}
	w.terminated = true
	started := w.started
	w.mu.Unlock()

	w.cancel()
	if !started {
		_ = w.conn.Close()
		w.finish(Exit{Outcome: OutcomeTerminated, Code: -1})
	}
	return nil
}

// Kill terminates the worker and closes its connection directly, so a
// handler that stopped watching its context still fails its next I/O.
func (w *goroutineWorker) Kill() error {
	if err := w.Terminate(); err != nil {
		return err
	}
	_ = w.conn.Close()
	return nil
}

func (w *goroutineWorker) Done() <-chan struct{} { return w.done }

func (w *goroutineWorker) Wait() Exit {
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exit
}
