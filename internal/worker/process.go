// SPDX-License-Identifier: MPL-2.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/bbgum/bbgum/pkg/types"
)

// DefaultKillGrace is how long a child gets between SIGTERM and SIGKILL.
const DefaultKillGrace = 2 * time.Second

// ServeConnArgs are the arguments that make the bbgum binary act as a
// process-mode worker.
var ServeConnArgs = []string{"internal", "serve-conn"}

type (
	// ProcessConfig configures a ProcessSpawner.
	ProcessConfig struct {
		// Path is the worker executable. Defaults to the running binary.
		Path string
		// Args are passed to Path. Defaults to ServeConnArgs.
		Args []string
		// Env is appended to the parent environment.
		Env []string
		// KillGrace is the delay between SIGTERM and SIGKILL.
		KillGrace time.Duration
		// Stderr receives the child's stderr. Defaults to os.Stderr.
		Stderr io.Writer
	}

	// ProcessSpawner services each connection in a child process that
	// inherits the connection as fd 3.
	ProcessSpawner struct {
		cfg    ProcessConfig
		logger *slog.Logger
	}

	// filer is implemented by connections backed by a file descriptor
	// (*net.TCPConn, *net.UnixConn).
	filer interface {
		File() (*os.File, error)
	}

	processWorker struct {
		cmd       *exec.Cmd
		file      *os.File
		killGrace time.Duration
		logger    *slog.Logger
		done      chan struct{}
		doneOnce  sync.Once

		mu                 sync.Mutex
		info               Info
		started            bool
		terminateRequested bool
		exit               Exit
	}
)

// NewProcessSpawner creates a spawner for process isolation.
func NewProcessSpawner(cfg ProcessConfig, logger *slog.Logger) (*ProcessSpawner, error) {
	if cfg.Path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve worker executable: %w", err)
		}
		cfg.Path = exe
	}
	if cfg.Args == nil {
		cfg.Args = ServeConnArgs
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = DefaultKillGrace
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ProcessSpawner{cfg: cfg, logger: logger}, nil
}

// Prepare duplicates conn's descriptor for the child and closes conn; the
// duplicate is the only remaining handle in the parent until Start hands it
// over.
func (s *ProcessSpawner) Prepare(ctx context.Context, conn net.Conn) (Worker, error) {
	remote := remoteOf(conn)

	fc, ok := conn.(filer)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedConn, conn)
	}
	file, err := fc.File()
	_ = conn.Close()
	if err != nil {
		return nil, fmt.Errorf("duplicate connection descriptor: %w", err)
	}

	id := NewID()
	cmd := exec.Command(s.cfg.Path, s.cfg.Args...)
	cmd.ExtraFiles = []*os.File{file}
	cmd.Env = append(append(os.Environ(), s.cfg.Env...), EnvWorkerID+"="+id.String())
	cmd.Stderr = s.cfg.Stderr
	cmd.SysProcAttr = sysProcAttr()

	return &processWorker{
		cmd:       cmd,
		file:      file,
		killGrace: s.cfg.KillGrace,
		logger:    s.logger.With("worker", id),
		done:      make(chan struct{}),
		info: Info{
			ID:        id,
			Remote:    remote,
			Isolation: IsolationProcess,
		},
	}, nil
}

func (w *processWorker) Info() Info {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.info
}

func (w *processWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.terminateRequested:
		return ErrAlreadyTerminated
	case w.started:
		return ErrAlreadyStarted
	}

	err := w.cmd.Start()
	// The child holds its own copy of the descriptor now.
	_ = w.file.Close()
	if err != nil {
		w.terminateRequested = true
		w.exit = Exit{Outcome: OutcomeCrashed, Code: -1, Err: err}
		w.markDone()
		return fmt.Errorf("start worker process: %w", err)
	}

	w.started = true
	w.info.PID = w.cmd.Process.Pid
	w.info.StartedAt = time.Now()

	go w.reap()
	return nil
}

func (w *processWorker) reap() {
	waitErr := w.cmd.Wait()
	code := w.cmd.ProcessState.ExitCode()

	w.mu.Lock()
	exit := classifyExit(code, w.terminateRequested)
	if exit.Outcome == OutcomeCrashed {
		exit.Err = waitErr
	}
	w.exit = exit
	w.mu.Unlock()

	if exit.Outcome == OutcomeCrashed {
		w.logger.Error("worker process crashed", "pid", w.cmd.Process.Pid, "code", code, "error", waitErr)
	} else {
		w.logger.Debug("worker process exited", "pid", w.cmd.Process.Pid, "outcome", exit.Outcome)
	}
	w.markDone()
}

func (w *processWorker) markDone() {
	w.doneOnce.Do(func() { close(w.done) })
}

// classifyExit maps a child exit code to an outcome. Any exit after the
// parent asked for termination counts as terminated.
func classifyExit(code int, terminateRequested bool) Exit {
	exit := Exit{Code: code}
	switch {
	case terminateRequested:
		exit.Outcome = OutcomeTerminated
	case code == int(types.ExitSuccess):
		exit.Outcome = OutcomeEOF
	case code == int(types.ExitConnectionIO):
		exit.Outcome = OutcomeError
	case code == int(types.ExitTerminated):
		exit.Outcome = OutcomeTerminated
	default:
		exit.Outcome = OutcomeCrashed
	}
	return exit
}

// Terminate sends SIGTERM and escalates to SIGKILL after the kill grace
// period if the child is still running.
func (w *processWorker) Terminate() error {
	w.mu.Lock()
	if w.terminateRequested {
		w.mu.Unlock()
		return nil
	}
	w.terminateRequested = true
	if !w.started {
		_ = w.file.Close()
		w.exit = Exit{Outcome: OutcomeTerminated, Code: -1}
		w.mu.Unlock()
		w.markDone()
		return nil
	}
	proc := w.cmd.Process
	id := w.info.ID
	w.mu.Unlock()

	if err := terminateProcess(proc); err != nil && !isProcessGone(err) {
		return fmt.Errorf("terminate worker %s (pid %d): %w", id, proc.Pid, err)
	}

	go func() {
		timer := time.NewTimer(w.killGrace)
		defer timer.Stop()
		select {
		case <-w.done:
		case <-timer.C:
			w.logger.Warn("worker ignored SIGTERM, killing", "pid", proc.Pid)
			if err := proc.Kill(); err != nil && !isProcessGone(err) {
				w.logger.Error("kill worker", "pid", proc.Pid, "error", err)
			}
		}
	}()
	return nil
}

// Kill sends SIGKILL right away. An unstarted worker is terminated instead,
// which only releases its descriptor.
func (w *processWorker) Kill() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return w.Terminate()
	}
	w.terminateRequested = true
	proc := w.cmd.Process
	id := w.info.ID
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	default:
	}
	if err := proc.Kill(); err != nil && !isProcessGone(err) {
		return fmt.Errorf("kill worker %s (pid %d): %w", id, proc.Pid, err)
	}
	return nil
}

func (w *processWorker) Done() <-chan struct{} { return w.done }

func (w *processWorker) Wait() Exit {
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exit
}

func isProcessGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) || isNoSuchProcess(err)
}
