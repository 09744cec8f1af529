// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Machine tracks the lifecycle of one server instance. Servers embed it.
// A Machine is single-use: once terminal, build a new server.
type Machine struct {
	state atomic.Int32

	mu      sync.Mutex
	lastErr error

	ready    chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

// NewMachine returns a Machine in StateCreated.
func NewMachine() *Machine {
	m := &Machine{
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	m.state.Store(int32(StateCreated))
	return m
}

// State returns the current state (lock-free).
func (m *Machine) State() State {
	return State(m.state.Load())
}

// IsRunning reports whether the server is accepting connections.
func (m *Machine) IsRunning() bool {
	return m.State() == StateRunning
}

// LastError returns the error that moved the machine to StateFailed, or nil.
func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Ready is closed once the server reaches StateRunning.
func (m *Machine) Ready() <-chan struct{} {
	return m.ready
}

// Done is closed once the server reaches a terminal state.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Begin moves Created -> Starting. It fails the machine if ctx is already
// cancelled, so that a server never binds on behalf of a dead caller.
func (m *Machine) Begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		failErr := fmt.Errorf("context cancelled before start: %w", err)
		m.Fail(failErr)
		return failErr
	}
	if !m.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return &TransitionError{From: m.State(), To: StateStarting}
	}
	return nil
}

// MarkRunning moves Starting -> Running and releases Ready waiters.
func (m *Machine) MarkRunning() {
	if m.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		close(m.ready)
	}
}

// BeginStop moves Starting/Running -> Stopping. It returns false when there
// is nothing to stop; a machine that never started goes straight to Stopped.
func (m *Machine) BeginStop() bool {
	for {
		current := m.State()
		switch current {
		case StateCreated:
			if m.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
				m.finish()
				return false
			}
		case StateStarting, StateRunning:
			if m.state.CompareAndSwap(int32(current), int32(StateStopping)) {
				return true
			}
		default:
			return false
		}
	}
}

// MarkStopped moves the machine to StateStopped unless it already failed.
func (m *Machine) MarkStopped() {
	for {
		current := m.State()
		if current == StateFailed {
			m.finish()
			return
		}
		if m.state.CompareAndSwap(int32(current), int32(StateStopped)) {
			m.finish()
			return
		}
	}
}

// Fail records err and moves the machine to StateFailed.
func (m *Machine) Fail(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
	m.state.Store(int32(StateFailed))
	m.finish()
}

func (m *Machine) finish() {
	m.doneOnce.Do(func() { close(m.done) })
}
