// SPDX-License-Identifier: MPL-2.0

package worker

import (
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bbgum/bbgum/internal/testutil"
)

// tcpPair returns the accepted and the dialed side of a loopback connection.
func tcpPair(t *testing.T) (accepted, dialed net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer testutil.MustClose(t, ln)

	ch := make(chan net.Conn, 1)
	go func() {
		c, aerr := ln.Accept()
		if aerr != nil {
			close(ch)
			return
		}
		ch <- c
	}()

	dialed = testutil.Dial(t, ln.Addr().String())
	accepted, ok := <-ch
	if !ok {
		t.Fatal("accept failed")
	}
	return accepted, dialed
}

func waitExit(t *testing.T, w Worker) Exit {
	t.Helper()
	select {
	case <-w.Done():
		return w.Wait()
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not exit")
		return Exit{}
	}
}

func TestGoroutineWorker_Echo(t *testing.T) {
	t.Parallel()

	server, client := tcpPair(t)
	w, err := NewGoroutineSpawner(nil, nil).Prepare(t.Context(), server)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	info := w.Info()
	if info.Isolation != IsolationGoroutine || info.ID == "" || !info.StartedAt.IsZero() {
		t.Errorf("unstarted Info = %+v", info)
	}

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(); err != ErrAlreadyStarted {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
	if w.Info().StartedAt.IsZero() {
		t.Error("StartedAt not set after Start")
	}

	if got := testutil.RoundTrip(t, client, []byte("ping")); string(got) != "ping" {
		t.Fatalf("echo = %q", got)
	}
	testutil.ExpectEOF(t, client)

	if exit := waitExit(t, w); exit.Outcome != OutcomeEOF {
		t.Errorf("Outcome = %q, want %q", exit.Outcome, OutcomeEOF)
	}
}

func TestGoroutineWorker_Terminate(t *testing.T) {
	t.Parallel()

	server, client := tcpPair(t)
	w, err := NewGoroutineSpawner(nil, nil).Prepare(t.Context(), server)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	testutil.RoundTrip(t, client, []byte("x"))

	if err := w.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if err := w.Terminate(); err != nil {
		t.Errorf("second Terminate = %v, want nil", err)
	}
	if exit := waitExit(t, w); exit.Outcome != OutcomeTerminated {
		t.Errorf("Outcome = %q, want %q", exit.Outcome, OutcomeTerminated)
	}
}

func TestGoroutineWorker_Kill(t *testing.T) {
	t.Parallel()

	server, client := tcpPair(t)
	w, err := NewGoroutineSpawner(nil, nil).Prepare(t.Context(), server)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	testutil.RoundTrip(t, client, []byte("x"))

	if err := w.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if exit := waitExit(t, w); exit.Outcome != OutcomeTerminated {
		t.Errorf("Outcome = %q, want %q", exit.Outcome, OutcomeTerminated)
	}
	if err := w.Kill(); err != nil {
		t.Errorf("Kill after exit = %v, want nil", err)
	}
	testutil.ExpectEOF(t, client)
}

func TestGoroutineWorker_TerminateUnstarted(t *testing.T) {
	t.Parallel()

	server, client := tcpPair(t)
	w, err := NewGoroutineSpawner(nil, nil).Prepare(t.Context(), server)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	if err := w.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if exit := waitExit(t, w); exit.Outcome != OutcomeTerminated {
		t.Errorf("Outcome = %q, want %q", exit.Outcome, OutcomeTerminated)
	}
	if err := w.Start(); err != ErrAlreadyTerminated {
		t.Errorf("Start after Terminate = %v, want ErrAlreadyTerminated", err)
	}
	testutil.ExpectEOF(t, client)
}

// panicConn panics on the first read.
type panicConn struct {
	net.Conn
	closed atomic.Bool
}

func (c *panicConn) Read([]byte) (int, error) { panic("boom") }
func (c *panicConn) Close() error            { c.closed.Store(true); return nil }
func (c *panicConn) RemoteAddr() net.Addr     { return &net.TCPAddr{} }

func TestGoroutineWorker_PanicContained(t *testing.T) {
	t.Parallel()

	conn := &panicConn{}
	w, err := NewGoroutineSpawner(nil, nil).Prepare(t.Context(), conn)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	exit := waitExit(t, w)
	if exit.Outcome != OutcomeCrashed {
		t.Errorf("Outcome = %q, want %q", exit.Outcome, OutcomeCrashed)
	}
	if exit.Err == nil || !strings.Contains(exit.Err.Error(), "boom") {
		t.Errorf("Err = %v, want panic value", exit.Err)
	}
	if !conn.closed.Load() {
		t.Error("connection not closed after panic")
	}
}
