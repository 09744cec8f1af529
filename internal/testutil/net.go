// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"io"
	"net"
	"testing"
	"time"
)

const (
	dialAttempts = 50
	dialBackoff  = 20 * time.Millisecond
	ioTimeout    = 5 * time.Second
)

// Dial connects to addr, retrying briefly while the server comes up.
// The connection is closed when the test ends.
func Dial(t testing.TB, addr string) net.Conn {
	t.Helper()

	var lastErr error
	for range dialAttempts {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			t.Cleanup(func() { _ = conn.Close() })
			return conn
		}
		lastErr = err
		time.Sleep(dialBackoff)
	}
	t.Fatalf("dial %s: %v", addr, lastErr)
	return nil
}

// RoundTrip writes payload to conn and reads back exactly len(payload) bytes.
func RoundTrip(t testing.TB, conn net.Conn, payload []byte) []byte {
	t.Helper()

	if err := conn.SetDeadline(time.Now().Add(ioTimeout)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := make([]byte, len(payload))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("read echo: %v", err)
	}
	return got
}

// ExpectEOF half-closes the write side of conn when possible and asserts the
// peer then closes its side without sending anything else.
func ExpectEOF(t testing.TB, conn net.Conn) {
	t.Helper()

	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			t.Fatalf("close write: %v", err)
		}
	}
	if err := conn.SetReadDeadline(time.Now().Add(ioTimeout)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	if n != 0 || err != io.EOF {
		t.Fatalf("read after close = (%d, %v), want (0, EOF)", n, err)
	}
}

// WaitFor polls cond until it returns true or timeout elapses.
func WaitFor(t testing.TB, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
