// SPDX-License-Identifier: MPL-2.0

package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bbgum/bbgum/internal/lifecycle"
	"github.com/bbgum/bbgum/internal/metrics"
	"github.com/bbgum/bbgum/internal/profile"
	"github.com/bbgum/bbgum/internal/testutil"
	"github.com/bbgum/bbgum/internal/worker"
	"github.com/bbgum/bbgum/pkg/types"
)

type running struct {
	srv    *Server
	addr   string
	cancel context.CancelFunc
	errCh  chan error
}

// stop cancels the server and returns Start's result.
func (r *running) stop(t *testing.T) error {
	t.Helper()
	r.cancel()
	select {
	case err := <-r.errCh:
		return err
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
		return nil
	}
}

func profileDir(t *testing.T, content string) *profile.Loader {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, profile.DefaultName), []byte(content), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	l, err := profile.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	return l
}

func helperProcessSpawner(t *testing.T) worker.Spawner {
	t.Helper()
	s, err := worker.NewProcessSpawner(worker.ProcessConfig{
		Path:      os.Args[0],
		Args:      []string{"-test.run=^$"},
		Env:       []string{workerHelperEnv + "=1"},
		KillGrace: time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewProcessSpawner: %v", err)
	}
	return s
}

func startServer(t *testing.T, isolation worker.Isolation, opts ...Option) *running {
	t.Helper()

	if isolation == worker.IsolationProcess {
		if runtime.GOOS == "windows" {
			t.Skip("process isolation requires descriptor passing")
		}
		opts = append([]Option{WithSpawner(helperProcessSpawner(t))}, opts...)
	}

	loader := profileDir(t, `{"server": {"hostname": "127.0.0.1"}}`)
	srv, err := New(t.Context(), Config{Isolation: isolation}, loader, nil, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &running{srv: srv, cancel: cancel, errCh: make(chan error, 1)}
	go func() { r.errCh <- srv.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-srv.Done()
	})

	addr := srv.Addr()
	if addr == nil {
		t.Fatalf("server failed to bind: %v", <-r.errCh)
	}
	r.addr = addr.String()
	return r
}

var isolations = []worker.Isolation{worker.IsolationGoroutine, worker.IsolationProcess}

func TestServer_PingEcho(t *testing.T) {
	t.Parallel()

	for _, iso := range isolations {
		t.Run(string(iso), func(t *testing.T) {
			t.Parallel()

			r := startServer(t, iso)
			conn := testutil.Dial(t, r.addr)

			if got := testutil.RoundTrip(t, conn, []byte("ping")); string(got) != "ping" {
				t.Fatalf("echo = %q, want ping", got)
			}
			testutil.ExpectEOF(t, conn)

			if err := r.stop(t); err != nil {
				t.Errorf("Start returned %v after graceful shutdown", err)
			}
			if r.srv.State() != lifecycle.StateStopped {
				t.Errorf("State = %s, want stopped", r.srv.State())
			}
		})
	}
}

// echoTag dials addr, sends tag and checks the echo without touching t,
// so it can run inside an errgroup.
func echoTag(addr string, tag []byte) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	if err := conn.SetDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}

	if _, err := conn.Write(tag); err != nil {
		return err
	}
	got := make([]byte, len(tag))
	if _, err := io.ReadFull(conn, got); err != nil {
		return fmt.Errorf("read %q: %w", tag, err)
	}
	if !bytes.Equal(got, tag) {
		return fmt.Errorf("sent %q, received %q", tag, got)
	}
	return nil
}

func TestServer_ConcurrentClientsNoCrossTalk(t *testing.T) {
	t.Parallel()

	for _, iso := range isolations {
		t.Run(string(iso), func(t *testing.T) {
			t.Parallel()

			r := startServer(t, iso)

			var g errgroup.Group
			for i := range 10 {
				tag := []byte(fmt.Sprintf("t%03d", i))
				g.Go(func() error { return echoTag(r.addr, tag) })
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestServer_ZeroBytesThenClose(t *testing.T) {
	t.Parallel()

	r := startServer(t, worker.IsolationGoroutine)
	conn := testutil.Dial(t, r.addr)
	testutil.ExpectEOF(t, conn)

	testutil.WaitFor(t, 5*time.Second, func() bool { return r.srv.Supervisor().Len() == 0 })
}

func TestServer_ShutdownTerminatesWorkers(t *testing.T) {
	t.Parallel()

	const k = 4
	for _, iso := range isolations {
		t.Run(string(iso), func(t *testing.T) {
			t.Parallel()

			r := startServer(t, iso)
			conns := make([]net.Conn, 0, k)
			for range k {
				c := testutil.Dial(t, r.addr)
				testutil.RoundTrip(t, c, []byte("live"))
				conns = append(conns, c)
			}
			sup := r.srv.Supervisor()
			testutil.WaitFor(t, 5*time.Second, func() bool { return sup.Len() == k })

			if active := sup.Active(); len(active) != k || active[0].Isolation != iso {
				t.Errorf("Active() = %+v", active)
			}

			if err := r.stop(t); err != nil {
				t.Fatalf("Start returned %v", err)
			}
			if n := sup.Len(); n != 0 {
				t.Errorf("live workers after shutdown = %d, want 0", n)
			}
			for _, c := range conns {
				if err := c.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
					t.Fatal(err)
				}
				if n, err := c.Read(make([]byte, 1)); n != 0 || err == nil {
					t.Errorf("client read after shutdown = (%d, %v), want closed", n, err)
				}
			}
			if _, err := net.DialTimeout("tcp", r.addr, time.Second); err == nil {
				t.Error("listener still accepting after shutdown")
			}
		})
	}
}

type failingSpawner struct{ calls chan struct{} }

func (f *failingSpawner) Prepare(_ context.Context, conn net.Conn) (worker.Worker, error) {
	_ = conn.Close()
	f.calls <- struct{}{}
	return nil, errors.New("fork: resource temporarily unavailable")
}

func TestServer_SpawnFailureKeepsAccepting(t *testing.T) {
	t.Parallel()

	spawner := &failingSpawner{calls: make(chan struct{}, 4)}
	m := metrics.New(nil)
	r := startServer(t, worker.IsolationGoroutine, WithSpawner(spawner), WithMetrics(m))

	for range 2 {
		conn := testutil.Dial(t, r.addr)
		testutil.ExpectEOF(t, conn)
		<-spawner.calls
	}
	if r.srv.State() != lifecycle.StateRunning {
		t.Errorf("State = %s, want running after spawn failures", r.srv.State())
	}
	if err := r.stop(t); err != nil {
		t.Errorf("Start returned %v", err)
	}
}

func TestServer_BindError(t *testing.T) {
	t.Parallel()

	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer testutil.MustClose(t, occupied)
	port := occupied.Addr().(*net.TCPAddr).Port

	loader := profileDir(t, `{}`)
	srv, err := New(t.Context(), Config{Host: "127.0.0.1", Port: types.ListenPort(port), Isolation: worker.IsolationGoroutine}, loader, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = srv.Start(t.Context())
	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("Start = %v, want *BindError", err)
	}
	if !errors.Is(err, ErrBind) || !errors.Is(err, ErrServer) {
		t.Errorf("bind error should match ErrBind and ErrServer: %v", err)
	}
	if srv.State() != lifecycle.StateFailed {
		t.Errorf("State = %s, want failed", srv.State())
	}
	if srv.Addr() != nil {
		t.Errorf("Addr() = %v, want nil after failed bind", srv.Addr())
	}
}

func TestServer_StartTwice(t *testing.T) {
	t.Parallel()

	r := startServer(t, worker.IsolationGoroutine)
	var tErr *lifecycle.TransitionError
	if err := r.srv.Start(t.Context()); !errors.As(err, &tErr) {
		t.Errorf("second Start = %v, want *lifecycle.TransitionError", err)
	}
}

func TestServer_StartCancelledContext(t *testing.T) {
	t.Parallel()

	srv, err := New(t.Context(), Config{Isolation: worker.IsolationGoroutine}, profileDir(t, `{}`), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := srv.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start = %v, want context.Canceled", err)
	}
}

func TestNew_ConfigurationError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		profile string
		content string
		cause   error
	}{
		{name: "missing", profile: "absent.json", cause: profile.ErrNotFound},
		{name: "unparsable", profile: profile.DefaultName, content: `{"server":`, cause: profile.ErrInvalid},
		{name: "bad hostname", profile: profile.DefaultName, content: `{"server": {"hostname": "bad host"}}`, cause: ErrInvalidHostAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			content := tt.content
			if content == "" {
				content = `{}`
			}
			loader := profileDir(t, content)

			_, err := New(t.Context(), Config{Profile: tt.profile}, loader, nil)
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("New = %v, want *ConfigurationError", err)
			}
			if !errors.Is(err, ErrConfiguration) || !errors.Is(err, ErrServer) {
				t.Errorf("error should match ErrConfiguration and ErrServer: %v", err)
			}
			if !errors.Is(err, tt.cause) {
				t.Errorf("error should wrap %v: %v", tt.cause, err)
			}
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := Config{Port: -1, Host: "bad host", Isolation: "thread", KillGrace: -time.Second}
	_, err := New(t.Context(), cfg, profileDir(t, `{}`), nil)

	var invalid *InvalidConfigError
	if !errors.As(err, &invalid) {
		t.Fatalf("New = %v, want *InvalidConfigError", err)
	}
	if len(invalid.FieldErrors) != 4 {
		t.Errorf("FieldErrors = %v, want 4 entries", invalid.FieldErrors)
	}
	if !errors.Is(err, ErrConfiguration) || !errors.Is(err, worker.ErrInvalidIsolation) {
		t.Errorf("error chain incomplete: %v", err)
	}
}

func TestNew_ProfileKillGraceExceedsShutdown(t *testing.T) {
	t.Parallel()

	loader := profileDir(t, `{"server": {"kill_grace": "30s"}}`)

	_, err := New(t.Context(), Config{}, loader, nil)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("New = %v, want *ConfigurationError", err)
	}
	if !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("error should wrap ErrInvalidDuration: %v", err)
	}

	if _, err := New(t.Context(), Config{ShutdownTimeout: time.Minute}, loader, nil); err != nil {
		t.Errorf("a longer shutdown timeout should accept the profile: %v", err)
	}
}

func TestNew_ProfilePrecedence(t *testing.T) {
	t.Parallel()

	loader := profileDir(t, `{"server": {"hostname": "127.0.0.1", "isolation": "goroutine", "kill_grace": "750ms"}}`)

	fromProfile, err := New(t.Context(), Config{}, loader, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if fromProfile.Host() != "127.0.0.1" || fromProfile.Isolation() != worker.IsolationGoroutine {
		t.Errorf("profile values not applied: host=%q isolation=%q", fromProfile.Host(), fromProfile.Isolation())
	}
	if fromProfile.killGrace != 750*time.Millisecond {
		t.Errorf("killGrace = %v, want 750ms", fromProfile.killGrace)
	}
	if fromProfile.Port() != 0 {
		t.Errorf("Port() before Start = %d, want configured 0", fromProfile.Port())
	}

	fromFlags, err := New(t.Context(), Config{Host: "localhost", Isolation: worker.IsolationProcess, KillGrace: time.Second}, loader, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if fromFlags.Host() != "localhost" || fromFlags.Isolation() != worker.IsolationProcess || fromFlags.killGrace != time.Second {
		t.Errorf("flags should override the profile: host=%q isolation=%q grace=%v",
			fromFlags.Host(), fromFlags.Isolation(), fromFlags.killGrace)
	}
}
