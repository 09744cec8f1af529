// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"

	"github.com/bbgum/bbgum/internal/metrics"
	"github.com/bbgum/bbgum/internal/profile"
	"github.com/bbgum/bbgum/internal/supervisor"
	"github.com/bbgum/bbgum/internal/worker"
)

type (
	// ProfileLoader reads a named profile. *profile.Loader implements it.
	ProfileLoader interface {
		Load(ctx context.Context, name string) (*profile.Profile, error)
	}

	// Option customizes a Server.
	Option func(*Server)
)

// WithSpawner replaces the spawner chosen from the isolation mode.
func WithSpawner(s worker.Spawner) Option {
	return func(srv *Server) { srv.spawner = s }
}

// WithSupervisor makes the server register workers with sup instead of a
// supervisor of its own.
func WithSupervisor(sup *supervisor.Supervisor) Option {
	return func(srv *Server) { srv.supervisor = sup }
}

// WithMetrics records accept and spawn counters in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(srv *Server) { srv.metrics = m }
}
