// SPDX-License-Identifier: MPL-2.0

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bbgum/bbgum/internal/worker"
)

const namespace = "bbgum"

// Metrics holds the server's collectors and their registry.
type Metrics struct {
	registry          *prometheus.Registry
	connections       prometheus.Counter
	workerExits       *prometheus.CounterVec
	spawnFailures     prometheus.Counter
	activeWorkersFunc prometheus.GaugeFunc
}

// New creates the collectors on a private registry. activeWorkers is sampled
// at scrape time for the bbgum_workers_active gauge; it may be nil.
func New(activeWorkers func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Total number of connections accepted by the listener.",
		}),
		workerExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_exits_total",
			Help:      "Total number of workers that exited, by outcome.",
		}, []string{"outcome"}),
		spawnFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawn_failures_total",
			Help:      "Total number of connections dropped because no worker could be spawned.",
		}),
	}

	if activeWorkers == nil {
		activeWorkers = func() int { return 0 }
	}
	m.activeWorkersFunc = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "workers_active",
		Help:      "Number of live per-connection workers.",
	}, func() float64 { return float64(activeWorkers()) })

	for _, o := range []worker.Outcome{
		worker.OutcomeEOF, worker.OutcomeError, worker.OutcomeTerminated, worker.OutcomeCrashed,
	} {
		m.workerExits.WithLabelValues(o.String())
	}

	m.registry.MustRegister(
		m.connections,
		m.workerExits,
		m.spawnFailures,
		m.activeWorkersFunc,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ConnectionAccepted counts one accepted connection.
func (m *Metrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// SpawnFailed counts one connection dropped for lack of a worker.
func (m *Metrics) SpawnFailed() {
	if m == nil {
		return
	}
	m.spawnFailures.Inc()
}

// WorkerExited counts a finished worker. Its signature matches
// supervisor.ExitFunc.
func (m *Metrics) WorkerExited(_ worker.Info, exit worker.Exit) {
	if m == nil {
		return
	}
	m.workerExits.WithLabelValues(exit.Outcome.String()).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
