// SPDX-License-Identifier: MPL-2.0

// Package metrics exposes Prometheus counters for the connection server.
// Every method is safe to call on a nil *Metrics, so components can take an
// optional metrics dependency without branching.
package metrics
