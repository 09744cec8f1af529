// SPDX-License-Identifier: MPL-2.0

// Package statusserver is an optional HTTP endpoint reporting on a running
// connection server: liveness at /health, live workers at /workers and
// Prometheus metrics at /metrics. It has no authentication and is meant to
// be bound to a loopback or management interface.
package statusserver
