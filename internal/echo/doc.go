// SPDX-License-Identifier: MPL-2.0

// Package echo implements the per-connection handler: every byte read from
// the peer is written back unchanged until the peer closes, an I/O error
// occurs, or the worker running the handler is terminated.
package echo
