// SPDX-License-Identifier: MPL-2.0

// Package server implements the bbgum connection server: it binds a TCP
// endpoint, accepts connections, and hands each one to a freshly spawned,
// independently failable worker tracked by a supervisor.
//
// Lifecycle:
//
//	srv, err := server.New(ctx, cfg, loader, logger) // loads the profile, no I/O on sockets
//	err = srv.Start(ctx)                            // binds, accepts until ctx is cancelled
//
// Cancelling ctx shuts the server down: the accept loop is unblocked, every
// live worker is terminated and reaped in turn, and only then is the
// listening socket closed. Start returns nil after a graceful shutdown.
//
// All errors returned by this package satisfy errors.Is(err, ErrServer).
package server
