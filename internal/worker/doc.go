// SPDX-License-Identifier: MPL-2.0

// Package worker runs one echo handler per accepted connection in an
// independently failable unit.
//
// Two isolation modes exist. In process mode the connection's file
// descriptor is handed to a child process of the same binary
// ("bbgum internal serve-conn"), which finds it as fd 3; the child's exit
// code tells the parent how the connection ended. In goroutine mode the
// handler runs in a goroutine with panic containment and termination closes
// the connection.
//
// Workers are created unstarted by a Spawner so that the caller can
// register them before any code runs on the connection.
package worker
