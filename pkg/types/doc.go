// SPDX-License-Identifier: MPL-2.0

// Package types holds small validated value types shared by the server,
// the worker processes, and the command line.
package types
