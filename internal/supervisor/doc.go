// SPDX-License-Identifier: MPL-2.0

// Package supervisor keeps the registry of live workers and terminates them
// in bulk on shutdown.
package supervisor
