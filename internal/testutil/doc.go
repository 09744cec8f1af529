// SPDX-License-Identifier: MPL-2.0

// Package testutil holds test helpers shared across bbgum packages: resource
// cleanup (MustClose, MustStop), home directory redirection for profile
// lookups, and small TCP clients for talking to a running echo server.
package testutil
