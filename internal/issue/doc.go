// SPDX-License-Identifier: MPL-2.0

// Package issue renders fatal errors for people: what bbgum was doing, which
// resource was involved, and what to try next.
package issue
