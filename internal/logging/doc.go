// SPDX-License-Identifier: MPL-2.0

// Package logging builds the process logger: charmbracelet/log sinks exposed
// through log/slog so the rest of bbgum only ever sees a *slog.Logger.
package logging
