// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the CLI commands for bbgum.
//
// The root command runs the connection server. Subcommands inspect
// configuration profiles ("profile show", "profile validate"); the hidden
// "internal serve-conn" command is what each process-mode worker executes.
package cmd
