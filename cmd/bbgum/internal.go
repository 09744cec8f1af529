// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/spf13/cobra"
)

// internalCmd groups hidden commands that bbgum runs on itself.
var internalCmd = &cobra.Command{
	Use:    "internal",
	Short:  "Internal commands (not for direct use)",
	Hidden: true,
}

func init() {
	internalCmd.AddCommand(internalServeConnCmd)
}
