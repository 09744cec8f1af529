// SPDX-License-Identifier: MPL-2.0

package main

import "github.com/bbgum/bbgum/cmd/bbgum"

func main() {
	cmd.Execute()
}
