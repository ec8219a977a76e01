// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/ping-inventory/ping/lib/process"
)

func main() {
	// Commands that print their own status line return an error
	// carrying the exit code; process.Exit prints nothing for those.
	process.Exit(run())
}

func run() error {
	return rootCommand(os.Stdout).Execute(os.Args[1:])
}
