// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"unidownloader/internal/cli"
)

var version = "1.0.0"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
