// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"unidownloader/pkg/downloader"
)

// newWorkerCmd is the hidden entry point the orchestrator re-executes itself
// with. It reads the request from stdin, runs the isolated download and exits
// with the runner's code; stdout/stderr are the output channel back to the
// parent, so nothing here may print anything of its own.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    downloader.WorkerCommand,
		Hidden: true,
		Args:   cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			req, err := downloader.ReadWorkerRequest(os.Stdin)
			if err != nil {
				fmt.Fprintf(os.Stdout, "Error: %v\n", err)
				os.Exit(1)
			}
			os.Exit(downloader.RunWorker(req, os.Stdout))
		},
	}
}
