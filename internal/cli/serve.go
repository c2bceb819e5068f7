// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"unidownloader/internal/server"
)

func newServeCmd(ro *RootOpts) *cobra.Command {
	var (
		addr     string
		port     int
		output   string
		endpoint string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server exposing download control and live log streaming",
		Long: `Start an HTTP server that provides:
  - REST API to start, cancel and inspect the active download
  - WebSocket streaming the orchestrator's log/status/terminal events

The output path is configured server-side only (not via API).

Example:
  unidownloader serve
  unidownloader serve --port 3000 --output ./Models`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := server.Config{
				Addr:      addr,
				Port:      port,
				OutputDir: output,
				Endpoint:  endpoint,
				Token:     strings.TrimSpace(ro.Token),
			}

			srv := server.New(cfg)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			fmt.Printf("Serving download API on http://%s:%d\n", addr, port)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1", "Listen address")
	cmd.Flags().IntVar(&port, "port", 8080, "Listen port")
	cmd.Flags().StringVarP(&output, "output", "o", "Models", "Destination base directory")
	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "Endpoint override passed to every download")

	return cmd
}
