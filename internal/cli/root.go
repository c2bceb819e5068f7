// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package cli wires the command-line surface around the download orchestrator.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"unidownloader/pkg/downloader"
)

// RootOpts holds global CLI options.
type RootOpts struct {
	Token  string
	Quiet  bool
	Config string
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ro := &RootOpts{}

	root := &cobra.Command{
		Use:           "unidownloader",
		Short:         "Resumable downloader for HuggingFace and ModelScope repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	root.PersistentFlags().StringVarP(&ro.Token, "token", "t", "", "Hub access token (also reads the platform token env)")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Quiet mode (status lines only)")
	root.PersistentFlags().StringVar(&ro.Config, "config", "", "Path to config file (JSON or YAML)")

	root.AddCommand(newDownloadCmd(ro))
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newServeCmd(ro))
	root.AddCommand(newVersionCmd(version))
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func newDownloadCmd(ro *RootOpts) *cobra.Command {
	var (
		platform string
		repoID   string
		output   string
		endpoint string
		dataset  bool
	)

	cmd := &cobra.Command{
		Use:   "download [REPO]",
		Short: "Download a model or dataset repository",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applyConfigDefaults(cmd, ro, &output, &platform, &endpoint)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if repoID == "" && len(args) > 0 {
				repoID = args[0]
			}
			if repoID == "" {
				return fmt.Errorf("missing REPO (owner/name). Pass as positional arg or --repo")
			}

			kind := downloader.RepoKindModel
			if dataset {
				kind = downloader.RepoKindDataset
			}
			token := strings.TrimSpace(ro.Token)
			if cfg, err := downloader.LookupPlatform(downloader.Platform(platform)); err == nil && token == "" {
				token = strings.TrimSpace(os.Getenv(cfg.TokenEnv))
			}

			worker, err := downloader.NewWorker(downloader.Platform(platform), repoID, output, token, endpoint, kind)
			if err != nil {
				return err
			}
			return runAttached(worker, ro.Quiet)
		},
	}

	cmd.Flags().StringVarP(&platform, "platform", "p", string(downloader.PlatformHuggingFace), "Hub platform: huggingface|modelscope")
	cmd.Flags().StringVarP(&repoID, "repo", "r", "", "Repository ID (owner/name). If omitted, positional REPO is used")
	cmd.Flags().StringVarP(&output, "output", "o", "Models", "Destination base directory")
	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "Endpoint override (e.g. a mirror host)")
	cmd.Flags().BoolVar(&dataset, "dataset", false, "Treat repo as a dataset")

	return cmd
}

// runAttached subscribes to the worker's events, starts it and blocks until
// the terminal event or an interrupt. This is the reference UI collaborator:
// events arrive on worker goroutines, Ctrl-C cancels with a bounded wait.
func runAttached(worker *downloader.Worker, quiet bool) error {
	type outcome struct {
		err       error
		cancelled bool
	}
	result := make(chan outcome, 1)

	worker.Subscribe(downloader.Events{
		Finished: func() {
			result <- outcome{}
		},
		Error: func(message string) {
			result <- outcome{err: fmt.Errorf("%s", message), cancelled: downloader.IsCancellation(message)}
		},
		Status: func(message string) {
			fmt.Println(message)
		},
		Log: func(message string) {
			if !quiet {
				fmt.Println(message)
			}
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker.Start()
	defer worker.Close()

	select {
	case out := <-result:
		if out.cancelled {
			fmt.Println("Download cancelled.")
			return nil
		}
		if out.err == nil {
			fmt.Printf("Done: %s\n", worker.RepoDir())
		}
		return out.err
	case <-ctx.Done():
		worker.Cancel()
		if done := worker.Done(); done != nil {
			select {
			case <-done:
			case <-time.After(5 * time.Second):
			}
		}
		fmt.Println("Download cancelled.")
		return nil
	}
}
