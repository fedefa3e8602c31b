// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"stackctl/internal/entry"

	"github.com/spf13/cobra"
)

type entrypointFlags struct {
	background   string
	foreground   string
	readyTCP     string
	readyHTTP    string
	readyDelay   time.Duration
	readyTimeout time.Duration
}

// newEntrypointCommand creates `stackctl entrypoint`, the container start sequence.
func newEntrypointCommand(app *App, flags *globalFlags) *cobra.Command {
	ef := &entrypointFlags{}

	entryCmd := &cobra.Command{
		Use:   "entrypoint",
		Short: "Start a background service, wait for it, then run the foreground command",
		Long: `Run the container start sequence.

The background command starts first. Once it is ready, the foreground command
runs exactly once; if it fails the container exits with an error and nothing
is relaunched. After a successful start the process stays alive until the
container is stopped, then terminates the background command.`,
		Example: `  stackctl entrypoint --background "solr-foreground" \
    --ready-http http://localhost:8983/solr/admin/info/system \
    --foreground 'ckan -c "$CKAN_INI" db init'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.entrypoint(cmd.Context(), flags, ef)
		},
	}

	f := entryCmd.Flags()
	f.StringVar(&ef.background, "background", "", "command started first and kept running")
	f.StringVar(&ef.foreground, "foreground", "", "command run once after readiness")
	f.StringVar(&ef.readyTCP, "ready-tcp", "", "ready once this host:port accepts connections")
	f.StringVar(&ef.readyHTTP, "ready-http", "", "ready once this URL answers with a 2xx status")
	f.DurationVar(&ef.readyDelay, "ready-delay", 0, "ready after a fixed delay")
	f.DurationVar(&ef.readyTimeout, "ready-timeout", entry.DefaultReadyTimeout, "readiness budget")
	_ = entryCmd.MarkFlagRequired("background")
	_ = entryCmd.MarkFlagRequired("foreground")
	entryCmd.MarkFlagsMutuallyExclusive("ready-tcp", "ready-http", "ready-delay")

	return entryCmd
}

// probe returns the probe selected by the flags, or nil.
func (ef *entrypointFlags) probe() entry.Probe {
	switch {
	case ef.readyTCP != "":
		return entry.TCPProbe{Addr: ef.readyTCP}
	case ef.readyHTTP != "":
		return entry.HTTPProbe{URL: ef.readyHTTP}
	case ef.readyDelay > 0:
		return entry.DelayProbe{Delay: ef.readyDelay}
	}
	return nil
}

func (a *App) entrypoint(ctx context.Context, flags *globalFlags, ef *entrypointFlags) error {
	if ef.readyTimeout <= 0 {
		return a.fail(errors.New("--ready-timeout must be positive"), flags.verbose)
	}

	opts := []entry.Option{
		entry.WithLogger(a.newLogger(flags.verbose)),
		entry.WithOutput(a.stdout, a.stderr),
		entry.WithReadyTimeout(ef.readyTimeout),
	}
	if p := ef.probe(); p != nil {
		opts = append(opts, entry.WithProbe(p))
	}

	seq, err := entry.New(ef.background, ef.foreground, opts...)
	if err != nil {
		return a.fail(err, flags.verbose)
	}

	// Container runtimes stop with SIGTERM.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer stop()

	if err := seq.Run(ctx); err != nil {
		return a.fail(err, flags.verbose)
	}
	return nil
}
