// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"stackctl/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `stackctl config` command tree.
func newConfigCommand(app *App, flags *globalFlags) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the stack configuration",
		Long: `Inspect the stack configuration.

The configuration is read from --config, else ./stack.cue, else the built-in
CKAN defaults.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var format string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.showConfig(cmd.Context(), flags, config.Format(format))
		},
	}
	showCmd.Flags().StringVar(&format, "format", string(config.FormatCUE), "output format (cue or toml)")
	cfgCmd.AddCommand(showCmd)

	return cfgCmd
}

func (a *App) showConfig(ctx context.Context, flags *globalFlags, format config.Format) error {
	cfg, err := a.loadConfig(ctx, flags)
	if err != nil {
		return a.fail(err, flags.verbose)
	}
	out, err := config.Render(cfg, format)
	if err != nil {
		return a.fail(err, flags.verbose)
	}
	fmt.Fprint(a.stdout, out)
	return nil
}
