// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"stackctl/internal/envset"

	"github.com/spf13/cobra"
)

// newEnvCommand creates the `stackctl env` command tree.
func newEnvCommand(app *App, flags *globalFlags) *cobra.Command {
	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Inspect the environment set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	envCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Resolve and validate the environment set without side effects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.checkEnv(cmd.Context(), flags)
		},
	})

	return envCmd
}

func (a *App) checkEnv(ctx context.Context, flags *globalFlags) error {
	cfg, err := a.loadConfig(ctx, flags)
	if err != nil {
		return a.fail(err, flags.verbose)
	}
	env, err := envset.Resolve(ctx, envPath(cfg, flags))
	if err != nil {
		return a.fail(err, flags.verbose)
	}

	fmt.Fprintf(a.stdout, "%s %s\n", TitleStyle.Render("Environment set"), SubtitleStyle.Render(env.Path()))
	for _, k := range env.Keys() {
		v, _ := env.Lookup(k)
		fmt.Fprintf(a.stdout, "  %s=%s\n", CmdStyle.Render(k), v)
	}
	fmt.Fprintf(a.stdout, "%s all required keys present\n", SuccessStyle.Render("✓"))
	return nil
}
