// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"stackctl/internal/imagebuild"

	"github.com/spf13/cobra"
)

// newBuildCommand creates `stackctl build`.
func newBuildCommand(app *App, flags *globalFlags) *cobra.Command {
	var allLayers bool

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build the layered application image",
		Long: `Build the layered application image.

By default only the final layer is rebuilt without the layer cache; earlier
stages are reused when their cache key still matches. --all-layers rebuilds
every stage from a freshly pulled base image.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.build(cmd.Context(), flags, allLayers)
		},
	}
	buildCmd.Flags().BoolVar(&allLayers, "all-layers", false, "invalidate every stage, not only the final one")

	return buildCmd
}

func (a *App) build(ctx context.Context, flags *globalFlags, allLayers bool) error {
	s, err := a.openSession(ctx, flags)
	if err != nil {
		return a.fail(err, flags.verbose)
	}
	defer s.Close()

	stages := s.cfg.StageNames()
	scope := imagebuild.FinalLayerOnly(stages)
	if allLayers {
		scope = imagebuild.AllLayers(stages)
	}

	if flags.dryRun {
		plan, err := s.builder.Plan(ctx, scope, s.env)
		if err != nil {
			return a.fail(err, flags.verbose)
		}
		fmt.Fprintf(a.stdout, "%s invalidate %s\n", TitleStyle.Render("Build plan:"), scope)
		a.printPlan(plan)
		return nil
	}

	artifact, err := s.builder.Build(ctx, scope, s.env)
	if err != nil {
		return a.fail(err, flags.verbose)
	}
	a.printPlan(artifact.Stages)
	fmt.Fprintf(a.stdout, "%s %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(artifact.Tag))
	return nil
}

func (a *App) printPlan(plan []imagebuild.StagePlan) {
	for _, p := range plan {
		action := string(p.Action)
		if p.Action != imagebuild.ActionReuse {
			action = WarningStyle.Render(action)
		}
		line := fmt.Sprintf("  %-8s %s  %s", p.Name, action, CmdStyle.Render(p.Tag))
		if p.Pull {
			line += SubtitleStyle.Render(" (pull)")
		}
		fmt.Fprintln(a.stdout, line)
	}
}
