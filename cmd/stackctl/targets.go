// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"stackctl/internal/config"
	"stackctl/internal/lifecycle"

	"github.com/spf13/cobra"
)

const (
	groupProduction  = "production"
	groupDevelopment = "development"
)

// newTargetCommands creates one command per lifecycle target.
func newTargetCommands(app *App, flags *globalFlags) []*cobra.Command {
	targets := lifecycle.Catalog(config.DefaultConfig().StageNames())
	cmds := make([]*cobra.Command, 0, len(targets))
	for _, t := range targets {
		name := t.Name
		short := t.Description
		if t.Destructive {
			short += " [destructive]"
		}
		group := groupProduction
		if strings.HasPrefix(name, lifecycle.DevPrefix) {
			group = groupDevelopment
		}

		cmds = append(cmds, &cobra.Command{
			Use:     name,
			Short:   short,
			GroupID: group,
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return app.runTarget(cmd.Context(), flags, name)
			},
		})
	}
	return cmds
}

// runTarget runs a lifecycle target, or prints its resolved order with --dry-run.
func (a *App) runTarget(ctx context.Context, flags *globalFlags, name string) error {
	if flags.dryRun {
		return a.printTargetPlan(ctx, flags, name)
	}

	s, err := a.openSession(ctx, flags)
	if err != nil {
		return a.fail(err, flags.verbose)
	}
	defer s.Close()

	if err := s.runTarget(ctx, name); err != nil {
		return a.fail(err, flags.verbose)
	}
	fmt.Fprintf(a.stdout, "%s %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(name))
	return nil
}

// printTargetPlan prints the targets and steps name would run. Only the
// configuration is read.
func (a *App) printTargetPlan(ctx context.Context, flags *globalFlags, name string) error {
	cfg, err := a.loadConfig(ctx, flags)
	if err != nil {
		return a.fail(err, flags.verbose)
	}
	g, err := catalogGraph(cfg.StageNames())
	if err != nil {
		return a.fail(err, flags.verbose)
	}
	order, err := g.Order(name)
	if err != nil {
		return a.fail(err, flags.verbose)
	}

	fmt.Fprintf(a.stdout, "%s %s\n", TitleStyle.Render("Dry run:"), CmdStyle.Render(name))
	for i, n := range order {
		t, _ := g.Get(n)
		writeTarget(a.stdout, i+1, t)
		for _, step := range t.Steps {
			fmt.Fprintf(a.stdout, "     - %s\n", step.Name)
		}
	}
	return nil
}

func writeTarget(w io.Writer, index int, t lifecycle.Target) {
	line := fmt.Sprintf("  %d. %s", index, CmdStyle.Render(t.Name))
	if t.Destructive {
		line += " " + WarningStyle.Render("(destructive)")
	}
	fmt.Fprintln(w, line)
}

// newTargetsCommand creates `stackctl targets`.
func newTargetsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List every lifecycle target with its prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return app.listTargets()
		},
	}
}

func (a *App) listTargets() error {
	g, err := catalogGraph(config.DefaultConfig().StageNames())
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, TitleStyle.Render("Lifecycle targets"))
	fmt.Fprintln(a.stdout)
	for i, t := range g.Targets() {
		writeTarget(a.stdout, i+1, t)
		fmt.Fprintf(a.stdout, "     %s\n", SubtitleStyle.Render(t.Description))
		if len(t.Prereqs) > 0 {
			fmt.Fprintf(a.stdout, "     requires: %s\n", strings.Join(t.Prereqs, ", "))
		}
	}
	return nil
}
