// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand creates the stackctl command tree bound to app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "stackctl",
		Short: "Operate a containerized CKAN data-portal stack",
		Long: TitleStyle.Render("stackctl") + SubtitleStyle.Render(" - Operate a containerized CKAN data-portal stack") + `

stackctl provisions the persistent volume directories, builds the layered
application image and drives the production and development compose
topologies through named lifecycle targets.

` + SubtitleStyle.Render("Examples:") + `
  stackctl up                   Create the volumes and start production
  stackctl dev-up               Start the development topology
  stackctl dev-rebuild          Rebuild the final layer and recreate the app
  stackctl dev-full-rebuild     Reset everything and rebuild every layer
  stackctl --dry-run dev-clean  Show what a reset would run
  stackctl targets              List every target and its prerequisites`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "stack configuration file (default is ./stack.cue, or built-in defaults)")
	pf.StringVar(&flags.envFile, "env-file", "", "environment set file (default is env_file from the configuration)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "print the resolved target order or build plan without side effects")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupProduction, Title: "Production targets:"},
		&cobra.Group{ID: groupDevelopment, Title: "Development targets:"},
	)
	for _, c := range newTargetCommands(app, flags) {
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(
		newBuildCommand(app, flags),
		newEntrypointCommand(app, flags),
		newTargetsCommand(app),
		newConfigCommand(app, flags),
		newEnvCommand(app, flags),
	)

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute builds the command tree and runs it. It is called by main.main().
func Execute() {
	app, err := NewApp(Dependencies{})
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}

	// fang overrides rootCmd.Version, so the version goes through WithVersion.
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
