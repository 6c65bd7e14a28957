// Package cobra provides the Cobra-based CLI command tree for pushci.
package cobra

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/pushci/internal/version"
)

// GlobalOpts holds global options parsed before subcommand dispatch.
type GlobalOpts struct {
	Verbose bool

	// ConfigPath is the --config value; empty means config.DefaultPath.
	ConfigPath string
}

// globalOpts stores the parsed global options for access by subcommands.
var globalOpts GlobalOpts

// GetGlobalOpts returns the parsed global options.
func GetGlobalOpts() GlobalOpts {
	return globalOpts
}

// NewRootCmd creates the root cobra command for pushci.
func NewRootCmd() *cobra.Command {
	globalOpts = GlobalOpts{}

	rootCmd := &cobra.Command{
		Use:   "pushci",
		Short: "Build and test every commit of a push",
		Long: `pushci - build and test every commit of a push

pushci receives GitHub push webhooks, builds and tests each pushed commit in
a fresh clone, publishes the result as a commit status, and keeps a numbered
HTML log of every build with an index page.`,
		Version:       version.FullVersion(),
		SilenceErrors: true, // We handle error printing in main.go
		SilenceUsage:  true, // We handle usage printing manually
	}

	// Global flags
	rootCmd.PersistentFlags().BoolVar(&globalOpts.Verbose, "verbose", false, "show detailed error context")
	rootCmd.PersistentFlags().StringVar(&globalOpts.ConfigPath, "config", "", "path to pushci.toml (default ./pushci.toml if present)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		newServeCmd(),
		newBuildCmd(),
		newReindexCmd(),
		newLogsCmd(),
		newVersionCmd(),
	)

	return rootCmd
}

// Execute runs the root command with the given output writers.
// This is the main entry point from main.go.
func Execute(stdout, stderr io.Writer) error {
	rootCmd := NewRootCmd()
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.Execute()
}
