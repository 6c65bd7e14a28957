// Command pushci builds and tests every commit of a GitHub push.
package main

import (
	"os"

	"github.com/NielsdaWheelz/pushci/internal/cli/cobra"
	"github.com/NielsdaWheelz/pushci/internal/errors"
	"github.com/NielsdaWheelz/pushci/internal/logstore"
)

func main() {
	err := cobra.Execute(os.Stdout, os.Stderr)
	if err != nil {
		opts := errors.PrintOptions{
			Verbose: cobra.GetGlobalOpts().Verbose,
			Tailer:  logstore.TailLog,
		}
		errors.PrintWithOptions(os.Stderr, err, opts)
		os.Exit(errors.ExitCode(err))
	}
}
