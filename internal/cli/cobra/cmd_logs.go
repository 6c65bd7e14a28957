package cobra

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/pushci/internal/errors"
	"github.com/NielsdaWheelz/pushci/internal/logstore"
	"github.com/NielsdaWheelz/pushci/internal/render"
)

func newLogsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List stored build logs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return errors.New(errors.EUsage, "--limit must be >= 0")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			entries, err := logstore.New(cfg.LogsDir()).Entries()
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			return render.WriteEntries(cmd.OutOrStdout(), entries, time.Now())
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n entries (0 = all)")

	return cmd
}
