package cobra

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/pushci/internal/logstore"
)

func newReindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Regenerate the build log index",
		Long: `Regenerate index.html from the log pages on disk.

Safe to run while 'pushci serve' is running; both take the store lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store := logstore.New(cfg.LogsDir())
			if err := store.RebuildIndex(); err != nil {
				return err
			}
			entries, err := store.Entries()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "index rebuilt: %d entries (%s)\n", len(entries), store.IndexPath())
			return nil
		},
	}

	return cmd
}
