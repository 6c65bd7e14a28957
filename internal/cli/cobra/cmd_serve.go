package cobra

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NielsdaWheelz/pushci/internal/errors"
	"github.com/NielsdaWheelz/pushci/internal/exec"
	"github.com/NielsdaWheelz/pushci/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive push webhooks and serve build logs",
		Long: `Receive GitHub push webhooks and serve build logs.

Routes:
  POST /webhook             GitHub push events (202 when accepted)
  GET  /                    build history index
  GET  /buildLogs/<n>.html  build log page

On SIGINT or SIGTERM the server stops accepting requests and waits for
in-flight pushes to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			a, err := newApp(cfg, exec.NewRealRunner(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			// Build the index up front so GET / works before the first push.
			if err := a.store.RebuildIndex(); err != nil {
				return err
			}

			srv := server.New(cfg.Server.Addr, a.store, a.service, a.log)
			srv.WebhookSecret = cfg.Webhook.Secret
			srv.CloneURL = cfg.Pipeline.RepoURL
			if srv.WebhookSecret == "" {
				a.log.Warn("webhook.secret not set; webhook signatures will not be verified")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := srv.ListenAndServe(ctx); err != nil {
				return errors.WrapWithDetails(errors.EInternal, "server failed", err, map[string]string{
					"op": "serve " + cfg.Server.Addr,
				})
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}
