package cobra

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/NielsdaWheelz/pushci/internal/errors"
	"github.com/NielsdaWheelz/pushci/internal/exec"
	"github.com/NielsdaWheelz/pushci/internal/outcome"
	"github.com/NielsdaWheelz/pushci/internal/pipeline"
	"github.com/NielsdaWheelz/pushci/internal/render"
	"github.com/NielsdaWheelz/pushci/internal/webhook"
)

func newBuildCmd() *cobra.Command {
	var payloadPath string
	var noReport bool

	cmd := &cobra.Command{
		Use:   "build --payload <file>",
		Short: "Process one push from a saved webhook payload",
		Long: `Process one push from a saved GitHub push payload.

Every commit in the payload is built and tested exactly as if the webhook had
been delivered to 'pushci serve'. Use '-' to read the payload from stdin.

Exit codes:
  0  every commit succeeded
  1  a commit failed to build or test (E_COMMITS_FAILED), or pushci failed
  2  usage error
  3  a commit could not be processed (E_COMMITS_FAILED with an ERROR status)

On failure the tail of the first failing commit's build log is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if payloadPath == "" {
				return errors.New(errors.EUsage, "--payload is required")
			}

			body, err := readPayload(cmd.InOrStdin(), payloadPath)
			if err != nil {
				return err
			}
			batch, err := webhook.DecodePush(body)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Pipeline.RepoURL != "" {
				batch.CloneURL = cfg.Pipeline.RepoURL
			}

			a, err := newApp(cfg, exec.NewRealRunner(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if noReport {
				a.service.Status = nil
				a.service.Notifier = nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			outcomes := a.service.HandlePush(ctx, batch)
			if err := render.WriteOutcomes(cmd.OutOrStdout(), outcomes, a.service.TargetURL); err != nil {
				return err
			}

			return commitsError(batch.FullName(), a.store.Root, outcomes)
		},
	}

	addBuildFlags(cmd.Flags(), &payloadPath, &noReport)

	return cmd
}

// exitInfrastructure is the exit code when a commit ended in ERROR, i.e.
// pushci could not get a verdict from the build tool.
const exitInfrastructure = 3

// commitsError summarizes outcomes that are not SUCCESS. The first failing
// commit's log page is attached as the "log" detail.
func commitsError(repo, logsRoot string, outcomes []pipeline.CommitOutcome) error {
	failed := 0
	infrastructure := false
	var first *pipeline.CommitOutcome
	for i := range outcomes {
		o := &outcomes[i]
		if o.Status == outcome.Success {
			continue
		}
		failed++
		if !o.Status.Terminal() {
			infrastructure = true
		}
		if first == nil {
			first = o
		}
	}
	if failed == 0 {
		return nil
	}

	details := map[string]string{
		"repo": repo,
		"sha":  first.SHA,
	}
	if first.Log != nil {
		details["log"] = filepath.Join(logsRoot, filepath.FromSlash(first.Log.HTMLPath))
	}
	err := errors.NewWithDetails(errors.ECommitsFailed,
		fmt.Sprintf("%d of %d commits did not succeed", failed, len(outcomes)), details)
	if infrastructure {
		return errors.WithExitCode(err, exitInfrastructure)
	}
	return err
}

func addBuildFlags(fs *pflag.FlagSet, payloadPath *string, noReport *bool) {
	fs.StringVar(payloadPath, "payload", "", "path to a GitHub push payload (JSON), or - for stdin")
	fs.BoolVar(noReport, "no-report", false, "skip commit status reporting and email")
}

func readPayload(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errors.Wrap(errors.EInvalidPayload, "failed to read payload from stdin", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithDetails(errors.EInvalidPayload, "failed to read payload", err, map[string]string{
			"path": path,
		})
	}
	return data, nil
}
