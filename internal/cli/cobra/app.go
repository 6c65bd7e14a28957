package cobra

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/NielsdaWheelz/pushci/internal/config"
	"github.com/NielsdaWheelz/pushci/internal/events"
	"github.com/NielsdaWheelz/pushci/internal/exec"
	"github.com/NielsdaWheelz/pushci/internal/logging"
	"github.com/NielsdaWheelz/pushci/internal/logstore"
	"github.com/NielsdaWheelz/pushci/internal/notify"
	"github.com/NielsdaWheelz/pushci/internal/pipeline"
	"github.com/NielsdaWheelz/pushci/internal/process"
	"github.com/NielsdaWheelz/pushci/internal/status"
	"github.com/NielsdaWheelz/pushci/internal/workspace"
)

// app holds the components shared by the commands.
type app struct {
	cfg     config.Config
	log     *logrus.Logger
	store   *logstore.Store
	service *pipeline.Service
}

// loadConfig loads the config named by --config, or ./pushci.toml if it
// exists.
func loadConfig() (config.Config, error) {
	path := globalOpts.ConfigPath
	required := path != ""
	if path == "" {
		path = config.DefaultPath
	}
	return config.Load(path, required)
}

// newApp builds the pipeline from cfg. Logs go to logOut.
func newApp(cfg config.Config, cr exec.CommandRunner, logOut io.Writer) (*app, error) {
	log, err := logging.New(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}

	runner := process.NewRunner(cr, cfg.Build.Tool)
	runner.GracePeriod = cfg.Build.GracePeriod.Duration

	store := logstore.New(cfg.LogsDir())
	ctrl := &pipeline.Controller{
		Workspaces:  workspace.NewManager(cfg.WorkspacesDir(), cr),
		Runner:      runner,
		Logs:        store,
		Journal:     events.NewJournal(cfg.DataDir),
		Log:         log,
		Timeout:     cfg.Build.Timeout.Duration,
		MaxParallel: cfg.Pipeline.MaxParallel,
	}
	svc := &pipeline.Service{
		Controller: ctrl,
		PublicURL:  cfg.Server.PublicURL,
		Log:        log,
	}

	if cfg.GitHub.Token != "" {
		svc.Status = status.NewReporter(cfg.GitHub.Token, cfg.GitHub.APIURL, cfg.GitHub.Context)
	} else {
		log.Info("github.token not set; commit statuses will not be reported")
	}
	if cfg.NotifyEnabled() {
		svc.Notifier = &notify.Notifier{
			Recipients: cfg.Notify.Recipients,
			From:       cfg.Notify.From,
			Sender: &notify.SMTPSender{
				Addr:     cfg.Notify.SMTPAddr,
				Username: cfg.Notify.Username,
				Password: cfg.Notify.Password,
			},
			LogURL: svc.TargetURL,
		}
	}

	for _, bin := range []string{"git", cfg.Build.Tool[0]} {
		if _, err := cr.LookPath(bin); err != nil {
			log.WithField("command", bin).Warn("executable not found in PATH; builds will fail")
		}
	}

	return &app{cfg: cfg, log: log, store: store, service: svc}, nil
}
