// Package config handles loading and validation of the pushci configuration file.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/NielsdaWheelz/pushci/internal/errors"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "pushci.toml"

// Duration is a time.Duration written as a Go duration string ("10m", "3s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full pushci configuration.
type Config struct {
	DataDir  string         `toml:"data_dir"`
	Server   ServerConfig   `toml:"server"`
	Build    BuildConfig    `toml:"build"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Log      LogConfig      `toml:"log"`
	GitHub   GitHubConfig   `toml:"github"`
	Webhook  WebhookConfig  `toml:"webhook"`
	Notify   NotifyConfig   `toml:"notify"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `toml:"addr"`

	// PublicURL is the externally reachable base URL of the log pages.
	PublicURL string `toml:"public_url"`
}

// BuildConfig configures the build tool.
type BuildConfig struct {
	// Tool is the build tool argv; the phase keyword is appended.
	Tool        []string `toml:"tool"`
	Timeout     Duration `toml:"timeout"`
	GracePeriod Duration `toml:"grace_period"`
}

// PipelineConfig configures push processing.
type PipelineConfig struct {
	MaxParallel int `toml:"max_parallel"`

	// RepoURL overrides the clone URL from push payloads when set.
	RepoURL string `toml:"repo_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text or json
}

// GitHubConfig configures commit status reporting.
type GitHubConfig struct {
	Token   string `toml:"token"`
	APIURL  string `toml:"api_url"`
	Context string `toml:"context"`
}

// WebhookConfig configures webhook authentication.
type WebhookConfig struct {
	Secret string `toml:"secret"`
}

// NotifyConfig configures the push summary email.
type NotifyConfig struct {
	SMTPAddr string `toml:"smtp_addr"`
	From     string `toml:"from"`
	Username string `toml:"username"`
	Password string `toml:"password"`

	// Recipients maps repository owner to email address.
	Recipients map[string]string `toml:"recipients"`
}

// Default returns the built-in configuration used for unset keys.
func Default() Config {
	return Config{
		DataDir: "data",
		Server: ServerConfig{
			Addr:      ":8080",
			PublicURL: "http://localhost:8080",
		},
		Build: BuildConfig{
			Tool:        []string{"gradle", "--console=plain"},
			Timeout:     Duration{10 * time.Minute},
			GracePeriod: Duration{3 * time.Second},
		},
		Pipeline: PipelineConfig{MaxParallel: 3},
		Log:      LogConfig{Level: "info", Format: "text"},
		GitHub:   GitHubConfig{Context: "pushci"},
		Notify:   NotifyConfig{Recipients: map[string]string{}},
	}
}

// Load reads configuration from the TOML file at path on top of Default().
// A missing file is an error only when required is true.
// Environment variables always take precedence over file values:
//   - GITHUB_TOKEN          overrides github.token
//   - PUSHCI_WEBHOOK_SECRET overrides webhook.secret
//   - PUSHCI_SMTP_PASSWORD  overrides notify.password
//   - PUSHCI_DATA_DIR       overrides data_dir
func Load(path string, required bool) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, errors.WrapWithDetails(errors.EInvalidConfig, "invalid toml", err, map[string]string{
				"path": path,
			})
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			sort.Strings(keys)
			return Config{}, errors.NewWithDetails(errors.EInvalidConfig, "unknown keys: "+strings.Join(keys, ", "), map[string]string{
				"path":  path,
				"field": keys[0],
			})
		}
	} else if !os.IsNotExist(err) {
		return Config{}, errors.WrapWithDetails(errors.EInvalidConfig, "failed to read config", err, map[string]string{
			"path": path,
		})
	} else if required {
		return Config{}, errors.NewWithDetails(errors.EInvalidConfig, "config file not found", map[string]string{
			"path": path,
		})
	}

	applyEnvOverrides(&cfg)

	if err := Validate(cfg); err != nil {
		if ce, ok := errors.AsCIError(err); ok && ce.Details != nil {
			ce.Details["path"] = path
		}
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("PUSHCI_WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.Secret = v
	}
	if v := os.Getenv("PUSHCI_SMTP_PASSWORD"); v != "" {
		cfg.Notify.Password = v
	}
	if v := os.Getenv("PUSHCI_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
}

// WorkspacesDir is the root under which build workspaces are created.
func (c Config) WorkspacesDir() string {
	return filepath.Join(c.DataDir, "workspaces")
}

// LogsDir is the log store root served over HTTP.
func (c Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// NotifyEnabled reports whether push summaries should be emailed.
func (c Config) NotifyEnabled() bool {
	return c.Notify.SMTPAddr != "" && len(c.Notify.Recipients) > 0
}
