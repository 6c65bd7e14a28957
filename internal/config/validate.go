package config

import (
	"net"
	"net/url"
	"strings"
	"unicode"

	"github.com/NielsdaWheelz/pushci/internal/errors"
)

// ValidationError represents a single validation error with field context.
type ValidationError struct {
	Field string
	Msg   string
}

func (v *ValidationError) Error() string {
	if v.Field != "" {
		return v.Field + ": " + v.Msg
	}
	return v.Msg
}

// Validate checks cfg and returns E_INVALID_CONFIG naming the first bad field.
func Validate(cfg Config) error {
	if verr := validate(cfg); verr != nil {
		return errors.WrapWithDetails(errors.EInvalidConfig, verr.Error(), verr, map[string]string{
			"field": verr.Field,
		})
	}
	return nil
}

func validate(cfg Config) *ValidationError {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return &ValidationError{Field: "data_dir", Msg: "must not be empty"}
	}

	if len(cfg.Build.Tool) == 0 || cfg.Build.Tool[0] == "" {
		return &ValidationError{Field: "build.tool", Msg: "must name the build tool"}
	}
	if containsWhitespace(cfg.Build.Tool[0]) {
		return &ValidationError{Field: "build.tool", Msg: "first element must be a single executable; pass arguments as separate elements"}
	}
	if cfg.Build.Timeout.Duration <= 0 {
		return &ValidationError{Field: "build.timeout", Msg: "must be positive"}
	}
	if cfg.Build.GracePeriod.Duration < 0 {
		return &ValidationError{Field: "build.grace_period", Msg: "must not be negative"}
	}

	if cfg.Pipeline.MaxParallel < 1 {
		return &ValidationError{Field: "pipeline.max_parallel", Msg: "must be at least 1"}
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		return &ValidationError{Field: "log.format", Msg: "must be text or json"}
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "panic", "fatal", "error", "warn", "warning", "info", "debug", "trace":
	default:
		return &ValidationError{Field: "log.level", Msg: "unknown level " + cfg.Log.Level}
	}

	if cfg.Server.PublicURL != "" {
		u, err := url.Parse(cfg.Server.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ValidationError{Field: "server.public_url", Msg: "must be an absolute http(s) URL"}
		}
	}
	if cfg.GitHub.APIURL != "" {
		u, err := url.Parse(cfg.GitHub.APIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ValidationError{Field: "github.api_url", Msg: "must be an absolute http(s) URL"}
		}
	}

	if cfg.Notify.SMTPAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.Notify.SMTPAddr); err != nil {
			return &ValidationError{Field: "notify.smtp_addr", Msg: "must be host:port"}
		}
		if cfg.Notify.From == "" {
			return &ValidationError{Field: "notify.from", Msg: "required when notify.smtp_addr is set"}
		}
	}
	for owner, addr := range cfg.Notify.Recipients {
		if !strings.Contains(addr, "@") || containsWhitespace(addr) {
			return &ValidationError{Field: "notify.recipients." + owner, Msg: "invalid email address"}
		}
	}

	return nil
}

// containsWhitespace returns true if s contains any whitespace character.
func containsWhitespace(s string) bool {
	for _, r := range s {
		if unicode.IsSpace(r) {
			return true
		}
	}
	return false
}
