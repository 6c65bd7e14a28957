// Package logging builds the process logger from configuration.
package logging

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/NielsdaWheelz/pushci/internal/config"
	"github.com/NielsdaWheelz/pushci/internal/errors"
)

// New returns a logger writing to w with the configured level and format.
func New(cfg config.LogConfig, w io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.WrapWithDetails(errors.EInvalidConfig, "invalid log level", err, map[string]string{
			"field": "log.level",
		})
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, errors.NewWithDetails(errors.EInvalidConfig, "unknown log format "+cfg.Format, map[string]string{
			"field": "log.format",
		})
	}
	return l, nil
}
