// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config selects output format and verbosity.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // text or json
	Output io.Writer
}

// Init configures the standard logrus logger and returns it.
// Unknown levels fall back to info, unknown formats to text.
func Init(cfg Config) *logrus.Logger {
	logger := logrus.StandardLogger()
	Configure(logger, cfg)
	return logger
}

// Configure applies cfg to logger
func Configure(logger *logrus.Logger, cfg Config) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}

// Component returns a logger entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
