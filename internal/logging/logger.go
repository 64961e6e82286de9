package logging

import (
	"io"
	"os"

	"github.com/messagely/apiserver/config"
	"github.com/sirupsen/logrus"
)

// New creates a logrus logger from config. Development environments get
// human readable text output, everything else JSON.
func New(cfg config.Config) *logrus.Logger {
	return NewWithOutput(cfg, os.Stdout)
}

// NewWithOutput is New with an explicit writer.
func NewWithOutput(cfg config.Config, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	format := cfg.Log.Format
	if format == "" {
		format = "json"
		if cfg.Env == "dev" {
			format = "text"
		}
	}
	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}
