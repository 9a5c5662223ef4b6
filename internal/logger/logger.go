package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sitecrew/advance-engine/internal/config"
)

// New builds a logrus logger from the logging config. Unknown levels fall back
// to info.
func New(cfg config.LoggingConfig) *logrus.Logger {
	return NewWithOutput(cfg, os.Stdout)
}

func NewWithOutput(cfg config.LoggingConfig, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)

	if strings.EqualFold(cfg.Format, "text") {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	return log
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// LogError writes err with the module/function context used across services.
func LogError(log logrus.FieldLogger, module, funcName, context string, data logrus.Fields, err error) {
	entry := log.WithFields(logrus.Fields{
		"module":   module,
		"funcName": funcName,
		"context":  context,
	})
	if len(data) > 0 {
		entry = entry.WithFields(data)
	}
	entry.Error(err.Error())
}
