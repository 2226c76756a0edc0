// Package logger owns the process-wide logrus logger.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

// Options controls how Init configures the logger.
type Options struct {
	Level  string
	JSON   bool
	Output io.Writer
}

// Init (re)configures the shared logger. An unknown level falls back to info.
func Init(opts Options) {
	l := logrus.New()
	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if opts.Output != nil {
		l.SetOutput(opts.Output)
	} else {
		l.SetOutput(os.Stderr)
	}
	logger = l
}

// Get returns the shared logger, initializing it with defaults on first use.
func Get() *logrus.Logger {
	once.Do(func() {
		if logger == nil {
			Init(Options{Level: "info"})
		}
	})
	return logger
}

// Discard returns a logger that drops everything. Tests use it to keep
// output quiet without touching the shared logger.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
