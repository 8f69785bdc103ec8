// Package logging builds the structured logger shared by all components.
//
// Components never reach for a package-level logger; the *logrus.Logger
// returned by New is passed explicitly at construction time so tests can
// substitute a silent or recording logger.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures logger construction.
type Options struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string

	// File, when set, routes output to a size-rotated log file instead of
	// stderr.
	File string

	// MaxSizeMB bounds a single log file before rotation. Defaults to 10.
	MaxSizeMB int

	// MaxBackups bounds the number of rotated files kept. Defaults to 3.
	MaxBackups int
}

// New builds a JSON-formatted logrus logger from opts.
func New(opts Options) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		maxBackups := opts.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		log.SetOutput(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
		})
	} else {
		log.SetOutput(os.Stderr)
	}

	return log
}

// Discard returns a logger that drops everything. Used in tests that assert
// on returned values rather than log output.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
