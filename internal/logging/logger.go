// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the process-wide logger. Init configures it; until then it
// writes text to stderr at info level.
var Logger = logrus.New()

var once sync.Once

// Options configures the logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	// File enables size-based rotation to the given path in addition to stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Service    string
}

// New builds a logger from opts.
func New(opts Options) (*logrus.Logger, error) {
	l := logrus.New()

	level := opts.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}
	l.SetLevel(lvl)

	switch strings.ToLower(opts.Format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	var out io.Writer = os.Stderr
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		})
	}
	l.SetOutput(out)

	if opts.Service != "" {
		l.AddHook(serviceHook(opts.Service))
	}
	return l, nil
}

// Init configures the package Logger once. Later calls are ignored.
func Init(opts Options) error {
	var initErr error
	once.Do(func() {
		l, err := New(opts)
		if err != nil {
			initErr = err
			return
		}
		Logger.SetLevel(l.GetLevel())
		Logger.SetFormatter(l.Formatter)
		Logger.SetOutput(l.Out)
		Logger.ReplaceHooks(l.Hooks)
		Logger.WithField("level", l.GetLevel().String()).Info("logger initialized")
	})
	return initErr
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}

// Discard returns an entry that drops everything. Used in tests.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type serviceHook string

func (h serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["service"]; !ok {
		e.Data["service"] = string(h)
	}
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
