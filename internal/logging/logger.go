package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex

	base = newBase()
)

func newBase() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

// NewLogger returns the logger for a component. Loggers are created once per
// component and share the process-wide level and format.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}
	logger := base.WithField("component", component)
	loggers[component] = logger
	return logger
}

// Configure sets the level and format of every logger. FOCUSFLOW_LOG_LEVEL
// takes precedence over level; an unknown level falls back to info.
func Configure(level, format string) {
	if env := os.Getenv("FOCUSFLOW_LOG_LEVEL"); env != "" {
		level = env
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	base.SetLevel(parsed)

	switch strings.ToLower(format) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if os.Getenv("FOCUSFLOW_LOG_CALLER") == "true" {
		base.SetReportCaller(true)
	}
}

// SetOutput redirects every logger, mostly for tests
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// Level reports the configured level
func Level() logrus.Level {
	return base.GetLevel()
}
