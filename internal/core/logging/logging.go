package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Prefix is shown in front of every log line.
const Prefix = "mediagrab"

// New builds the root logger. Unknown levels fall back to info.
func New(w io.Writer, level string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}

	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = log.InfoLevel
	}

	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    lvl == log.DebugLevel,
		Prefix:          Prefix,
		Level:           lvl,
	})
}

// Component returns a child logger tagged with the component name.
func Component(logger *log.Logger, name string) *log.Logger {
	if logger == nil {
		logger = New(io.Discard, "error")
	}
	return logger.With("component", name)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
