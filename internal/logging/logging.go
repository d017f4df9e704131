// Package logging owns the process logger. Console output goes to stderr in
// zerolog's human format; when a log file is configured every event is also
// written to it as JSON.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu      sync.Mutex
	logFile *os.File
	console io.Writer = os.Stderr
	logger            = newLogger(console, nil)
)

func newLogger(out io.Writer, file io.Writer) zerolog.Logger {
	writers := []io.Writer{zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}}
	if file != nil {
		writers = append(writers, file)
	}
	return zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger()
}

// Init points the logger at the console and, if logPath is set, appends JSON
// events to that file. Calling Init again replaces the previous file.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var file io.Writer
	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = f
		file = f
	}

	logger = newLogger(console, file)
	return nil
}

// Close detaches and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(console, nil)
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// SetLevel sets the global level from a name such as "debug" or "warn".
// Unknown names select info.
func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "off", "disabled":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Logger returns the current process logger.
func Logger() *zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	l := logger
	return &l
}

// Component returns a logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// LogEvent records a formatted info-level message.
func LogEvent(format string, args ...any) {
	Logger().Info().Msg(fmt.Sprintf(format, args...))
}

// LogError records a formatted error-level message carrying err.
func LogError(err error, format string, args ...any) {
	Logger().Error().Err(err).Msg(fmt.Sprintf(format, args...))
}
