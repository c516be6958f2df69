// Package log wraps slog with per-component loggers so every line
// carries a "component" attribute.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Standard component names.
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentStorage  = "storage"
	ComponentImporter = "importer"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentAuth     = "auth"
	ComponentCLI      = "cli"
)

// Logger decorates slog.Logger with a component attribute.
type Logger struct {
	*slog.Logger
	component string
}

// Setup builds the process-wide default logger. level is one of debug,
// info, warn, error; anything else means info.
func Setup(level string) *Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	logger := &Logger{Logger: slog.New(handler), component: ComponentApp}
	slog.SetDefault(logger.Logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a logger tagging lines with the component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("component", component),
		component: component,
	}
}

func (l *Logger) Component() string { return l.component }
