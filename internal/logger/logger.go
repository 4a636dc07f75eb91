package logger

import (
	"log/slog"
	"os"
)

// Init configures the process-wide slog logger. Debug level is enabled either
// by the flag or by DEBUG=true in the environment.
func Init(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug || os.Getenv("DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	l := slog.New(slog.NewTextHandler(os.Stdout, opts))
	slog.SetDefault(l)
	return l
}

// Component returns a child of the current default logger tagged with the
// component name. Loggers taken before Init keep the old handler.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}

func Info(msg string, args ...any) {
	slog.Default().Info(msg, args...)
}

func Error(msg string, args ...any) {
	slog.Default().Error(msg, args...)
}
