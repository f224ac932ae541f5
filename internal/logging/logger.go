package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// New builds the process-wide logger. Local development gets colorized
// tint output; anything else gets JSON lines for the log collector.
func New() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	if os.Getenv("APP_ENV") == "dev" || os.Getenv("APP_ENV") == "" {
		h := tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h).With("app", "station-tracker")
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(h).With("app", "station-tracker", "env", os.Getenv("APP_ENV"))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
