package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level is the minimum level written.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format selects the slog handler.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config describes the process logger.
type Config struct {
	Level     Level
	Format    Format
	AddSource bool
	Writer    io.Writer // defaults to os.Stdout
}

// New builds a *slog.Logger from cfg. Unknown levels fall back to info and unknown
// formats to JSON.
func New(cfg Config) *slog.Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}

	opts := &slog.HandlerOptions{
		AddSource: cfg.AddSource,
		Level:     ParseLevel(string(cfg.Level)),
	}

	var h slog.Handler
	switch Format(strings.ToLower(string(cfg.Format))) {
	case FormatText:
		h = slog.NewTextHandler(w, opts)
	default:
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

func ParseLevel(s string) slog.Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
