package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Options struct {
	Level string
	JSON  bool
	// Writer defaults to stderr.
	Writer io.Writer
}

// New builds a logger; callers pass it down explicitly.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	cfg := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, cfg)
	} else {
		h = slog.NewTextHandler(w, cfg)
	}
	return slog.New(h)
}

// Nop discards everything.
func Nop() *slog.Logger { return slog.New(slog.DiscardHandler) }

func ParseLevel(s string) slog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
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

// OptionsFromEnv reads BENCHML_LOG_LEVEL and BENCHML_LOG_JSON.
func OptionsFromEnv() Options {
	json := false
	if b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("BENCHML_LOG_JSON"))); err == nil {
		json = b
	}
	return Options{Level: os.Getenv("BENCHML_LOG_LEVEL"), JSON: json}
}

func FromEnv() *slog.Logger { return New(OptionsFromEnv()) }
