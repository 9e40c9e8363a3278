package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level   string
	Format  string // "json" or "text"
	File    string // optional rotated log file, written alongside stdout
	Env     string
	Service string
}

// New builds the process logger. Production defaults to JSON.
func New(opts Options) *slog.Logger {
	return slog.New(newHandler(opts, os.Stdout)).With(
		slog.String("service", opts.Service),
		slog.String("env", opts.Env),
	)
}

func newHandler(opts Options, stdout io.Writer) slog.Handler {
	w := stdout
	if opts.File != "" {
		w = io.MultiWriter(stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
	}
	dev := strings.EqualFold(opts.Env, "development") || strings.EqualFold(opts.Env, "dev")
	ho := &slog.HandlerOptions{Level: ParseLevel(opts.Level), AddSource: dev}
	if strings.EqualFold(opts.Format, "json") || (opts.Format == "" && !dev) {
		return slog.NewJSONHandler(w, ho)
	}
	return slog.NewTextHandler(w, ho)
}

func ParseLevel(s string) slog.Level {
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
