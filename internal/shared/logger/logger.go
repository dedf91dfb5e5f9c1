// Package logger wraps log/slog. Console output goes through tint, JSON
// output through slog's own handler, and records at or above a threshold
// carry the caller's file and line.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"github.com/orris-inc/entitlements/internal/shared/config"
)

var (
	mu       sync.RWMutex
	root     *slog.Logger
	levelVar = new(slog.LevelVar)
)

// Init configures the process-wide logger. Warnings and errors carry their
// source location; verbose extends that to every level.
func Init(cfg *config.LoggerConfig, verbose bool) error {
	levelVar.Set(ParseLevel(cfg.Level))

	writer, err := openOutput(cfg.OutputPath)
	if err != nil {
		return err
	}

	sourceFrom := slog.LevelWarn
	if verbose {
		sourceFrom = slog.LevelDebug
	}

	l := slog.New(withSource(newHandler(writer, cfg.Format, levelVar), sourceFrom))

	mu.Lock()
	root = l
	mu.Unlock()
	slog.SetDefault(l)
	return nil
}

// ParseLevel maps a configured level name to a slog level. Unknown names
// fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// SetLevel changes the minimum level at runtime.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

func openOutput(path string) (io.Writer, error) {
	switch strings.ToLower(path) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func newHandler(w io.Writer, format string, level slog.Leveler) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:       level,
		TimeFormat:  time.DateTime,
		NoColor:     !isTerminal(w),
		ReplaceAttr: tintErrors,
	})
}

// tintErrors renders error values with tint's error styling.
func tintErrors(_ []string, a slog.Attr) slog.Attr {
	if err, ok := a.Value.Any().(error); ok && a.Value.Kind() == slog.KindAny {
		return tint.Err(err)
	}
	return a
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Get returns the process logger, building a console logger on stdout when
// Init was never called.
func Get() *slog.Logger {
	mu.RLock()
	l := root
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		root = slog.New(withSource(newHandler(os.Stdout, "console", levelVar), slog.LevelWarn))
	}
	return root
}

func Debug(msg string, args ...any) { std().log(slog.LevelDebug, msg, args) }
func Info(msg string, args ...any) { std().log(slog.LevelInfo, msg, args) }
func Warn(msg string, args ...any) { std().log(slog.LevelWarn, msg, args) }
func Error(msg string, args ...any) { std().log(slog.LevelError, msg, args) }
