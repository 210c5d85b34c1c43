package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"

	"github.com/gilkh/livret/internal/config"
)

var (
	mu     sync.RWMutex
	logger = newLogger(os.Stderr)
)

func newLogger(w io.Writer) *slog.Logger {
	level := parseLevel(config.Get("LOG_LEVEL", "info"))
	if strings.EqualFold(config.Get("LOG_FORMAT", ""), "json") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    config.GetBool("NO_COLOR", false),
	}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// Init rebuilds the global logger from the current environment. main calls it
// after .env has been loaded.
func Init() {
	SetOutput(os.Stderr)
}

// SetOutput redirects the global logger, mostly for tests.
func SetOutput(w io.Writer) {
	l := newLogger(w)
	mu.Lock()
	logger = l
	mu.Unlock()
	slog.SetDefault(l)
}

// Logger returns the global structured logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }
func Info(msg string, args ...any)  { Logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warn(msg, args...) }
func Error(msg string, args ...any) { Logger().Error(msg, args...) }

func DebugWithComponent(component, msg string, args ...any) {
	Logger().Debug(msg, append([]any{"component", component}, args...)...)
}

func InfoWithComponent(component, msg string, args ...any) {
	Logger().Info(msg, append([]any{"component", component}, args...)...)
}

func WarnWithComponent(component, msg string, args ...any) {
	Logger().Warn(msg, append([]any{"component", component}, args...)...)
}

func ErrorWithComponent(component, msg string, args ...any) {
	Logger().Error(msg, append([]any{"component", component}, args...)...)
}
