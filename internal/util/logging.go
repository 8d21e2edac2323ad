package util

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type loggerContextKey struct{}

// InitLogger configures the global slog logger with JSON output and level.
// Accepts levels: debug, info, warn, error. Defaults to info on unknown input.
// When logsDir is set, output is also written to a size-rotated file
// named after the service. The returned func flushes and closes that file.
func InitLogger(level, service, logsDir string) (*slog.Logger, func() error) {
	var slogLevel slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closeFn := func() error { return nil }
	if dir := strings.TrimSpace(logsDir); dir != "" {
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(dir, serviceName(service)+".log"),
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closeFn = rotator.Close
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     slogLevel,
		AddSource: true,
	})
	logger := slog.New(handler).With("service", serviceName(service))
	slog.SetDefault(logger)
	return logger, closeFn
}

// ContextWithLogger stores a request-scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext returns the request-scoped logger or the default one.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}

// Fatal logs at error level and exits. Only for process startup.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func serviceName(service string) string {
	service = strings.TrimSpace(service)
	if service == "" {
		return "unknown"
	}
	return service
}
