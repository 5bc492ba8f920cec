// Package logging configures the application loggers: a structured JSON
// logger on stdout, a human-readable logger on stderr, and per-service
// rotating file loggers.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kinderlab/tnsmarshal/internal/conf"
)

var structuredLogger *slog.Logger
var humanReadableLogger *slog.Logger

// Init initializes the logging system with structured and human-readable
// loggers. JSON goes to stdout, text to stderr.
func Init() {
	structuredLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	humanReadableLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(structuredLogger)
}

// NewFileLogger creates a service-scoped logger writing JSON to a rotating
// file. Returns the logger, a closer for graceful shutdown, and an error.
// Rotation parameters come from the main log config; zero values fall back
// to package defaults.
func NewFileLogger(filePath, serviceName string, level slog.Leveler, logCfg *conf.LogConfig) (*slog.Logger, func() error, error) {
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	maxSizeMB, maxAge, backups, compress := 100, 28, 3, false
	if logCfg != nil {
		if logCfg.MaxSize > 0 {
			maxSizeMB = logCfg.MaxSize
		}
		if logCfg.MaxAge > 0 {
			maxAge = logCfg.MaxAge
		}
		if logCfg.Backups > 0 {
			backups = logCfg.Backups
		}
		compress = logCfg.Compress
	}

	logWriter := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    maxSizeMB,
		MaxAge:     maxAge,
		MaxBackups: backups,
		Compress:   compress,
	}

	handler := slog.NewJSONHandler(logWriter, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With("service", serviceName)
	return logger, logWriter.Close, nil
}

// ForService returns a file logger for the named service, falling back to a
// discard logger when the file cannot be opened so callers always get a
// usable logger.
func ForService(serviceName string, level slog.Leveler, logCfg *conf.LogConfig) (*slog.Logger, func() error) {
	path := filepath.Join("logs", serviceName+".log")
	logger, closer, err := NewFileLogger(path, serviceName, level, logCfg)
	if err != nil {
		Error("Failed to initialize file logger, falling back to discard", "service", serviceName, "error", err)
		fb := slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: level}))
		return fb.With("service", serviceName), func() error { return nil }
	}
	return logger, closer
}

// Debug logs at Debug level using the structured logger.
func Debug(msg string, args ...any) { defaultLogger().Debug(msg, args...) }

// Info logs at Info level using the structured logger.
func Info(msg string, args ...any) { defaultLogger().Info(msg, args...) }

// Warn logs at Warn level using the structured logger.
func Warn(msg string, args ...any) { defaultLogger().Warn(msg, args...) }

// Error logs at Error level using the structured logger.
func Error(msg string, args ...any) { defaultLogger().Error(msg, args...) }

func defaultLogger() *slog.Logger {
	if structuredLogger != nil {
		return structuredLogger
	}
	return slog.Default()
}

// Human returns the human-readable logger for operator-facing output.
func Human() *slog.Logger {
	if humanReadableLogger != nil {
		return humanReadableLogger
	}
	return slog.Default()
}
