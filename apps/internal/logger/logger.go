// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package logger provides the leveled, structured logger used while broker responses are
// processed. It is a thin layer over log/slog so callers can hand in their own *slog.Logger.
package logger

import (
	"context"
	"log/slog"
)

type Level string

const (
	Info  Level = "info"
	Err   Level = "error"
	Warn  Level = "warn"
	Debug Level = "debug"
)

// LoggerInterface defines the methods that a logger should implement
type LoggerInterface interface {
	Log(ctx context.Context, level Level, message string, fields ...any)
}

type logger struct {
	logging *slog.Logger
}

// New creates a logger backed by slogLogger. slog.Default() is used when slogLogger is nil.
func New(slogLogger *slog.Logger) LoggerInterface {
	if slogLogger == nil {
		slogLogger = slog.Default()
	}
	return &logger{logging: slogLogger}
}

// Log writes message at level with the given structured fields.
func (a *logger) Log(ctx context.Context, level Level, message string, fields ...any) {
	if a == nil || a.logging == nil {
		return
	}
	a.logging.Log(ctx, slogLevel(level), message, fields...)
}

func slogLevel(level Level) slog.Level {
	switch level {
	case Info:
		return slog.LevelInfo
	case Err:
		return slog.LevelError
	case Warn:
		return slog.LevelWarn
	case Debug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a configured level name to a slog.Level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	return slogLevel(Level(name))
}

// Field creates a slog field for any value
func Field(key string, value any) any {
	return slog.Any(key, value)
}
