// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package logger is the structured logger used inside the module. It is a thin
// wrapper over zerolog that attaches the request correlation id to every entry.
package logger

import (
	"context"

	"github.com/rs/zerolog"
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
	Log(ctx context.Context, level Level, message string, fields ...KV)
}

// KV is a single structured field.
type KV struct {
	Key   string
	Value any
}

// Field creates a field for any value
func Field(key string, value any) KV {
	return KV{Key: key, Value: value}
}

// Logger logs through zerolog.
type Logger struct {
	logging zerolog.Logger
}

// New creates a Logger. A nil zerolog.Logger produces a logger that discards everything.
func New(z *zerolog.Logger) *Logger {
	if z == nil {
		return &Logger{logging: zerolog.Nop()}
	}
	return &Logger{logging: *z}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(nil)
}

// Log writes message at level with the correlation id found on ctx.
func (l *Logger) Log(ctx context.Context, level Level, message string, fields ...KV) {
	if l == nil {
		return
	}
	var event *zerolog.Event
	switch level {
	case Err:
		event = l.logging.Error()
	case Warn:
		event = l.logging.Warn()
	case Debug:
		event = l.logging.Debug()
	default:
		event = l.logging.Info()
	}
	if event == nil {
		return
	}

	if id := CorrelationID(ctx); id != "" {
		event = event.Str("correlation_id", id)
	}
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			event = event.AnErr(f.Key, err)
			continue
		}
		event = event.Interface(f.Key, f.Value)
	}
	event.Msg(message)
}

type correlationKey struct{}

// WithCorrelationID returns a context carrying the correlation id sent as client-request-id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation id on ctx or "".
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
