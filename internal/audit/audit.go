// Package audit records every tool call the façade accepts, so a session
// that crashed or misbehaved can be reconstructed after the fact (spec.md
// §6 "Audit log"). Entries go through the same structured logger as
// everything else, at a dedicated "audit" field so they're easy to filter
// out of general diagnostics.
package audit

import (
	"time"

	"go.uber.org/zap"
)

// Entry is one recorded tool invocation.
type Entry struct {
	Tool      string
	SessionID string
	Arguments map[string]any
	Err       string
	Duration  time.Duration
}

// Logger appends audit entries to a zap logger.
type Logger struct {
	log *zap.Logger
}

// New constructs an audit Logger bound to the process logger.
func New(log *zap.Logger) *Logger {
	return &Logger{log: log.With(zap.Bool("audit", true))}
}

// Record logs one completed tool call.
func (a *Logger) Record(e Entry) {
	fields := []zap.Field{
		zap.String("tool", e.Tool),
		zap.String("session_id", e.SessionID),
		zap.Duration("duration", e.Duration),
	}
	if e.Err != "" {
		fields = append(fields, zap.String("error", e.Err))
		a.log.Warn("tool call", fields...)
		return
	}
	a.log.Info("tool call", fields...)
}
