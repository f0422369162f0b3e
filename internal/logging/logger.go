// Package logging provides structured logging for the debugger orchestrator.
// All diagnostics go to stderr (zap's default output path), keeping stdout
// free for the JSON-RPC tool façade (spec.md §6 CLI surface).
package logging

import (
	"os"
	"regexp"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	once   sync.Once
)

// Init initializes the global logger. Safe to call multiple times.
func Init() {
	once.Do(func() {
		var cfg zap.Config
		if os.Getenv("ENVIRONMENT") == "production" {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "ts"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		} else {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		if lvl, lerr := zapcore.ParseLevel(os.Getenv("LOG_LEVEL")); lerr == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}

		var err error
		logger, err = cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			// Fallback to nop logger
			logger = zap.NewNop()
		}
		sugar = logger.Sugar()
	})
}

// L returns the global structured logger
func L() *zap.Logger {
	if logger == nil {
		Init()
	}
	return logger
}

// S returns the global sugared logger (printf-style)
func S() *zap.SugaredLogger {
	if sugar == nil {
		Init()
	}
	return sugar
}

// Sync flushes any buffered log entries. Call before app exit.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// WithContext returns a logger with additional structured fields
func WithContext(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// tokenLike matches bearer tokens and query-string secrets that might leak
// into a logged command line or inspector URL.
var tokenLike = regexp.MustCompile(`(?i)(token|secret|authorization)=([^&\s"']+)`)

// RedactSecrets masks token-shaped substrings before a value is logged, so
// that a launch command or websocket URL containing credentials never hits
// the log sink verbatim (spec.md §1 PII/secret masking policy module).
func RedactSecrets(s string) string {
	return tokenLike.ReplaceAllString(s, "$1=***")
}
