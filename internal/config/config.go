// Package config loads and validates the debugger orchestrator's runtime
// configuration from the environment, in the style APEX.BUILD used for its
// secrets validation: small focused validator functions with descriptive
// errors, rather than a generic schema library.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment constants, mirrored from the teacher's secrets validation.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

// Config holds the process-wide configuration for the debugger-mcp binary.
type Config struct {
	Environment string

	// AuthToken, when non-empty, is required as a bearer token on every
	// tools/call request (see internal/authtoken). Empty disables auth,
	// which is only acceptable outside production.
	AuthToken string

	// MaxConcurrentSessions bounds the session registry (spec.md §6).
	MaxConcurrentSessions int

	// SessionIdleTimeout tears a session down if no operation is observed
	// for this long (SPEC_FULL.md §5, resource limits).
	SessionIdleTimeout time.Duration

	// Default deadlines, overridable per call (spec.md §5).
	CommandTimeout    time.Duration
	SessionStartTimeout time.Duration
	ProfilerStopTimeout time.Duration

	// AttachDeadline bounds how long a breakpoint set can wait for a
	// matching Debugger.scriptParsed event before returning the breakpoint
	// still pending (spec.md §4.4). It is carried into session.Config; the
	// debugger_set_breakpoint tool passes a fixed 5s deadline to
	// breakpoints.Registry.Set rather than this value.
	AttachDeadline time.Duration

	// SourceMapSourceDir/SourceMapOutputDir, when both set, tell
	// internal/sourcemap's FindCompiled how a build step remaps the source
	// tree onto its compiled output (e.g. "src" -> "dist"), so a breakpoint
	// set against a .ts file can be resolved before its compiled sibling has
	// even parsed (spec.md §4.3).
	SourceMapSourceDir string
	SourceMapOutputDir string

	// ShutdownGrace bounds how long the registry waits for in-flight
	// teardowns before forcing them (spec.md §5).
	ShutdownGrace time.Duration

	RateLimitPerMinute int
}

// Load reads configuration from the environment, applying the same
// production-aware defaults pattern as the teacher's secrets validation.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:            GetEnvironment(),
		AuthToken:              os.Getenv("DEBUGGER_AUTH_TOKEN"),
		MaxConcurrentSessions:  envInt("DEBUGGER_MAX_SESSIONS", 16),
		SessionIdleTimeout:     envDuration("DEBUGGER_SESSION_IDLE_TIMEOUT", 10*time.Minute),
		CommandTimeout:         envDuration("DEBUGGER_COMMAND_TIMEOUT", 5*time.Second),
		SessionStartTimeout:    envDuration("DEBUGGER_START_TIMEOUT", 10*time.Second),
		ProfilerStopTimeout:    envDuration("DEBUGGER_PROFILER_STOP_TIMEOUT", 30*time.Second),
		AttachDeadline:         envDuration("DEBUGGER_ATTACH_DEADLINE", 5*time.Second),
		ShutdownGrace:          envDuration("DEBUGGER_SHUTDOWN_GRACE", 10*time.Second),
		RateLimitPerMinute:     envInt("DEBUGGER_RATE_LIMIT_PER_MIN", 600),
		SourceMapSourceDir:     os.Getenv("DEBUGGER_SOURCE_DIR"),
		SourceMapOutputDir:     os.Getenv("DEBUGGER_OUTPUT_DIR"),
	}

	if cfg.IsProduction() && cfg.AuthToken == "" {
		return nil, fmt.Errorf("DEBUGGER_AUTH_TOKEN is required when ENVIRONMENT=production")
	}
	if cfg.MaxConcurrentSessions <= 0 {
		return nil, fmt.Errorf("DEBUGGER_MAX_SESSIONS must be positive, got %d", cfg.MaxConcurrentSessions)
	}
	return cfg, nil
}

// IsProduction reports whether the configured environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetEnvironment returns the normalized ENVIRONMENT value, defaulting to
// development when unset.
func GetEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("ENVIRONMENT")))
	if env == "" {
		return EnvDevelopment
	}
	return env
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
