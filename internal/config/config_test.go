package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ENVIRONMENT", "DEBUGGER_AUTH_TOKEN", "DEBUGGER_MAX_SESSIONS",
		"DEBUGGER_SESSION_IDLE_TIMEOUT", "DEBUGGER_COMMAND_TIMEOUT",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, 16, cfg.MaxConcurrentSessions)
	assert.False(t, cfg.IsProduction())
}

func TestLoadProductionRequiresToken(t *testing.T) {
	clearEnv(t)
	os.Setenv("ENVIRONMENT", "production")
	defer os.Unsetenv("ENVIRONMENT")

	_, err := Load()
	assert.Error(t, err)

	os.Setenv("DEBUGGER_AUTH_TOKEN", "secret")
	defer os.Unsetenv("DEBUGGER_AUTH_TOKEN")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestLoadRejectsNonPositiveMaxSessions(t *testing.T) {
	clearEnv(t)
	os.Setenv("DEBUGGER_MAX_SESSIONS", "0")
	defer os.Unsetenv("DEBUGGER_MAX_SESSIONS")
	_, err := Load()
	assert.Error(t, err)
}

func TestGetEnvironmentDefault(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, EnvDevelopment, GetEnvironment())
}
