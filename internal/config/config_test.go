package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	keys := []string{
		"TRUSTCORE_ENV", "TRUSTCORE_HTTP_ADDR", "TRUSTCORE_SERVICE_KEY",
		"TRUSTCORE_AGENT_REPLAY_WINDOW", "TRUSTCORE_DB_HOST", "TRUSTCORE_DB_PORT",
		"TRUSTCORE_DB_USER", "TRUSTCORE_DB_PASSWORD", "TRUSTCORE_DB_NAME",
		"TRUSTCORE_DB_SSLMODE", "TRUSTCORE_DB_MAX_CONNS", "LOG_LEVEL",
		"TRUSTCORE_METRICS_ENABLED", "TRUSTCORE_METRICS_ADDR",
		"TRUSTCORE_RATE_LIMIT_REQUESTS", "TRUSTCORE_RATE_LIMIT_WINDOW",
		"TRUSTCORE_RATE_LIMIT_GRACE", "TRUSTCORE_RATE_LIMIT_CLEANUP_INTERVAL",
		"TRUSTCORE_CAPABILITY_SWEEP_INTERVAL",
	}
	for _, k := range keys {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadFailsWithoutServiceKey(t *testing.T) {
	clearEnv(t)
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadAppliesDefaultsAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRUSTCORE_SERVICE_KEY", "secret")
	t.Setenv("TRUSTCORE_DB_HOST", "db.internal")
	t.Setenv("TRUSTCORE_RATE_LIMIT_REQUESTS", "250")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.ServiceKey)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 250, cfg.RateLimit.RequestsPerWindow)
	assert.Equal(t, 300*time.Second, cfg.AgentReplayWindow)
	assert.Equal(t, "trustcore", cfg.Postgres.Database)
}

func TestLoadRejectsEmptyDatabaseName(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRUSTCORE_SERVICE_KEY", "secret")
	t.Setenv("TRUSTCORE_DB_NAME", "")

	_, err := Load("")
	assert.Error(t, err)
}
