package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv sets each key to "", which getEnv/getEnvInt/getEnvDuration
// treat identically to an absent variable.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaultsInDebugMode(t *testing.T) {
	clearEnv(t, "JWT_SECRET", "WORK_DIR", "BUS_LISTEN_ADDR", "ARCHIVE_CONCURRENCY")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.WorkDir)
	assert.Equal(t, "0.0.0.0:8081", cfg.BusListenAddr)
	assert.Equal(t, 10, cfg.Archive.Concurrency)
	assert.Equal(t, 3, cfg.Archive.MaxRetryCount)
	assert.Equal(t, 5*time.Second, cfg.Archive.BackoffBase)
	assert.Equal(t, 60*time.Second, cfg.Archive.BackoffCap)
	assert.NotEmpty(t, cfg.JWT.Secret, "debug mode must auto-generate a JWT secret")
	assert.Equal(t, "edge-server", cfg.JWT.Issuer)
	assert.Equal(t, "edge-clients", cfg.JWT.Audience)
}

func TestLoadRequiresJWTSecretOutsideDebug(t *testing.T) {
	clearEnv(t, "JWT_SECRET")
	t.Setenv("DEBUG", "false")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsShortJWTSecretOutsideDebug(t *testing.T) {
	t.Setenv("DEBUG", "false")
	t.Setenv("JWT_SECRET", "too-short")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadAcceptsLongJWTSecretOutsideDebug(t *testing.T) {
	t.Setenv("DEBUG", "false")
	t.Setenv("JWT_SECRET", "01234567890123456789012345678901")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "01234567890123456789012345678901", cfg.JWT.Secret)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("DEBUG", "true")
	t.Setenv("WORK_DIR", "/var/lib/edge")
	t.Setenv("ARCHIVE_CONCURRENCY", "25")
	t.Setenv("ARCHIVE_BACKOFF_CAP", "2m")
	t.Setenv("JWT_EXPIRATION_MINUTES", "60")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/edge", cfg.WorkDir)
	assert.Equal(t, 25, cfg.Archive.Concurrency)
	assert.Equal(t, 2*time.Minute, cfg.Archive.BackoffCap)
	assert.Equal(t, 60, cfg.JWT.ExpirationMinutes)
}
