package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	p := writeYAML(t, `
auth:
  jwt_secret: s3cret
vault:
  secret: vault-secret
`)
	c, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, "memory", c.Storage.Driver)
	assert.Equal(t, 10*time.Minute, c.Login.ChallengeTTL.Duration)
	assert.Equal(t, 300*time.Second, c.Strava.RefreshBuffer.Duration)
	assert.Equal(t, 200, c.Strava.PageSize)
	assert.Equal(t, 10, c.Strava.MaxPages)
	assert.Equal(t, 7, c.Sync.DefaultDaysGarmin)
	assert.Equal(t, 30, c.Sync.DefaultDaysStrava)
	assert.Equal(t, 365, c.Sync.MaxDays)
	assert.Equal(t, 30*time.Second, c.Sync.CallTimeout.Duration)
	assert.False(t, c.NotifyEnabled())
}

func TestLoad_DurationFormats(t *testing.T) {
	p := writeYAML(t, `
auth: {jwt_secret: x}
vault: {secret: y}
login:
  challenge_ttl: "5m"
strava:
  refresh_buffer: "120"
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, c.Login.ChallengeTTL.Duration)
	assert.Equal(t, 120*time.Second, c.Strava.RefreshBuffer.Duration)
}

func TestLoad_InvalidDuration(t *testing.T) {
	p := writeYAML(t, `
login:
  challenge_ttl: "ten minutes"
`)
	_, err := Load(p)
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "from-env")
	t.Setenv("VAULT_SECRET", "vault-env")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("STORAGE_DSN", "postgres://u:p@localhost/db")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SYNC_CALL_TIMEOUT", "45s")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.Auth.JWTSecret)
	assert.Equal(t, "postgres", c.Storage.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Events.KafkaBrokers)
	assert.Equal(t, 45*time.Second, c.Sync.CallTimeout.Duration)
}

func TestValidate(t *testing.T) {
	t.Run("missing secrets", func(t *testing.T) {
		_, err := Load("")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingJWTSecret)
		assert.ErrorIs(t, err, ErrMissingVaultKey)
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		t.Setenv("AUTH_JWT_SECRET", "x")
		t.Setenv("VAULT_SECRET", "y")
		t.Setenv("STORAGE_DRIVER", "postgres")
		_, err := Load("")
		assert.ErrorIs(t, err, ErrMissingDSN)
	})

	t.Run("max days out of range", func(t *testing.T) {
		p := writeYAML(t, `
auth: {jwt_secret: x}
vault: {secret: y}
sync: {max_days: 400}
`)
		_, err := Load(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sync.max_days")
	})

	t.Run("unknown cache driver", func(t *testing.T) {
		p := writeYAML(t, `
auth: {jwt_secret: x}
vault: {secret: y}
cache: {driver: memcached}
`)
		_, err := Load(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cache.driver")
	})
}
