package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Empty(t, cfg.DatabaseDSN)
	assert.Contains(t, cfg.IEMBaseURL, "mesonet.agron.iastate.edu")
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 3, cfg.FetchAttempts)
	assert.Equal(t, 2*time.Second, cfg.FetchBackoff)
	assert.False(t, cfg.PlacesEnabled)
	assert.Equal(t, 10*time.Second, cfg.PlacesTimeout)
	assert.Equal(t, time.Hour, cfg.PlacesCacheTTL)
	assert.Equal(t, 1000, cfg.PlacesCacheSize)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, "alert-upserts", cfg.KafkaSinkTopic)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_DSN", "postgres://db:5432/archive")
	t.Setenv("IEM_BASE_URL", "http://iem.test/export")
	t.Setenv("FETCH_TIMEOUT", "45s")
	t.Setenv("FETCH_ATTEMPTS", "5")
	t.Setenv("FETCH_BACKOFF", "1s")
	t.Setenv("PLACES_API_KEY", "test-key")
	t.Setenv("PLACES_TIMEOUT", "3s")
	t.Setenv("PLACES_CACHE_TTL", "10m")
	t.Setenv("PLACES_CACHE_SIZE", "50")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "postgres://db:5432/archive", cfg.DatabaseDSN)
	assert.Equal(t, "http://iem.test/export", cfg.IEMBaseURL)
	assert.Equal(t, 45*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 5, cfg.FetchAttempts)
	assert.Equal(t, time.Second, cfg.FetchBackoff)
	assert.True(t, cfg.PlacesEnabled, "API key implies enabled")
	assert.Equal(t, 10*time.Minute, cfg.PlacesCacheTTL)
	assert.Equal(t, 50, cfg.PlacesCacheSize)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_PlacesExplicitlyDisabled(t *testing.T) {
	t.Setenv("PLACES_API_KEY", "test-key")
	t.Setenv("PLACES_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.PlacesEnabled)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("FETCH_TIMEOUT", "not-a-duration")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "FETCH_TIMEOUT")
	})

	t.Run("negative attempts", func(t *testing.T) {
		t.Setenv("FETCH_ATTEMPTS", "-1")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("places enabled without key", func(t *testing.T) {
		t.Setenv("PLACES_ENABLED", "true")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PLACES_API_KEY")
	})

	t.Run("kafka enabled without brokers", func(t *testing.T) {
		t.Setenv("KAFKA_ENABLED", "true")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "KAFKA_BROKERS")
	})
}
