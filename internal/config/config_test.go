package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "memory", cfg.FeedDriver)
	assert.Equal(t, int64(10<<20), cfg.BlobMaxBytes)
	assert.Equal(t, time.Hour, cfg.RemoteConfigTTL)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("FEED_DRIVER", "postgres")
	t.Setenv("WATCH_POLL_INTERVAL", "250ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.FeedDriver)
	assert.Equal(t, 250*time.Millisecond, cfg.WatchPollInterval)
}

func TestLoadRejectsInconsistentDrivers(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("FEED_DRIVER", "postgres")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresBrokerURL(t *testing.T) {
	t.Setenv("FEED_DRIVER", "amqp")

	_, err := Load()
	require.Error(t, err)
}
