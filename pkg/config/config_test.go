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

	assert.Equal(t, StoreDriverPostgres, cfg.Database.Driver)
	assert.Equal(t, int64(500), cfg.Ledger.AlertThreshold)
	assert.Equal(t, 5*time.Second, cfg.Ledger.StoreTimeout)
	assert.Equal(t, 0.45, cfg.Duplicates.Threshold)
	assert.Equal(t, 5, cfg.Duplicates.MaxResults)
	assert.Equal(t, 10*time.Minute, cfg.Notifications.Cooldown)
	assert.Equal(t, []string{"log"}, cfg.Notifications.Drivers)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("LEDGER_ALERT_THRESHOLD", "250")
	t.Setenv("LEDGER_STORE_TIMEOUT", "750ms")
	t.Setenv("NOTIFY_DRIVERS", "log, smtp ,")
	t.Setenv("NOTIFY_COOLDOWN", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.Database.Driver)
	assert.Equal(t, int64(250), cfg.Ledger.AlertThreshold)
	assert.Equal(t, 750*time.Millisecond, cfg.Ledger.StoreTimeout)
	assert.Equal(t, []string{"log", "smtp"}, cfg.Notifications.Drivers)
	assert.Equal(t, 10*time.Minute, cfg.Notifications.Cooldown)
}
