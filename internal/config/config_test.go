package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("SCAN_COOLDOWN", "")
	cfg := Load()
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, 3*time.Second, cfg.ScanCooldown)
	assert.Equal(t, "-", cfg.ScannerDevice)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", BackendSQLite)
	t.Setenv("SCAN_COOLDOWN", "5s")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("APP_ENV", "prod")
	cfg := Load()
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, 5*time.Second, cfg.ScanCooldown)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.True(t, cfg.Production())
}

func TestLoadInvalidFallsBack(t *testing.T) {
	t.Setenv("STORE_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")
	cfg := Load()
	assert.Equal(t, 10*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
}
