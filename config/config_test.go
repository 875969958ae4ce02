package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestLoadFileDefaults
func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "https://api.kraken.com", cfg.Kraken.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Market.PollInterval)
	assert.Equal(t, 25, cfg.Market.DepthCount)
	assert.Equal(t, 7, cfg.Market.DisplayDepth)
	assert.Equal(t, 40.0, cfg.Market.SpreadPips)
	assert.Equal(t, 0.0001, cfg.Market.PipSize)
	assert.Equal(t, 0.01, cfg.Market.FeeRate)
	assert.False(t, cfg.Kraken.Breaker.Enabled)
	assert.False(t, cfg.Postgres.Enabled)
	assert.Equal(t, time.Minute, cfg.Market.ChartRefresh)
	assert.Equal(t, 90*24*time.Hour, cfg.Postgres.Retention)
	assert.Empty(t, cfg.Market.Watch)
}

// go test -v --run TestLoadFileOverrides
func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
kraken:
  base_url: http://localhost:9999
  timeout: 3s
market:
  poll_interval: 2s
  spread_pips: 10
  fee_rate: 0.005
log:
  level: debug
  environment: prod
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9999", cfg.Kraken.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Kraken.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Market.PollInterval)
	assert.Equal(t, 10.0, cfg.Market.SpreadPips)
	assert.Equal(t, 0.005, cfg.Market.FeeRate)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 7, cfg.Market.DisplayDepth)
}

// go test -v --run TestLoadFileEnvOverride
func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv("MARKET_SPREAD_PIPS", "12")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 12.0, cfg.Market.SpreadPips)
}

// go test -v --run TestValidate
func TestValidate(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	bad := *cfg
	bad.Market.FeeRate = 1
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Market.PipSize = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Market.PollInterval = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Market.DisplayDepth = 0
	assert.Error(t, bad.Validate())
}

// go test -v --run TestPostgresDSN
func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "pw",
		DBName:   "quoter",
		SSLMode:  "disable",
		TimeZone: "UTC",
	}

	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=pw dbname=quoter sslmode=disable TimeZone=UTC",
		cfg.DSN("dev"))
	assert.Contains(t, cfg.AdminDSN("dev"), "dbname=postgres")
}
