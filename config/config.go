package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Kraken   KrakenConfig   `mapstructure:"kraken"`
	Market   MarketConfig   `mapstructure:"market"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Server   ServerConfig   `mapstructure:"server"`
}

type KrakenConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second
	Burst     int           `mapstructure:"burst"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig is off by default: a failed poll is retried on the next tick.
type BreakerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxFailures uint32        `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// MarketConfig holds the quote engine parameters.
type MarketConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	DepthCount   int           `mapstructure:"depth_count"`   // levels requested upstream
	DisplayDepth int           `mapstructure:"display_depth"` // levels shown per side
	SpreadPips   float64       `mapstructure:"spread_pips"`
	PipSize      float64       `mapstructure:"pip_size"`
	FeeRate      float64       `mapstructure:"fee_rate"`
	ChartPoints  int           `mapstructure:"chart_points"`
	ChartRefresh time.Duration `mapstructure:"chart_refresh"`
	Watch        []string      `mapstructure:"watch"` // pairs polled while the server runs
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("kraken.base_url", "https://api.kraken.com")
	v.SetDefault("kraken.timeout", 10*time.Second)
	v.SetDefault("kraken.rate_limit", 1.0)
	v.SetDefault("kraken.burst", 4)
	v.SetDefault("kraken.breaker.enabled", false)
	v.SetDefault("kraken.breaker.max_failures", 5)
	v.SetDefault("kraken.breaker.timeout", 30*time.Second)

	v.SetDefault("market.poll_interval", 5*time.Second)
	v.SetDefault("market.depth_count", 25)
	v.SetDefault("market.display_depth", 7)
	v.SetDefault("market.spread_pips", 40)
	v.SetDefault("market.pip_size", 0.0001)
	v.SetDefault("market.fee_rate", 0.01)
	v.SetDefault("market.chart_points", 200)
	v.SetDefault("market.chart_refresh", time.Minute)
	v.SetDefault("market.watch", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.retention", 90*24*time.Hour)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	var dir string
	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		dir = filepath.Join(pwd, "../../config")
	} else {
		dir = filepath.Join(filepath.Dir(ex), "../config")
	}

	cfg, err := LoadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFile reads the given yaml file. A missing file falls back to defaults
// and environment variables (e.g., MARKET_SPREAD_PIPS).
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Support environment variables with dot notation (e.g., KRAKEN_BASE_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the market parameters the quote engine depends on.
func (c *Config) Validate() error {
	m := c.Market
	switch {
	case m.PollInterval <= 0:
		return fmt.Errorf("market.poll_interval must be positive, got %s", m.PollInterval)
	case m.PipSize <= 0:
		return fmt.Errorf("market.pip_size must be positive, got %v", m.PipSize)
	case m.SpreadPips < 0:
		return fmt.Errorf("market.spread_pips must not be negative, got %v", m.SpreadPips)
	case m.FeeRate < 0 || m.FeeRate >= 1:
		return fmt.Errorf("market.fee_rate must be in [0,1), got %v", m.FeeRate)
	case m.DisplayDepth <= 0:
		return fmt.Errorf("market.display_depth must be positive, got %d", m.DisplayDepth)
	case m.ChartRefresh <= 0:
		return fmt.Errorf("market.chart_refresh must be positive, got %s", m.ChartRefresh)
	case m.DepthCount <= 0:
		return fmt.Errorf("market.depth_count must be positive, got %d", m.DepthCount)
	}
	if c.Kraken.BaseURL == "" {
		return errors.New("kraken.base_url is required")
	}
	return nil
}
