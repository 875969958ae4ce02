package main

import (
	"context"

	"quoter/config"
	cacheredis "quoter/internal/cache/redis"
	"quoter/internal/metrics"
	"quoter/internal/pricing"
	"quoter/internal/view"
	"quoter/pkg/kraken"
	"quoter/pkg/storage/postgres"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newKrakenClient(cfg config.KrakenConfig) *kraken.RESTClient {
	opts := []kraken.Option{kraken.WithRateLimit(cfg.RateLimit, cfg.Burst)}
	if cfg.Breaker.Enabled {
		opts = append(opts, kraken.WithBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	}
	return kraken.NewRESTClient(cfg.BaseURL, cfg.Timeout, opts...)
}

func newPricing(cfg config.MarketConfig) view.Pricing {
	return view.Pricing{
		Spread:       pricing.NewSpreadModel(cfg.SpreadPips, cfg.PipSize),
		FeeRate:      decimal.NewFromFloat(cfg.FeeRate),
		DisplayDepth: cfg.DisplayDepth,
	}
}

func newDesk(cfg *config.Config, recorder view.OrderRecorder, m *metrics.Collector, log *zap.Logger) *view.Desk {
	return view.NewDesk(newPricing(cfg.Market), recorder, m, log)
}

func openPostgres(cfg *config.Config, log *zap.Logger) (*postgres.PostgresClient, error) {
	pg, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Log.Environment, true)
	if err != nil {
		return nil, err
	}
	log.Info("postgres connected", zap.String("dbname", cfg.Postgres.DBName))
	return pg, nil
}

func openRedis(ctx context.Context, cfg *config.Config, log *zap.Logger) (*cacheredis.Client, error) {
	rc, err := cacheredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	log.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	return rc, nil
}
