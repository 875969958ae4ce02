package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	cacheredis "quoter/internal/cache/redis"
	"quoter/internal/collector"
	"quoter/internal/feed"
	"quoter/internal/memorystore"
	"quoter/internal/metrics"
	"quoter/internal/server"
	"quoter/internal/view"
	"quoter/pkg/storage/postgres"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket API",
	Long: `Serve quotes, order books and candles over HTTP, and push live state to
WebSocket clients. Postgres and Redis are used only when enabled in config.

Examples:
  quoter serve
  quoter serve --config ./config/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	client := newKrakenClient(cfg.Kraken)

	var (
		orders  view.OrderRecorder
		candles view.CandleRecorder
		quotes  view.QuotePublisher
		history *postgres.PostgresClient
		checks  = map[string]server.HealthCheck{}
	)

	if cfg.Postgres.Enabled {
		pg, err := openPostgres(cfg, log)
		if err != nil {
			return err
		}
		defer pg.Close()

		orders, candles, history = pg, pg, pg
		checks["postgres"] = func(ctx context.Context) error {
			if !pg.IsHealthy(ctx) {
				return errors.New("ping failed")
			}
			return nil
		}

		if cfg.Postgres.Retention > 0 {
			pruner := &collector.MidnightPruner{Store: pg, Retention: cfg.Postgres.Retention, Logger: log}
			go pruner.Run(ctx)
		}
	}

	if cfg.Redis.Enabled {
		rc, err := openRedis(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer rc.Close()

		quotes = cacheredis.NewQuoteCache(rc, 3*cfg.Market.PollInterval)
		checks["redis"] = rc.Ping
	}

	fetcher := feed.NewFetcher(client, cfg.Market.DepthCount)
	hub := feed.NewHub(feed.NewPoller(fetcher, cfg.Market.PollInterval, log, m), log)
	defer hub.Close()

	trading := view.TradingDeps{
		Feeds:     hub,
		Desk:      newDesk(cfg, orders, m, log),
		Snapshots: memorystore.NewSnapshotStore(),
		Quotes:    quotes,
		Metrics:   m,
		Logger:    log,
	}
	view.PublishResults(trading)

	deps := server.Deps{
		Trading: trading,
		Chart: view.ChartDeps{
			Fetcher:  feed.NewCandleFetcher(client),
			Interval: cfg.Market.ChartRefresh,
			Points:   cfg.Market.ChartPoints,
			Store:    memorystore.NewCandleStore(),
			Recorder: candles,
			Metrics:  m,
			Logger:   log,
		},
		Source: fetcher,
		Checks: checks,
		Watch:  cfg.Market.Watch,
	}
	if history != nil {
		deps.Orders = history
		deps.Candles = history
	}
	srv := server.New(cfg.Server, deps)

	if err := srv.Run(ctx); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}
