package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"quoter/internal/catalog"
	"quoter/internal/collector"
	"quoter/internal/feed"
	"quoter/pkg/kraken"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	backfillTimeframe   string
	backfillMode        string
	backfillPairs       []string
	backfillConcurrency int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fetch candles for many pairs and store them in Postgres",
	Long: `Fetch the candle series of one timeframe for every selected pair and
insert the rows that are not stored yet. Requires postgres.enabled.

Examples:
  quoter backfill --timeframe 1Y
  quoter backfill --timeframe 1W --mode CRYPTO_CRYPTO --concurrency 2
  quoter backfill --pairs BTC_EUR,ETH_EUR`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)

	backfillCmd.Flags().StringVar(&backfillTimeframe, "timeframe", string(kraken.Timeframe1M), "1D, 1W, 1M, 3M, 6M or 1Y")
	backfillCmd.Flags().StringVar(&backfillMode, "mode", "", "limit to one mode")
	backfillCmd.Flags().StringSliceVar(&backfillPairs, "pairs", nil, "comma-separated pair ids (overrides --mode)")
	backfillCmd.Flags().IntVar(&backfillConcurrency, "concurrency", 5, "pairs fetched at the same time")
}

func runBackfill(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if !cfg.Postgres.Enabled {
		return errors.New("backfill needs postgres.enabled")
	}

	pairs, err := backfillSelection()
	if err != nil {
		return err
	}

	pg, err := openPostgres(cfg, log)
	if err != nil {
		return err
	}
	defer pg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := collector.Backfill(ctx, collector.BackfillOptions{
		Pairs:       pairs,
		Timeframe:   kraken.Timeframe(strings.ToUpper(backfillTimeframe)),
		Concurrency: backfillConcurrency,
		Timeout:     cfg.Kraken.Timeout,
	}, feed.NewCandleFetcher(newKrakenClient(cfg.Kraken)), pg, log)
	if err != nil {
		return err
	}

	log.Info("backfill finished",
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Strings("failed", report.Failed),
		zap.Int("candles", report.Candles),
	)
	if len(report.Failed) > 0 {
		return fmt.Errorf("backfill failed for %d pairs", len(report.Failed))
	}
	return nil
}

func backfillSelection() ([]catalog.Pair, error) {
	if len(backfillPairs) > 0 {
		out := make([]catalog.Pair, 0, len(backfillPairs))
		for _, id := range backfillPairs {
			p, ok := catalog.Lookup(strings.TrimSpace(id))
			if !ok {
				return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownPair, id)
			}
			out = append(out, p)
		}
		return out, nil
	}
	if backfillMode == "" {
		return catalog.All(), nil
	}
	mode, err := catalog.ParseMode(backfillMode)
	if err != nil {
		return nil, err
	}
	return catalog.Options(mode), nil
}
