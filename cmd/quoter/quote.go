package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"quoter/config"
	cacheredis "quoter/internal/cache/redis"
	"quoter/internal/catalog"
	"quoter/internal/feed"
	"quoter/internal/orderbook"
	"quoter/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	quotePair   string
	quoteSide   string
	quoteAmount string
	quoteFormat string
	quoteBook   bool
	quoteCached bool
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Poll one pair once and print the quote and order ticket",
	Long: `Fetch ticker and depth for one pair, derive the quote, and price an order
ticket for the given side and amount. Nothing is executed.

Examples:
  quoter quote --pair BTC_EUR --side buy --amount 1000
  quoter quote --pair ETH_USDT --side sell --amount 250,5 --book
  quoter quote --pair BTC_EUR --format json
  quoter quote --pair BTC_EUR --cached --amount 500`,
	RunE: runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&quotePair, "pair", "BTC_EUR", "pair id, see 'quoter pairs'")
	quoteCmd.Flags().StringVar(&quoteSide, "side", "buy", "buy or sell")
	quoteCmd.Flags().StringVar(&quoteAmount, "amount", "", "amount in the quote currency")
	quoteCmd.Flags().StringVar(&quoteFormat, "format", "table", "output format: table or json")
	quoteCmd.Flags().BoolVar(&quoteBook, "book", false, "also print the aggregated order book")
	quoteCmd.Flags().BoolVar(&quoteCached, "cached", false, "read the quote a running server published to Redis instead of polling")
}

type quoteOutput struct {
	Pair   catalog.Pair       `json:"pair"`
	Last   decimal.Decimal    `json:"last_price"`
	AsOf   time.Time          `json:"as_of"`
	Quote  pricing.Quote      `json:"quote"`
	Ticket *pricing.Ticket    `json:"ticket,omitempty"`
	Book   *orderbook.Display `json:"book,omitempty"`
}

func runQuote(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	pair, ok := catalog.Lookup(quotePair)
	if !ok {
		return fmt.Errorf("%w: %s", catalog.ErrUnknownPair, quotePair)
	}
	side, err := pricing.ParseSide(quoteSide)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Kraken.Timeout+time.Second)
	defer cancel()

	var (
		price decimal.Decimal
		asOf  time.Time
		book  *orderbook.Snapshot
	)
	if quoteCached {
		q, at, err := cachedQuote(ctx, cfg, log, pair)
		if err != nil {
			return err
		}
		// the mid is the last price the quote was derived from
		price, asOf = q.Mid, at
	} else {
		res, err := feed.NewFetcher(newKrakenClient(cfg.Kraken), cfg.Market.DepthCount).Fetch(ctx, pair)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", pair.ID, err)
		}
		price, asOf, book = res.Tick.LastPrice, res.At, &res.Book
	}

	desk := newDesk(cfg, nil, nil, log)
	last := decimal.NewNullDecimal(price)
	q, _ := desk.Quote(last)

	out := quoteOutput{Pair: pair, Last: price, AsOf: asOf, Quote: q}
	if quoteAmount != "" {
		t := desk.Preview(last, side, quoteAmount)
		out.Ticket = &t
	}
	if quoteBook && book != nil {
		b := orderbook.Aggregate(*book, cfg.Market.DisplayDepth)
		out.Book = &b
	}

	if strings.EqualFold(quoteFormat, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	printQuote(out)
	return nil
}

func cachedQuote(ctx context.Context, cfg *config.Config, log *zap.Logger, pair catalog.Pair) (pricing.Quote, time.Time, error) {
	if !cfg.Redis.Enabled {
		return pricing.Quote{}, time.Time{}, errors.New("--cached needs redis.enabled")
	}
	rc, err := openRedis(ctx, cfg, log)
	if err != nil {
		return pricing.Quote{}, time.Time{}, err
	}
	defer rc.Close()

	q, at, err := cacheredis.NewQuoteCache(rc, 0).GetQuote(ctx, pair.ID)
	if errors.Is(err, cacheredis.ErrNotFound) {
		return pricing.Quote{}, time.Time{}, fmt.Errorf("no cached quote for %s, is a server polling it?", pair.ID)
	}
	return q, at, err
}

func printQuote(out quoteOutput) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	base, quote := out.Pair.BaseSymbol(), out.Pair.QuoteSymbol()
	fmt.Fprintf(w, "PAIR\t%s\n", out.Pair.Label)
	fmt.Fprintf(w, "LAST\t%s %s\n", out.Last, quote)
	fmt.Fprintf(w, "BUY\t%s %s\n", out.Quote.Buy, quote)
	fmt.Fprintf(w, "SELL\t%s %s\n", out.Quote.Sell, quote)
	fmt.Fprintf(w, "AS OF\t%s\n", out.AsOf.Format(time.RFC3339))

	if t := out.Ticket; t != nil {
		fmt.Fprintln(w)
		if !t.Valid {
			fmt.Fprintf(w, "TICKET\tinvalid amount\n")
		} else {
			fmt.Fprintf(w, "SIDE\t%s\n", t.Side)
			fmt.Fprintf(w, "AMOUNT\t%s %s\n", t.QuoteAmount.Decimal, quote)
			fmt.Fprintf(w, "PRICE USED\t%s %s\n", t.EffectivePrice.Decimal.StringFixed(8), quote)
			fmt.Fprintf(w, "QUANTITY\t%s %s\n", t.BaseQuantity.Decimal.StringFixed(8), base)
		}
	}

	if b := out.Book; b != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "SIDE\tPRICE\tVOLUME\n")
		for i := len(b.Asks) - 1; i >= 0; i-- {
			fmt.Fprintf(w, "ask\t%s\t%s\n", b.Asks[i].Price, b.Asks[i].Volume)
		}
		if b.SpreadAvailable {
			fmt.Fprintf(w, "spread\t%s\t%s%%\n", b.Spread, b.SpreadPct.StringFixed(4))
		}
		for _, l := range b.Bids {
			fmt.Fprintf(w, "bid\t%s\t%s\n", l.Price, l.Volume)
		}
	}
}
