package main

import (
	"fmt"
	"os"

	"quoter/config"
	"quoter/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "quoter",
	Short: "Synthetic quote engine on public market data",
	Long: `quoter polls public ticker and order-book data, derives a buy/sell quote
with a fixed pip spread and a fee, and serves it over HTTP and WebSocket.
No order is ever sent upstream.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: ../config/config.yaml next to the binary)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the config and builds the logger shared by every command.
func setup() (*config.Config, *zap.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath == "" {
		cfg = config.Load()
	} else if cfg, err = config.LoadFile(configPath); err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}
