// Command confluence-bot runs the confluence decision engine live on Bybit
// or replays recorded bars and signals through the paper venue.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ducminhle1904/confluence-bot/internal/config"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
)

type rootOptions struct {
	configPath string
	envPath    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "confluence-bot",
		Short: "Risk-gated confluence trading engine",
		Long: `confluence-bot turns streams of directional signals into pending
breakout orders once enough of them agree, the higher timeframe trend allows
it and the account risk gate is open.

Examples:
  confluence-bot live --config configs/btc_15m.yaml
  confluence-bot replay --config configs/btc_15m.yaml --bars data/btc_15m.csv --higher-bars data/btc_1h.csv --signals data/signals.csv`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the YAML configuration file")
	root.PersistentFlags().StringVar(&opts.envPath, "env", ".env", "Path to a .env file with credentials")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	root.AddCommand(newLiveCmd(opts), newReplayCmd(opts), newDownloadCmd(opts), newJournalCmd(opts), newVersionCmd())
	return root
}

// load reads the env file and the configuration
func (o *rootOptions) load() (*config.Config, error) {
	if err := config.LoadEnv(o.envPath); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	for _, w := range cfg.Warnings() {
		fmt.Printf("⚠️ %s\n", w)
	}
	return cfg, nil
}

// logger opens the file logger for cfg
func (o *rootOptions) logger(cfg *config.Config) (*logger.Logger, error) {
	return logger.NewLogger(cfg.Symbol, string(cfg.Primary), logger.Options{
		Dir:     cfg.Logging.Dir,
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
	})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
