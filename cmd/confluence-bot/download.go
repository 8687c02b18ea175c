package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ducminhle1904/confluence-bot/internal/exchange/bybit"
	"github.com/ducminhle1904/confluence-bot/pkg/data"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

func newDownloadCmd(root *rootOptions) *cobra.Command {
	var (
		count  int
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download recent Bybit klines for replay",
		Long: `Download the most recent closed klines of the configured symbol for the
primary and higher timeframes and write them as replay input CSVs.

Example:
  confluence-bot download --config configs/btc_15m.yaml --count 999`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			log, err := root.logger(cfg)
			if err != nil {
				return err
			}
			defer log.Close()

			// klines are public, credentials are optional here
			client := bybit.NewClient(bybit.Config{
				APIKey:     cfg.Exchange.APIKey,
				APISecret:  cfg.Exchange.APISecret,
				Testnet:    cfg.Exchange.Testnet,
				Category:   cfg.Exchange.Category,
				Symbol:     cfg.Symbol,
				StrategyID: cfg.StrategyID,
			}, log)

			for _, tf := range []types.Timeframe{cfg.Primary, cfg.Higher} {
				bars, err := client.Bars(cmd.Context(), tf, count+1)
				if err != nil {
					return fmt.Errorf("failed to download %s klines: %w", tf, err)
				}
				if len(bars) > 0 {
					// index 0 is the forming bar
					bars = bars[1:]
				}
				path := barPath(outDir, cfg.Exchange.Category, cfg.Symbol, tf)
				if err := data.WriteCSV(path, bars); err != nil {
					return err
				}
				fmt.Printf("📥 %d %s bars saved to %s\n", len(bars), tf, path)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 999, "Closed bars per timeframe (max 999)")
	cmd.Flags().StringVar(&outDir, "data-root", "data", "Data root, laid out as {root}/bybit/{category}/{symbol}/{minutes}/candles.csv")
	return cmd
}

// barPath is where a downloaded series lives under the data root, the
// layout data.FindDataFile searches
func barPath(root, category, symbol string, tf types.Timeframe) string {
	if category == "" {
		category = "linear"
	}
	return filepath.Join(root, "bybit", category, strings.ToUpper(symbol),
		data.ConvertIntervalToMinutes(string(tf)), "candles.csv")
}
