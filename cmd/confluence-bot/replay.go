package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ducminhle1904/confluence-bot/internal/config"
	"github.com/ducminhle1904/confluence-bot/internal/journal"
	"github.com/ducminhle1904/confluence-bot/internal/replay"
	"github.com/ducminhle1904/confluence-bot/internal/signal"
	"github.com/ducminhle1904/confluence-bot/pkg/data"
	"github.com/ducminhle1904/confluence-bot/pkg/reporting"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

const dateLayout = "2006-01-02"

type replayOptions struct {
	bars       string
	higherBars string
	signals    string
	dataRoot   string

	balance float64
	spread  float64
	minStop float64
	from    string
	to      string

	outDir  string
	xlsx    string
	journal string
}

func newReplayCmd(root *rootOptions) *cobra.Command {
	opts := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded bars and signals through the paper venue",
		Long: `Replay feeds recorded OHLCV bars for the primary and higher timeframes,
together with a signal CSV, through the same engine the live bot runs. Orders
fill on the paper venue and the results are written as a workbook, a trade
CSV and a JSON summary.

Examples:
  confluence-bot replay --signals data/signals.csv
  confluence-bot replay --bars data/btc_15m.csv --higher-bars data/btc_1h.csv --signals data/signals.csv
  confluence-bot replay --bars b.csv --higher-bars h.csv --signals s.csv --from 2024-06-01 --to 2024-07-01 --xlsx june.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			return runReplay(cmd, cfg, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.bars, "bars", "", "CSV of primary timeframe bars (default: searched under --data-root)")
	f.StringVar(&opts.higherBars, "higher-bars", "", "CSV of higher timeframe bars (default: searched under --data-root)")
	f.StringVar(&opts.dataRoot, "data-root", "data", "Root searched for candles.csv files when --bars is omitted")
	f.StringVar(&opts.signals, "signals", "", "Signal CSV (defaults to signals.csv_path)")
	f.Float64Var(&opts.balance, "balance", 10000, "Initial paper balance")
	f.Float64Var(&opts.spread, "spread", 0, "Simulated bid/ask spread in price units")
	f.Float64Var(&opts.minStop, "min-stop", 0, "Override the instrument minimum stop distance")
	f.StringVar(&opts.from, "from", "", "First day to replay (YYYY-MM-DD)")
	f.StringVar(&opts.to, "to", "", "Last day to replay (YYYY-MM-DD)")
	f.StringVar(&opts.outDir, "out", "", "Output directory (default results/SYMBOL_INTERVAL)")
	f.StringVar(&opts.xlsx, "xlsx", "", "Write only the workbook to this path")
	f.StringVar(&opts.journal, "journal", "", "Record decisions to this SQLite journal")
	return cmd
}

// dateRange parses --from and --to; --to covers its whole day
func (o *replayOptions) dateRange() (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if o.from != "" {
		if from, err = time.Parse(dateLayout, o.from); err != nil {
			return from, to, fmt.Errorf("invalid --from %q: %w", o.from, err)
		}
	}
	if o.to != "" {
		if to, err = time.Parse(dateLayout, o.to); err != nil {
			return from, to, fmt.Errorf("invalid --to %q: %w", o.to, err)
		}
		to = to.Add(24*time.Hour - time.Nanosecond)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, fmt.Errorf("--to %s is before --from %s", o.to, o.from)
	}
	return from, to, nil
}

// locate returns path, or the candles.csv for symbol and tf under the data
// root when path is empty
func (o *replayOptions) locate(path, symbol string, tf types.Timeframe) (string, error) {
	if path != "" {
		return path, nil
	}
	found, tried := data.FindDataFile(o.dataRoot, "bybit", symbol, string(tf))
	if found == "" {
		return "", fmt.Errorf("no %s bars for %s, tried %s", tf, symbol, strings.Join(tried, ", "))
	}
	return found, nil
}

func loadBars(path string, tf types.Timeframe, from, to time.Time) ([]types.OHLCV, error) {
	provider := data.NewCSVProvider()
	bars, err := provider.LoadData(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s bars: %w", tf, err)
	}
	if skipped := provider.Skipped(); skipped > 0 {
		fmt.Printf("⚠️ Skipped %d malformed %s rows in %s\n", skipped, tf, path)
	}
	bars = data.RemoveDuplicates(data.SortByTimestamp(bars))
	if err := provider.ValidateData(bars); err != nil {
		return nil, fmt.Errorf("invalid %s bars: %w", tf, err)
	}
	if !from.IsZero() || !to.IsZero() {
		bars = data.FilterByDateRange(bars, from, to)
	}
	if err := data.CheckSpacing(bars, tf); err != nil {
		fmt.Printf("⚠️ %s bars: %v\n", tf, err)
	}
	return bars, nil
}

func runReplay(cmd *cobra.Command, cfg *config.Config, root *rootOptions, opts *replayOptions) error {
	from, to, err := opts.dateRange()
	if err != nil {
		return err
	}

	primaryPath, err := opts.locate(opts.bars, cfg.Symbol, cfg.Primary)
	if err != nil {
		return err
	}
	higherPath, err := opts.locate(opts.higherBars, cfg.Symbol, cfg.Higher)
	if err != nil {
		return err
	}

	fmt.Printf("📊 Loading %s bars from %s\n", cfg.Primary, primaryPath)
	primary, err := loadBars(primaryPath, cfg.Primary, from, to)
	if err != nil {
		return err
	}
	fmt.Printf("📊 Loading %s bars from %s\n", cfg.Higher, higherPath)
	higher, err := loadBars(higherPath, cfg.Higher, time.Time{}, to)
	if err != nil {
		return err
	}

	signalPath := opts.signals
	if signalPath == "" {
		signalPath = cfg.Signals.CSVPath
	}
	fmt.Printf("📡 Loading signals from %s\n", signalPath)
	signals, err := signal.LoadCSV(signalPath, cfg.Primary, cfg.Higher)
	if err != nil {
		return err
	}

	log, err := root.logger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	inst := replay.DefaultInstrument(cfg.Symbol)
	if opts.minStop > 0 {
		inst.MinStopDistance = opts.minStop
	}
	ro := replay.Options{
		Primary:        primary,
		Higher:         higher,
		Signals:        signals,
		Instrument:     inst,
		InitialBalance: opts.balance,
		Spread:         opts.spread,
	}
	if opts.journal != "" {
		j, err := journal.Open(opts.journal, cfg.Identity(), log)
		if err != nil {
			return err
		}
		defer j.Close()
		ro.Observer = j
	}

	fmt.Printf("🔄 Replaying %d bars...\n", len(primary))
	res, err := replay.Run(cmd.Context(), cfg, ro, log)
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	reporter := reporting.NewDefaultReporter()
	reporter.OutputResults(os.Stdout, res)

	if opts.xlsx != "" {
		if err := reporter.WriteWorkbook(res, opts.xlsx); err != nil {
			return err
		}
		fmt.Printf("📁 Workbook saved to %s\n", opts.xlsx)
		return nil
	}

	dir := opts.outDir
	if dir == "" {
		dir = reporter.GetDefaultOutputDir(cfg.Symbol, string(cfg.Primary))
	}
	paths, err := reporter.WriteAll(res, dir, time.Now())
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Printf("📁 Saved %s\n", p)
	}
	return nil
}
