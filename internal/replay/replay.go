// Package replay drives the engine over recorded bars and signals on a
// simulated clock, using the paper venue for fills.
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/ducminhle1904/confluence-bot/internal/bot"
	"github.com/ducminhle1904/confluence-bot/internal/config"
	"github.com/ducminhle1904/confluence-bot/internal/engine"
	"github.com/ducminhle1904/confluence-bot/internal/exchange/paper"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/internal/signal"
	"github.com/ducminhle1904/confluence-bot/pkg/data"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// maxFollowUps bounds the re-requests one tick may chain
const maxFollowUps = 8

// Options describe one replay
type Options struct {
	Primary []types.OHLCV
	Higher  []types.OHLCV
	Signals signal.Source

	Instrument     types.InstrumentSpec
	InitialBalance float64
	// Spread is the simulated bid/ask distance in price units.
	Spread float64
	// Observer receives engine events alongside the result collector.
	Observer engine.Observer
}

// DefaultInstrument is a linear USDT contract with a 0.1 tick
func DefaultInstrument(symbol string) types.InstrumentSpec {
	return types.InstrumentSpec{
		Symbol:          symbol,
		TickSize:        0.1,
		TickValue:       0.1,
		Point:           0.1,
		Digits:          1,
		MinVolume:       0.001,
		MaxVolume:       100,
		VolumeStep:      0.001,
		MinStopDistance: 1,
	}
}

// Run replays opts under cfg. Each primary bar gets a tick just after its
// open, where closed bars are detected and signals fetched, then the bar is
// stepped through the paper venue and a second tick at its close manages
// open positions.
func Run(ctx context.Context, cfg *config.Config, opts Options, log *logger.Logger) (*Result, error) {
	if len(opts.Primary) == 0 {
		return nil, fmt.Errorf("no %s bars to replay", cfg.Primary)
	}
	if len(opts.Higher) == 0 {
		return nil, fmt.Errorf("no %s bars to replay", cfg.Higher)
	}
	if opts.Signals == nil {
		return nil, fmt.Errorf("no signal source")
	}
	if opts.InitialBalance <= 0 {
		opts.InitialBalance = 10000
	}
	if opts.Instrument.TickSize <= 0 {
		opts.Instrument = DefaultInstrument(cfg.Symbol)
	}

	venue := paper.NewVenue(paper.Config{
		Instrument:     opts.Instrument,
		InitialBalance: opts.InitialBalance,
		Spread:         opts.Spread,
	})
	venue.LoadBars(cfg.Primary, opts.Primary)
	venue.LoadBars(cfg.Higher, opts.Higher)

	res := newResult(cfg, opts)
	observers := engine.Observers{res.collector()}
	if opts.Observer != nil {
		observers = append(observers, opts.Observer)
	}

	e, err := bot.NewEngine(cfg, venue, observers, log)
	if err != nil {
		return nil, err
	}

	retrier := signal.Retrier{Attempts: 1, Log: log}
	step := cfg.Primary.Duration()
	log = log.With("replay")
	log.Info("Replaying %d %s bars from %s", len(opts.Primary), cfg.Primary, opts.Primary[0].Timestamp.Format(time.RFC3339))

	for _, bar := range data.SortByTimestamp(opts.Primary) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		open := bar.Timestamp.Add(time.Second)
		venue.SetClock(open, bar.Open)
		drain(ctx, e, retrier, opts.Signals, e.OnTick(ctx, open), open)

		closing := bar.Timestamp.Add(step - time.Second)
		venue.SetClock(closing, 0)
		venue.Step(bar)
		e.OnTick(ctx, closing)

		snap, err := venue.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read paper account: %w", err)
		}
		res.mark(closing, snap.Equity)
		res.Bars++
	}

	snap, _ := venue.Snapshot(ctx)
	res.FinalBalance = snap.Balance
	res.FinalEquity = snap.Equity
	res.Trades = venue.Trades()
	res.Fills = venue.Fills()
	res.Halted = e.State().Halted()

	log.Info("Replay done: %d trades, balance %.2f -> %.2f", len(res.Trades), res.InitialBalance, res.FinalBalance)
	return res, nil
}

// drain fetches every request synchronously and follows re-requests
func drain(ctx context.Context, e *engine.Engine, r signal.Retrier, src signal.Source, reqs []signal.FetchRequest, now time.Time) {
	for i := 0; len(reqs) > 0 && i < maxFollowUps; i++ {
		var next []signal.FetchRequest
		for _, req := range reqs {
			next = append(next, e.OnSignals(ctx, r.Fetch(ctx, src, req), now)...)
		}
		reqs = next
	}
}
