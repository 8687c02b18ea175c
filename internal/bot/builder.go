// Package bot assembles the decision engine from a validated configuration
// and runs it against Bybit or a replay of recorded bars.
package bot

import (
	"fmt"

	"github.com/ducminhle1904/confluence-bot/internal/config"
	"github.com/ducminhle1904/confluence-bot/internal/confirmation"
	"github.com/ducminhle1904/confluence-bot/internal/engine"
	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/internal/indicators"
	"github.com/ducminhle1904/confluence-bot/internal/lifecycle"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/internal/orders"
	"github.com/ducminhle1904/confluence-bot/internal/risk"
	"github.com/ducminhle1904/confluence-bot/internal/signal"
)

// NewEngine wires the pipeline, gate, filters, lifecycle manager and order
// placer of cfg around venue. cfg must be validated.
func NewEngine(cfg *config.Config, venue exchange.Venue, observer engine.Observer, log *logger.Logger) (*engine.Engine, error) {
	c := cfg.Confirmation
	identity := cfg.Identity()

	// enough history for the slow MA at shift 2 and the ATR seed
	lookback := c.SlowMAPeriod + c.ATRPeriod + 10
	if lookback < indicators.DefaultLookback {
		lookback = indicators.DefaultLookback
	}
	ind := indicators.NewProvider(venue, lookback, c.MAKind)

	pipeline := confirmation.NewPipeline(confirmation.Config{
		Confidence:        c.Confidence,
		ATRPeriod:         c.ATRPeriod,
		SLMultiplier:      c.SLMultiplier,
		TPMultiplier:      c.TPMultiplier,
		MTFFilter:         c.MTFFilter,
		FastMAPeriod:      c.FastMAPeriod,
		SlowMAPeriod:      c.SlowMAPeriod,
		TrendlineLookback: c.TrendlineLookback,
	}, ind)

	lc := cfg.Lifecycle
	lc.Timeframe = cfg.Primary

	return engine.New(engine.Config{
		Identity:    identity,
		Primary:     cfg.Primary,
		Higher:      cfg.Higher,
		MaxDataSize: cfg.Signals.MaxDataSize,
		BarLookback: c.TrendlineLookback + 2,
		ATRPeriod:   c.ATRPeriod,
	}, engine.Deps{
		Venue:      venue,
		Indicators: ind,
		Pipeline:   pipeline,
		Gate:       risk.NewGate(cfg.RiskLimits(), cfg.Location(), log),
		Session:    risk.NewSessionFilter(cfg.Session, cfg.Location()),
		Spread:     risk.SpreadFilter{MaxSpreadPoints: cfg.Risk.MaxSpreadPoints},
		Lifecycle:  lifecycle.NewManager(lc, identity, venue, log),
		Placer:     orders.NewPlacer(cfg.Orders, identity, venue, risk.NewSizer(), log),
		Observer:   observer,
		Log:        log,
	})
}

// NewSignalSource returns the configured signal source
func NewSignalSource(cfg *config.Config) (signal.Source, error) {
	s := cfg.Signals
	switch s.Source {
	case "csv":
		return signal.NewCSVSource(s.CSVPath), nil
	case "http":
		return signal.NewHTTPSource(s.URL, cfg.Symbol, s.Token, s.HTTPTimeout), nil
	}
	return nil, boterrors.NewConfigurationError("bot", "signal_source",
		fmt.Sprintf("unknown signal source %q", s.Source))
}
