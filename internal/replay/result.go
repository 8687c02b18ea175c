package replay

import (
	"sort"
	"time"

	"github.com/ducminhle1904/confluence-bot/internal/config"
	"github.com/ducminhle1904/confluence-bot/internal/confirmation"
	"github.com/ducminhle1904/confluence-bot/internal/engine"
	"github.com/ducminhle1904/confluence-bot/internal/exchange/paper"
	"github.com/ducminhle1904/confluence-bot/internal/lifecycle"
	"github.com/ducminhle1904/confluence-bot/internal/orders"
	"github.com/ducminhle1904/confluence-bot/internal/risk"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// Decision is one evaluated bar
type Decision struct {
	Time      time.Time
	Timeframe types.Timeframe
	Reason    string
	Candidate string
	Strength  float64
	Error     string
}

// Order is one placement attempt
type Order struct {
	Time       time.Time
	OrderID    string
	Side       types.Side
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Expiration time.Time
	Risk       float64
	Structural bool
	Error      string
}

// RiskEvent is a breaker transition
type RiskEvent struct {
	Time    time.Time
	Event   string
	Percent float64
}

// Result is everything a replay produced
type Result struct {
	Symbol     string
	StrategyID string
	Primary    types.Timeframe
	Higher     types.Timeframe
	Start      time.Time
	End        time.Time
	Bars       int

	InitialBalance     float64
	FinalBalance       float64
	FinalEquity        float64
	PeakEquity         float64
	MaxDrawdownPercent float64
	Halted             bool

	Trades     []paper.Trade
	Fills      []paper.Fill
	Decisions  []Decision
	Orders     []Order
	Actions    []lifecycle.Action
	RiskEvents []RiskEvent
	Expired    int

	curve []EquityPoint
}

// EquityPoint is the equity at the close of a bar
type EquityPoint struct {
	Time   time.Time
	Equity float64
}

func newResult(cfg *config.Config, opts Options) *Result {
	r := &Result{
		Symbol:         cfg.Symbol,
		StrategyID:     cfg.StrategyID,
		Primary:        cfg.Primary,
		Higher:         cfg.Higher,
		InitialBalance: opts.InitialBalance,
		FinalBalance:   opts.InitialBalance,
		FinalEquity:    opts.InitialBalance,
		PeakEquity:     opts.InitialBalance,
	}
	if n := len(opts.Primary); n > 0 {
		r.Start = opts.Primary[0].Timestamp
		r.End = opts.Primary[n-1].Timestamp
		for _, b := range opts.Primary {
			if b.Timestamp.Before(r.Start) {
				r.Start = b.Timestamp
			}
			if b.Timestamp.After(r.End) {
				r.End = b.Timestamp
			}
		}
	}
	return r
}

func (r *Result) mark(at time.Time, equity float64) {
	r.curve = append(r.curve, EquityPoint{Time: at, Equity: equity})
	if equity > r.PeakEquity {
		r.PeakEquity = equity
	}
	if r.PeakEquity > 0 {
		if dd := (r.PeakEquity - equity) / r.PeakEquity * 100; dd > r.MaxDrawdownPercent {
			r.MaxDrawdownPercent = dd
		}
	}
}

// EquityCurve returns the per-bar equity
func (r *Result) EquityCurve() []EquityPoint {
	out := make([]EquityPoint, len(r.curve))
	copy(out, r.curve)
	return out
}

// NetPnL is the realised profit over the replay
func (r *Result) NetPnL() float64 {
	var total float64
	for _, t := range r.Trades {
		total += t.PnL
	}
	return total
}

// ReturnPercent is the realised balance change in percent
func (r *Result) ReturnPercent() float64 {
	if r.InitialBalance == 0 {
		return 0
	}
	return (r.FinalBalance - r.InitialBalance) / r.InitialBalance * 100
}

// TradeStats summarises realised exits. Partial closes count as exits of
// their own.
type TradeStats struct {
	Exits        int
	Wins         int
	Losses       int
	WinRate      float64
	GrossProfit  float64
	GrossLoss    float64
	ProfitFactor float64
	AverageWin   float64
	AverageLoss  float64
	LargestWin   float64
	LargestLoss  float64
	ByReason     map[string]int
}

// Stats computes the trade statistics
func (r *Result) Stats() TradeStats {
	s := TradeStats{ByReason: make(map[string]int)}
	for _, t := range r.Trades {
		s.Exits++
		s.ByReason[t.Reason]++
		switch {
		case t.PnL > 0:
			s.Wins++
			s.GrossProfit += t.PnL
			if t.PnL > s.LargestWin {
				s.LargestWin = t.PnL
			}
		case t.PnL < 0:
			s.Losses++
			s.GrossLoss -= t.PnL
			if -t.PnL > s.LargestLoss {
				s.LargestLoss = -t.PnL
			}
		}
	}
	if decided := s.Wins + s.Losses; decided > 0 {
		s.WinRate = float64(s.Wins) / float64(decided) * 100
	}
	if s.Wins > 0 {
		s.AverageWin = s.GrossProfit / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AverageLoss = s.GrossLoss / float64(s.Losses)
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	return s
}

// ReasonCount is a decision reason and how often it occurred
type ReasonCount struct {
	Reason string
	Count  int
}

// ReasonCounts tallies decision reasons, most frequent first
func (r *Result) ReasonCounts() []ReasonCount {
	counts := make(map[string]int)
	for _, d := range r.Decisions {
		reason := d.Reason
		if d.Error != "" {
			reason = "error"
		}
		counts[reason]++
	}
	out := make([]ReasonCount, 0, len(counts))
	for reason, n := range counts {
		out = append(out, ReasonCount{Reason: reason, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// collector fills a Result from engine events
type collector struct {
	engine.NopObserver
	r *Result
}

func (r *Result) collector() *collector {
	return &collector{r: r}
}

func (c *collector) RiskEvaluated(now time.Time, _ risk.RiskState, v risk.Verdict) {
	add := func(event string, pct float64) {
		c.r.RiskEvents = append(c.r.RiskEvents, RiskEvent{Time: now, Event: event, Percent: pct})
	}
	if v.DailyHaltTripped {
		add("daily_loss_halt", v.DailyLossPercent)
	}
	if v.DrawdownHaltTripped {
		add("drawdown_halt", v.DrawdownPercent)
	}
	if v.Resumed {
		add("resumed", 0)
	}
}

func (c *collector) BarEvaluated(now time.Time, tf types.Timeframe, res confirmation.Result, err error) {
	d := Decision{Time: now, Timeframe: tf, Reason: res.Reason, Strength: res.Strength}
	if res.Candidate != 0 {
		d.Candidate = res.Candidate.String()
	}
	if err != nil {
		d.Error = err.Error()
	}
	c.r.Decisions = append(c.r.Decisions, d)
}

func (c *collector) OrderPlaced(now time.Time, d confirmation.Decision, p orders.Placement, err error) {
	o := Order{
		Time:       now,
		OrderID:    p.OrderID,
		Side:       d.Direction,
		Volume:     p.Request.Volume,
		Price:      p.Request.Price,
		StopLoss:   p.Request.StopLoss,
		TakeProfit: p.Request.TakeProfit,
		Expiration: p.Request.Expiration,
		Risk:       p.RiskValue,
		Structural: d.StructuralConfirmation,
	}
	if err != nil {
		o.Error = err.Error()
	}
	c.r.Orders = append(c.r.Orders, o)
}

func (c *collector) PositionManaged(_ time.Time, a lifecycle.Action) {
	c.r.Actions = append(c.r.Actions, a)
}

func (c *collector) OrdersExpired(_ time.Time, ids []string) {
	c.r.Expired += len(ids)
}
