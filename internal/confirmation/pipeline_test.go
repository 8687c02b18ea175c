package confirmation

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/internal/signal"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

type fakeIndicators struct {
	atr    float64
	atrErr error
	// ma[period][shift]
	ma map[int]map[int]float64
}

func (f *fakeIndicators) ATR(ctx context.Context, tf types.Timeframe, period, shift int) (float64, error) {
	return f.atr, f.atrErr
}

func (f *fakeIndicators) MA(ctx context.Context, tf types.Timeframe, period, shift int) (float64, error) {
	return f.ma[period][shift], nil
}

func dirs(ds ...signal.Direction) []signal.Record {
	out := make([]signal.Record, len(ds))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, d := range ds {
		out[i] = signal.Record{Timestamp: base.Add(-time.Duration(i) * time.Minute), Direction: d, Weight: signal.WeightHigh}
	}
	return out
}

const (
	B = signal.DirectionBuy
	S = signal.DirectionSell
	N = signal.DirectionNone
)

func TestStreak(t *testing.T) {
	_, ok := Streak(dirs(B, B, B, S, B), 3)
	assert.False(t, ok, "an opposite record resets progress")

	side, ok := Streak(dirs(B, B, B, B), 3)
	require.True(t, ok)
	assert.Equal(t, types.SideBuy, side)

	side, ok = Streak(dirs(S, N, S, N, N, S, S), 3)
	require.True(t, ok, "none records neither extend nor break a run")
	assert.Equal(t, types.SideSell, side)

	_, ok = Streak(dirs(N, N, N), 0)
	assert.False(t, ok)
}

func TestStreak_FullBufferNeedsSpareRecord(t *testing.T) {
	full := dirs(B, B, B)
	_, ok := Streak(full, 3)
	assert.False(t, ok, "three unanimous records reach a count of two")

	side, ok := Streak(full, 2)
	require.True(t, ok)
	assert.Equal(t, types.SideBuy, side)
}

func TestStrength_RangeAndValues(t *testing.T) {
	recs := []signal.Record{
		{Direction: B, Weight: signal.WeightHigh}, // 2 * 1
		{Direction: S, Weight: signal.WeightHigh},
		{Direction: B, Weight: signal.WeightLow}, // 1 * 0.5
		{Direction: B, Weight: signal.WeightNone}, // 0.5 * 0.25
	}
	assert.InDelta(t, (2.0+0.5+0.125)/3, Strength(recs, types.SideBuy), 1e-9)
	assert.Equal(t, 0.0, Strength(nil, types.SideBuy))

	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 200; n++ {
		size := 1 + rng.Intn(30)
		buf := make([]signal.Record, size)
		for i := range buf {
			buf[i] = signal.Record{Direction: signal.Direction(rng.Intn(3)), Weight: signal.Weight(rng.Intn(3))}
		}
		s := Strength(buf, types.SideSell)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 2.0)
	}
}

func TestStrength_InvariantToNonMatchingReorder(t *testing.T) {
	a := []signal.Record{
		{Direction: B, Weight: signal.WeightHigh},
		{Direction: S, Weight: signal.WeightLow},
		{Direction: N},
		{Direction: B, Weight: signal.WeightLow},
	}
	b := []signal.Record{a[0], a[2], a[1], a[3]}
	assert.Equal(t, Strength(a, types.SideBuy), Strength(b, types.SideBuy))
}

func TestRejectionSide(t *testing.T) {
	hammer := types.OHLCV{Open: 100, Close: 101, High: 101.2, Low: 97}
	side, ok := RejectionSide(hammer)
	require.True(t, ok)
	assert.Equal(t, types.SideBuy, side)

	star := types.OHLCV{Open: 101, Close: 100, High: 104, Low: 99.9}
	side, ok = RejectionSide(star)
	require.True(t, ok)
	assert.Equal(t, types.SideSell, side)

	_, ok = RejectionSide(types.OHLCV{Open: 100, Close: 100, High: 102, Low: 98})
	assert.False(t, ok, "zero body")
	_, ok = RejectionSide(types.OHLCV{Open: 100, Close: 100, High: 100, Low: 100})
	assert.False(t, ok, "zero range")
}

func TestTrendFromMAs(t *testing.T) {
	assert.Equal(t, TrendBullish, TrendFromMAs(2, 1, 2, 1))
	assert.Equal(t, TrendBearish, TrendFromMAs(1, 2, 1, 2))
	assert.Equal(t, TrendNeutral, TrendFromMAs(2, 1, 1, 2))
	assert.False(t, TrendNeutral.Opposes(types.SideBuy))
	assert.True(t, TrendBearish.Opposes(types.SideBuy))
}

func TestOrderBlockAndTrendline(t *testing.T) {
	assert.True(t, OrderBlock(types.OHLCV{Open: 100, Close: 103, High: 103.5, Low: 99.5}, types.SideBuy))
	assert.False(t, OrderBlock(types.OHLCV{Open: 100, Close: 103, High: 103.5, Low: 99.5}, types.SideSell))

	// newest first: index 0 forming; swing lows at 3 (96) and 6 (94) -> rising
	lows := []float64{99, 98, 97, 96, 97, 95, 94, 95, 96}
	bars := make([]types.OHLCV, len(lows))
	for i, l := range lows {
		bars[i] = types.OHLCV{Low: l, High: l + 5}
	}
	assert.True(t, Trendline(bars, types.SideBuy, 20))
	assert.False(t, Trendline(bars[:5], types.SideBuy, 20), "only one swing in range")
}

func hammerBars() []types.OHLCV {
	return []types.OHLCV{
		{Open: 101, Close: 101, High: 101, Low: 101},
		{Open: 100, Close: 101, High: 101.2, Low: 97},
	}
}

func TestPipeline_Accepts(t *testing.T) {
	ind := &fakeIndicators{atr: 10}
	p := NewPipeline(Config{Confidence: 2, SLMultiplier: 1.5, TPMultiplier: 3, ATRPeriod: 14}, ind)

	res, err := p.Evaluate(context.Background(), Input{Timeframe: "15m", Records: dirs(B, B, B), Bars: hammerBars()})

	require.NoError(t, err)
	require.NotNil(t, res.Decision)
	assert.Equal(t, types.SideBuy, res.Decision.Direction)
	assert.InDelta(t, 15.0, res.Decision.StopDistance, 1e-9)
	assert.InDelta(t, 30.0, res.Decision.TakeProfitDistance, 1e-9)
	assert.False(t, res.Decision.StructuralConfirmation)
}

func TestPipeline_StructuralTightensStopOnly(t *testing.T) {
	ind := &fakeIndicators{atr: 10}
	p := NewPipeline(Config{Confidence: 1, SLMultiplier: 1, TPMultiplier: 2}, ind)
	// bullish marubozu-ish bar with a long lower tail is both a rejection and an order block
	bars := []types.OHLCV{{}, {Open: 100, Close: 106, High: 106.2, Low: 96}}

	res, err := p.Evaluate(context.Background(), Input{Timeframe: "15m", Records: dirs(B, B), Bars: bars})

	require.NoError(t, err)
	require.NotNil(t, res.Decision)
	assert.True(t, res.Decision.StructuralConfirmation)
	assert.InDelta(t, 8.5, res.Decision.StopDistance, 1e-9)
	assert.InDelta(t, 20.0, res.Decision.TakeProfitDistance, 1e-9)
}

func TestPipeline_HigherTimeframeOpposes(t *testing.T) {
	ind := &fakeIndicators{atr: 10, ma: map[int]map[int]float64{
		10: {1: 90, 2: 91},
		50: {1: 100, 2: 100},
	}}
	p := NewPipeline(Config{Confidence: 2, SLMultiplier: 1, TPMultiplier: 1, MTFFilter: true, FastMAPeriod: 10, SlowMAPeriod: 50}, ind)
	in := Input{Timeframe: "15m", Primary: true, HigherTimeframe: "1h", Records: dirs(B, B, B), Bars: hammerBars()}

	res, err := p.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, res.Decision)
	assert.Equal(t, ReasonTrendOpposed, res.Reason)

	in.Primary = false
	res, err = p.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.NotNil(t, res.Decision, "filter only applies on the primary timeframe")
}

func TestPipeline_RejectsWeakAndInvalid(t *testing.T) {
	p := NewPipeline(Config{Confidence: 1}, &fakeIndicators{atr: 0})

	weak := []signal.Record{{Direction: N}, {Direction: N}, {Direction: N}, {Direction: B, Weight: signal.WeightNone}, {Direction: B, Weight: signal.WeightNone}}
	res, err := p.Evaluate(context.Background(), Input{Records: weak, Bars: hammerBars()})
	require.NoError(t, err)
	assert.Equal(t, ReasonWeakStrength, res.Reason)

	_, err = p.Evaluate(context.Background(), Input{Records: dirs(B, B), Bars: hammerBars()})
	assert.True(t, boterrors.Is(err, boterrors.ErrorCategoryValidation), "non-positive ATR aborts")

	p = NewPipeline(Config{Confidence: 1}, &fakeIndicators{atrErr: errors.New("no data")})
	_, err = p.Evaluate(context.Background(), Input{Records: dirs(B, B), Bars: hammerBars()})
	assert.Error(t, err)
}
