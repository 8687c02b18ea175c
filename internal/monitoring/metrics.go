package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Account and risk metrics
	equity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "confluence_account_equity",
			Help: "Account equity seen by the risk gate",
		},
		[]string{"symbol"},
	)

	dailyLossPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "confluence_risk_daily_loss_percent",
			Help: "Loss since the start of the venue day, in percent of the start balance",
		},
		[]string{"symbol"},
	)

	drawdownPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "confluence_risk_drawdown_percent",
			Help: "Drawdown from peak equity in percent",
		},
		[]string{"symbol"},
	)

	tradingHalted = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "confluence_trading_halted",
			Help: "1 while a breaker blocks new entries",
		},
		[]string{"symbol", "breaker"},
	)

	haltTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confluence_risk_transitions_total",
			Help: "Breaker trips, resumptions and day rollovers",
		},
		[]string{"symbol", "transition"},
	)

	// Signal metrics
	signalFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confluence_signal_fetches_total",
			Help: "Signal fetches by outcome",
		},
		[]string{"symbol", "timeframe", "result"},
	)

	signalAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "confluence_signal_fetch_attempts",
			Help:    "Attempts needed per signal fetch",
			Buckets: []float64{1, 2, 3, 5, 8},
		},
		[]string{"symbol", "timeframe"},
	)

	signalRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confluence_signal_records_total",
			Help: "Signal records accepted into the buffer",
		},
		[]string{"symbol", "timeframe"},
	)

	// Decision metrics
	barEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confluence_bar_evaluations_total",
			Help: "Closed bars evaluated, by outcome reason",
		},
		[]string{"symbol", "timeframe", "reason"},
	)

	decisionStrength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "confluence_signal_strength",
			Help: "Weighted strength of the last candidate",
		},
		[]string{"symbol", "timeframe"},
	)

	// Execution metrics
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confluence_orders_total",
			Help: "Pending order placements by outcome",
		},
		[]string{"symbol", "side", "result"},
	)

	orderRisk = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "confluence_order_risk",
			Help:    "Account currency at risk per placed order",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"symbol"},
	)

	ordersExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confluence_orders_expired_total",
			Help: "Pending orders cancelled by the expiry sweep",
		},
		[]string{"symbol"},
	)

	lifecycleActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confluence_lifecycle_actions_total",
			Help: "Partial closes, breakeven and trailing moves by outcome",
		},
		[]string{"symbol", "kind", "result"},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confluence_errors_total",
			Help: "Total number of errors by category",
		},
		[]string{"symbol", "category"},
	)
)

func init() {
	prometheus.MustRegister(
		equity, dailyLossPercent, drawdownPercent, tradingHalted, haltTransitions,
		signalFetches, signalAttempts, signalRecords,
		barEvaluations, decisionStrength,
		ordersTotal, orderRisk, ordersExpired, lifecycleActions,
		errorsTotal,
	)
}

// MetricsHandler serves the Prometheus metrics endpoint
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
