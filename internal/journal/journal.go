// Package journal appends every decision, placement, lifecycle action and
// risk transition of the engine to a SQLite database.
package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ducminhle1904/confluence-bot/internal/confirmation"
	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/internal/lifecycle"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/internal/orders"
	"github.com/ducminhle1904/confluence-bot/internal/risk"
	"github.com/ducminhle1904/confluence-bot/internal/signal"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// writeTimeout bounds a single journal write so a locked database cannot
// stall the engine loop
const writeTimeout = 2 * time.Second

// Journal is an engine observer backed by SQLite
type Journal struct {
	db       *gorm.DB
	identity exchange.Identity
	log      *logger.Logger
}

// Open opens or creates the journal at path. ":memory:" keeps it in memory.
func Open(path string, identity exchange.Identity, log *logger.Logger) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal path cannot be empty")
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	if err := db.AutoMigrate(&DecisionModel{}, &OrderModel{}, &LifecycleModel{}, &RiskEventModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		// one writer; also keeps a :memory: database on a single connection
		sqlDB.SetMaxOpenConns(1)
	}
	return &Journal{db: db, identity: identity, log: log.With("journal")}, nil
}

// Close closes the database
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (j *Journal) insert(what string, row interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := j.db.WithContext(ctx).Create(row).Error; err != nil {
		j.log.LogWarning("journal", "failed to record %s: %v", what, err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (j *Journal) RiskEvaluated(now time.Time, state risk.RiskState, v risk.Verdict) {
	events := []struct {
		name string
		on   bool
	}{
		{"day_rolled", v.DayRolled},
		{"daily_halt", v.DailyHaltTripped},
		{"drawdown_halt", v.DrawdownHaltTripped},
		{"resumed", v.Resumed},
	}
	for _, e := range events {
		if !e.on {
			continue
		}
		j.insert("risk event", &RiskEventModel{
			Symbol:            j.identity.Symbol,
			At:                now,
			Event:             e.name,
			DailyLossPercent:  v.DailyLossPercent,
			DrawdownPercent:   v.DrawdownPercent,
			DailyStartBalance: state.DailyStartBalance,
			PeakEquity:        state.PeakEquity,
		})
	}
}

func (j *Journal) SignalsFetched(time.Time, signal.FetchResult, int) {}

func (j *Journal) BarEvaluated(now time.Time, tf types.Timeframe, res confirmation.Result, err error) {
	row := &DecisionModel{
		Symbol:      j.identity.Symbol,
		Timeframe:   tf.String(),
		EvaluatedAt: now,
		Reason:      res.Reason,
		Strength:    res.Strength,
		Trend:       res.Trend.String(),
		Error:       errString(err),
	}
	if res.Candidate != 0 {
		row.Candidate = res.Candidate.String()
	}
	if d := res.Decision; d != nil {
		row.BarTime = d.BarTime
		row.Accepted = true
		row.StopDistance = d.StopDistance
		row.TPDistance = d.TakeProfitDistance
		row.Structural = d.StructuralConfirmation
	} else {
		row.BarTime = now.Truncate(tf.Duration())
	}
	j.insert("decision", row)
}

func (j *Journal) OrderPlaced(now time.Time, d confirmation.Decision, p orders.Placement, err error) {
	r := p.Request
	j.insert("order", &OrderModel{
		OrderID:    p.OrderID,
		Symbol:     j.identity.Symbol,
		StrategyID: j.identity.StrategyID,
		Timeframe:  d.Timeframe.String(),
		Side:       d.Direction.String(),
		Volume:     r.Volume,
		Price:      r.Price,
		StopLoss:   r.StopLoss,
		TakeProfit: r.TakeProfit,
		Expiration: r.Expiration,
		RiskValue:  p.RiskValue,
		Cancelled:  len(p.Cancelled),
		PlacedAt:   now,
		Error:      errString(err),
	})
}

func (j *Journal) PositionManaged(now time.Time, a lifecycle.Action) {
	j.insert("lifecycle action", &LifecycleModel{
		PositionID: a.PositionID,
		Symbol:     j.identity.Symbol,
		Kind:       string(a.Kind),
		Side:       a.Side.String(),
		Volume:     a.Volume,
		StopLoss:   a.StopLoss,
		Price:      a.Price,
		At:         now,
		Error:      errString(a.Err),
	})
}

func (j *Journal) OrdersExpired(time.Time, []string) {}

// Decisions returns the latest evaluated bars, newest first
func (j *Journal) Decisions(ctx context.Context, limit int) ([]DecisionModel, error) {
	var rows []DecisionModel
	q := j.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Orders returns every recorded placement attempt, oldest first
func (j *Journal) Orders(ctx context.Context) ([]OrderModel, error) {
	var rows []OrderModel
	if err := j.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ReasonCounts tallies decisions by outcome reason
func (j *Journal) ReasonCounts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Reason string
		N      int
	}
	err := j.db.WithContext(ctx).Model(&DecisionModel{}).
		Select("reason, count(*) AS n").Group("reason").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Reason] = r.N
	}
	return out, nil
}

// RiskEvents returns all breaker transitions, oldest first
func (j *Journal) RiskEvents(ctx context.Context) ([]RiskEventModel, error) {
	var rows []RiskEventModel
	if err := j.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
