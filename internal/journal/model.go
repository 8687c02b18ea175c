package journal

import "time"

// DecisionModel is one evaluated closed bar
type DecisionModel struct {
	ID           uint      `gorm:"primaryKey"`
	Symbol       string    `gorm:"index:idx_decision_bar;size:32"`
	Timeframe    string    `gorm:"index:idx_decision_bar;size:8"`
	BarTime      time.Time `gorm:"index:idx_decision_bar"`
	EvaluatedAt  time.Time
	Reason       string `gorm:"size:32;index"`
	Candidate    string `gorm:"size:8"`
	Strength     float64
	Trend        string `gorm:"size:16"`
	Accepted     bool
	StopDistance float64
	TPDistance   float64
	Structural   bool
	Error        string
}

func (DecisionModel) TableName() string { return "decisions" }

// OrderModel is one placement attempt
type OrderModel struct {
	ID         uint   `gorm:"primaryKey"`
	OrderID    string `gorm:"size:64;index"`
	Symbol     string `gorm:"size:32"`
	StrategyID string `gorm:"size:32"`
	Timeframe  string `gorm:"size:8"`
	Side       string `gorm:"size:8"`
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Expiration time.Time
	RiskValue  float64
	Cancelled  int
	PlacedAt   time.Time `gorm:"index"`
	Error      string
}

func (OrderModel) TableName() string { return "orders" }

// LifecycleModel is one partial close, breakeven or trailing call
type LifecycleModel struct {
	ID         uint   `gorm:"primaryKey"`
	PositionID string `gorm:"size:64;index"`
	Symbol     string `gorm:"size:32"`
	Kind       string `gorm:"size:16"`
	Side       string `gorm:"size:8"`
	Volume     float64
	StopLoss   float64
	Price      float64
	At         time.Time
	Error      string
}

func (LifecycleModel) TableName() string { return "lifecycle_actions" }

// RiskEventModel is a breaker transition or day rollover
type RiskEventModel struct {
	ID                uint      `gorm:"primaryKey"`
	Symbol            string    `gorm:"size:32"`
	At                time.Time `gorm:"index"`
	Event             string    `gorm:"size:24"`
	DailyLossPercent  float64
	DrawdownPercent   float64
	DailyStartBalance float64
	PeakEquity        float64
}

func (RiskEventModel) TableName() string { return "risk_events" }
