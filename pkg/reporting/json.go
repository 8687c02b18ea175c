package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ducminhle1904/confluence-bot/internal/replay"
)

// Summary is the machine-readable digest of a replay
type Summary struct {
	Symbol             string         `json:"symbol"`
	StrategyID         string         `json:"strategy_id"`
	Primary            string         `json:"primary_timeframe"`
	Higher             string         `json:"higher_timeframe"`
	Start              time.Time      `json:"start"`
	End                time.Time      `json:"end"`
	Bars               int            `json:"bars"`
	InitialBalance     float64        `json:"initial_balance"`
	FinalBalance       float64        `json:"final_balance"`
	ReturnPercent      float64        `json:"return_percent"`
	MaxDrawdownPercent float64        `json:"max_drawdown_percent"`
	Orders             int            `json:"orders"`
	OrdersPlaced       int            `json:"orders_placed"`
	OrdersExpired      int            `json:"orders_expired"`
	Fills              int            `json:"fills"`
	Exits              int            `json:"exits"`
	WinRate            float64        `json:"win_rate"`
	ProfitFactor       float64        `json:"profit_factor"`
	NetPnL             float64        `json:"net_pnl"`
	Reasons            map[string]int `json:"reasons"`
	Halted             bool           `json:"halted"`
}

// Summarize builds the digest of res
func Summarize(res *replay.Result) Summary {
	stats := res.Stats()
	reasons := make(map[string]int)
	for _, rc := range res.ReasonCounts() {
		reasons[rc.Reason] = rc.Count
	}
	return Summary{
		Symbol:             res.Symbol,
		StrategyID:         res.StrategyID,
		Primary:            res.Primary.String(),
		Higher:             res.Higher.String(),
		Start:              res.Start,
		End:                res.End,
		Bars:               res.Bars,
		InitialBalance:     res.InitialBalance,
		FinalBalance:       res.FinalBalance,
		ReturnPercent:      res.ReturnPercent(),
		MaxDrawdownPercent: res.MaxDrawdownPercent,
		Orders:             len(res.Orders),
		OrdersPlaced:       placed(res),
		OrdersExpired:      res.Expired,
		Fills:              len(res.Fills),
		Exits:              stats.Exits,
		WinRate:            stats.WinRate,
		ProfitFactor:       stats.ProfitFactor,
		NetPnL:             res.NetPnL(),
		Reasons:            reasons,
		Halted:             res.Halted,
	}
}

// WriteSummaryJSON writes the digest of res as indented JSON
func WriteSummaryJSON(res *replay.Result, path string) error {
	if err := NewDefaultPathManager().EnsureDirectoryExists(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(Summarize(res), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
