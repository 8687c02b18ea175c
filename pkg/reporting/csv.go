package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ducminhle1904/confluence-bot/internal/replay"
)

// DefaultCSVReporter implements CSV output functionality
type DefaultCSVReporter struct{}

// NewDefaultCSVReporter creates a new CSV reporter
func NewDefaultCSVReporter() *DefaultCSVReporter {
	return &DefaultCSVReporter{}
}

// WriteTradesCSV writes one row per realised exit. A path ending in .xlsx
// writes the full workbook instead.
func (r *DefaultCSVReporter) WriteTradesCSV(res *replay.Result, path string) error {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return NewDefaultExcelReporter().WriteWorkbook(res, path)
	}
	if err := NewDefaultPathManager().EnsureDirectoryExists(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"Open_Time",
		"Close_Time",
		"Side",
		"Volume",
		"Entry_Price",
		"Exit_Price",
		"PnL",
		"Balance",
		"Reason",
		"Position_ID",
	}); err != nil {
		return err
	}

	balance := res.InitialBalance
	for _, t := range res.Trades {
		balance += t.PnL
		if err := w.Write([]string{
			t.OpenTime.UTC().Format(time.RFC3339),
			t.CloseTime.UTC().Format(time.RFC3339),
			t.Side.String(),
			strconv.FormatFloat(t.Volume, 'f', -1, 64),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(t.PnL, 'f', 2, 64),
			strconv.FormatFloat(balance, 'f', 2, 64),
			t.Reason,
			t.PositionID,
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
