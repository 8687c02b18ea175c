package reporting

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/confluence-bot/internal/replay"
)

// Workbook sheet names
const (
	SummarySheet   = "Summary"
	TradesSheet    = "Trades"
	OrdersSheet    = "Orders"
	DecisionsSheet = "Decisions"
	EquitySheet    = "Equity"
)

const timeLayout = "2006-01-02 15:04:05"

// DefaultExcelReporter implements Excel output functionality
type DefaultExcelReporter struct{}

// NewDefaultExcelReporter creates a new Excel reporter
func NewDefaultExcelReporter() *DefaultExcelReporter {
	return &DefaultExcelReporter{}
}

// WriteWorkbook writes the replay result to an .xlsx workbook
func (r *DefaultExcelReporter) WriteWorkbook(res *replay.Result, path string) error {
	if err := NewDefaultPathManager().EnsureDirectoryExists(path); err != nil {
		return err
	}

	fx := excelize.NewFile()
	defer fx.Close()

	fx.SetSheetName(fx.GetSheetName(0), SummarySheet)
	for _, name := range []string{TradesSheet, OrdersSheet, DecisionsSheet, EquitySheet} {
		if _, err := fx.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	styles, err := r.createExcelStyles(fx)
	if err != nil {
		return fmt.Errorf("failed to create styles: %w", err)
	}

	writers := []func(*excelize.File, *replay.Result, ExcelStyles) error{
		r.writeSummarySheet,
		r.writeTradesSheet,
		r.writeOrdersSheet,
		r.writeDecisionsSheet,
		r.writeEquitySheet,
	}
	for _, write := range writers {
		if err := write(fx, res, styles); err != nil {
			return err
		}
	}

	if err := fx.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

func cellBorder(color string) []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: color, Style: 1},
		{Type: "right", Color: color, Style: 1},
		{Type: "bottom", Color: color, Style: 1},
	}
}

// createExcelStyles creates all workbook styles
func (r *DefaultExcelReporter) createExcelStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	var err error

	// Header style - dark slate background with white text
	styles.HeaderStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return styles, err
	}

	styles.BaseStyle, err = fx.NewStyle(&excelize.Style{Border: cellBorder("E0E0E0")})
	if err != nil {
		return styles, err
	}

	styles.CurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7, // $#,##0.00
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    cellBorder("E0E0E0"),
	})
	if err != nil {
		return styles, err
	}

	priceFmt := "0.00######"
	styles.PriceStyle, err = fx.NewStyle(&excelize.Style{
		CustomNumFmt: &priceFmt,
		Alignment:    &excelize.Alignment{Horizontal: "right"},
		Border:       cellBorder("E0E0E0"),
	})
	if err != nil {
		return styles, err
	}

	styles.PercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    10, // 0.00%
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    cellBorder("E0E0E0"),
	})
	if err != nil {
		return styles, err
	}

	styles.TimeStyle, err = fx.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center"},
		Border:    cellBorder("E0E0E0"),
	})
	if err != nil {
		return styles, err
	}

	// Green money for winners
	styles.ProfitStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Font:      &excelize.Font{Color: "008000"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"E8F5E8"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    cellBorder("E0E0E0"),
	})
	if err != nil {
		return styles, err
	}

	// Red money for losers
	styles.LossStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Font:      &excelize.Font{Color: "FF0000"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"FDEAEA"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    cellBorder("E0E0E0"),
	})
	if err != nil {
		return styles, err
	}

	styles.LabelStyle, err = fx.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true, Color: "2F4F4F"},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"F2F2F2"}, Pattern: 1},
		Border: cellBorder("E0E0E0"),
	})
	return styles, err
}

func writeHeaders(fx *excelize.File, sheet string, headers []string, style int) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, style)
	}
	return fx.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

// cellValue is a value with its style
type cellValue struct {
	v     interface{}
	style int
}

func writeRow(fx *excelize.File, sheet string, row int, cells []cellValue) error {
	for i, c := range cells {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		fx.SetCellValue(sheet, cell, c.v)
		fx.SetCellStyle(sheet, cell, cell, c.style)
	}
	return nil
}

func money(v float64, styles ExcelStyles) cellValue {
	switch {
	case v > 0:
		return cellValue{v, styles.ProfitStyle}
	case v < 0:
		return cellValue{v, styles.LossStyle}
	}
	return cellValue{v, styles.CurrencyStyle}
}

func autoFilter(fx *excelize.File, sheet string, cols, rows int) error {
	if rows < 2 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(cols, rows)
	if err != nil {
		return err
	}
	return fx.AutoFilter(sheet, "A1:"+last, nil)
}

func (r *DefaultExcelReporter) writeSummarySheet(fx *excelize.File, res *replay.Result, styles ExcelStyles) error {
	sheet := SummarySheet
	fx.SetColWidth(sheet, "A", "A", 24)
	fx.SetColWidth(sheet, "B", "B", 28)

	stats := res.Stats()
	rows := []struct {
		label string
		value cellValue
	}{
		{"Symbol", cellValue{res.Symbol, styles.BaseStyle}},
		{"Strategy", cellValue{res.StrategyID, styles.BaseStyle}},
		{"Timeframes", cellValue{fmt.Sprintf("%s / %s", res.Primary, res.Higher), styles.BaseStyle}},
		{"Start", cellValue{res.Start.Format(timeLayout), styles.TimeStyle}},
		{"End", cellValue{res.End.Format(timeLayout), styles.TimeStyle}},
		{"Bars", cellValue{res.Bars, styles.BaseStyle}},
		{"Initial Balance", cellValue{res.InitialBalance, styles.CurrencyStyle}},
		{"Final Balance", cellValue{res.FinalBalance, styles.CurrencyStyle}},
		{"Net PnL", money(res.NetPnL(), styles)},
		{"Return", cellValue{res.ReturnPercent() / 100, styles.PercentStyle}},
		{"Max Drawdown", cellValue{res.MaxDrawdownPercent / 100, styles.PercentStyle}},
		{"Orders", cellValue{len(res.Orders), styles.BaseStyle}},
		{"Orders Placed", cellValue{placed(res), styles.BaseStyle}},
		{"Orders Expired", cellValue{res.Expired, styles.BaseStyle}},
		{"Fills", cellValue{len(res.Fills), styles.BaseStyle}},
		{"Exits", cellValue{stats.Exits, styles.BaseStyle}},
		{"Win Rate", cellValue{stats.WinRate / 100, styles.PercentStyle}},
		{"Profit Factor", cellValue{stats.ProfitFactor, styles.BaseStyle}},
		{"Average Win", cellValue{stats.AverageWin, styles.CurrencyStyle}},
		{"Average Loss", cellValue{stats.AverageLoss, styles.CurrencyStyle}},
		{"Lifecycle Actions", cellValue{len(res.Actions), styles.BaseStyle}},
		{"Risk Events", cellValue{len(res.RiskEvents), styles.BaseStyle}},
		{"Halted At End", cellValue{res.Halted, styles.BaseStyle}},
	}
	for i, row := range rows {
		if err := writeRow(fx, sheet, i+1, []cellValue{{row.label, styles.LabelStyle}, row.value}); err != nil {
			return err
		}
	}

	// decision reasons beside the figures
	fx.SetColWidth(sheet, "D", "D", 24)
	fx.SetColWidth(sheet, "E", "E", 10)
	for i, h := range []string{"Reason", "Bars"} {
		cell, _ := excelize.CoordinatesToCellName(i+4, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle)
	}
	for i, rc := range res.ReasonCounts() {
		for j, v := range []interface{}{rc.Reason, rc.Count} {
			cell, _ := excelize.CoordinatesToCellName(j+4, i+2)
			fx.SetCellValue(sheet, cell, v)
			fx.SetCellStyle(sheet, cell, cell, styles.BaseStyle)
		}
	}
	return nil
}

func (r *DefaultExcelReporter) writeTradesSheet(fx *excelize.File, res *replay.Result, styles ExcelStyles) error {
	sheet := TradesSheet
	fx.SetColWidth(sheet, "A", "A", 6)  // #
	fx.SetColWidth(sheet, "B", "C", 20) // Open, Close
	fx.SetColWidth(sheet, "D", "D", 8)  // Side
	fx.SetColWidth(sheet, "E", "G", 12) // Volume, Entry, Exit
	fx.SetColWidth(sheet, "H", "I", 14) // PnL, Balance
	fx.SetColWidth(sheet, "J", "J", 14) // Reason
	fx.SetColWidth(sheet, "K", "K", 38) // Position

	headers := []string{"#", "Open Time", "Close Time", "Side", "Volume", "Entry", "Exit", "PnL", "Balance", "Reason", "Position"}
	if err := writeHeaders(fx, sheet, headers, styles.HeaderStyle); err != nil {
		return err
	}

	balance := res.InitialBalance
	for i, t := range res.Trades {
		balance += t.PnL
		if err := writeRow(fx, sheet, i+2, []cellValue{
			{i + 1, styles.BaseStyle},
			{t.OpenTime.Format(timeLayout), styles.TimeStyle},
			{t.CloseTime.Format(timeLayout), styles.TimeStyle},
			{t.Side.String(), styles.BaseStyle},
			{t.Volume, styles.BaseStyle},
			{t.EntryPrice, styles.PriceStyle},
			{t.ExitPrice, styles.PriceStyle},
			money(t.PnL, styles),
			{balance, styles.CurrencyStyle},
			{t.Reason, styles.BaseStyle},
			{t.PositionID, styles.BaseStyle},
		}); err != nil {
			return err
		}
	}
	return autoFilter(fx, sheet, len(headers), len(res.Trades)+1)
}

func (r *DefaultExcelReporter) writeOrdersSheet(fx *excelize.File, res *replay.Result, styles ExcelStyles) error {
	sheet := OrdersSheet
	fx.SetColWidth(sheet, "A", "A", 20)
	fx.SetColWidth(sheet, "B", "B", 8)
	fx.SetColWidth(sheet, "C", "G", 12)
	fx.SetColWidth(sheet, "H", "H", 20)
	fx.SetColWidth(sheet, "I", "I", 11)
	fx.SetColWidth(sheet, "J", "J", 40)
	fx.SetColWidth(sheet, "K", "K", 40)

	headers := []string{"Time", "Side", "Volume", "Entry", "Stop Loss", "Take Profit", "Risk", "Expires", "Structural", "Order ID", "Error"}
	if err := writeHeaders(fx, sheet, headers, styles.HeaderStyle); err != nil {
		return err
	}
	for i, o := range res.Orders {
		expires := ""
		if !o.Expiration.IsZero() {
			expires = o.Expiration.Format(timeLayout)
		}
		if err := writeRow(fx, sheet, i+2, []cellValue{
			{o.Time.Format(timeLayout), styles.TimeStyle},
			{o.Side.String(), styles.BaseStyle},
			{o.Volume, styles.BaseStyle},
			{o.Price, styles.PriceStyle},
			{o.StopLoss, styles.PriceStyle},
			{o.TakeProfit, styles.PriceStyle},
			{o.Risk, styles.CurrencyStyle},
			{expires, styles.TimeStyle},
			{o.Structural, styles.BaseStyle},
			{o.OrderID, styles.BaseStyle},
			{o.Error, styles.BaseStyle},
		}); err != nil {
			return err
		}
	}
	return autoFilter(fx, sheet, len(headers), len(res.Orders)+1)
}

func (r *DefaultExcelReporter) writeDecisionsSheet(fx *excelize.File, res *replay.Result, styles ExcelStyles) error {
	sheet := DecisionsSheet
	fx.SetColWidth(sheet, "A", "A", 20)
	fx.SetColWidth(sheet, "B", "B", 10)
	fx.SetColWidth(sheet, "C", "C", 22)
	fx.SetColWidth(sheet, "D", "E", 11)
	fx.SetColWidth(sheet, "F", "F", 50)

	headers := []string{"Time", "Timeframe", "Reason", "Candidate", "Strength", "Error"}
	if err := writeHeaders(fx, sheet, headers, styles.HeaderStyle); err != nil {
		return err
	}
	for i, d := range res.Decisions {
		if err := writeRow(fx, sheet, i+2, []cellValue{
			{d.Time.Format(timeLayout), styles.TimeStyle},
			{d.Timeframe.String(), styles.BaseStyle},
			{d.Reason, styles.BaseStyle},
			{d.Candidate, styles.BaseStyle},
			{d.Strength, styles.BaseStyle},
			{d.Error, styles.BaseStyle},
		}); err != nil {
			return err
		}
	}
	return autoFilter(fx, sheet, len(headers), len(res.Decisions)+1)
}

func (r *DefaultExcelReporter) writeEquitySheet(fx *excelize.File, res *replay.Result, styles ExcelStyles) error {
	sheet := EquitySheet
	fx.SetColWidth(sheet, "A", "A", 20)
	fx.SetColWidth(sheet, "B", "C", 14)

	if err := writeHeaders(fx, sheet, []string{"Time", "Equity", "Drawdown"}, styles.HeaderStyle); err != nil {
		return err
	}
	peak := res.InitialBalance
	for i, p := range res.EquityCurve() {
		if p.Equity > peak {
			peak = p.Equity
		}
		dd := 0.0
		if peak > 0 {
			dd = (peak - p.Equity) / peak
		}
		if err := writeRow(fx, sheet, i+2, []cellValue{
			{p.Time.Format(timeLayout), styles.TimeStyle},
			{p.Equity, styles.CurrencyStyle},
			{dd, styles.PercentStyle},
		}); err != nil {
			return err
		}
	}
	return nil
}
