// Package reporting renders replay results as console tables, CSV and JSON
// files, and an Excel workbook.
package reporting

import (
	"io"

	"github.com/ducminhle1904/confluence-bot/internal/replay"
)

// ConsoleReporter defines interface for console output
type ConsoleReporter interface {
	OutputResults(w io.Writer, res *replay.Result)
}

// FileReporter defines interface for file output
type FileReporter interface {
	WriteTradesCSV(res *replay.Result, path string) error
	WriteWorkbook(res *replay.Result, path string) error
	WriteSummaryJSON(res *replay.Result, path string) error
}

// PathManager defines interface for output path management
type PathManager interface {
	GetDefaultOutputDir(symbol, interval string) string
	EnsureDirectoryExists(path string) error
}

// Reporter combines all reporting interfaces
type Reporter interface {
	ConsoleReporter
	FileReporter
	PathManager
}

// ExcelStyles holds Excel formatting styles
type ExcelStyles struct {
	HeaderStyle   int
	BaseStyle     int
	CurrencyStyle int
	PriceStyle    int
	PercentStyle  int
	TimeStyle     int
	ProfitStyle   int
	LossStyle     int
	LabelStyle    int
}
