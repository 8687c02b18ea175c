package reporting

import (
	"io"
	"path/filepath"
	"time"

	"github.com/ducminhle1904/confluence-bot/internal/replay"
)

// DefaultReporter implements the complete Reporter interface
type DefaultReporter struct {
	console *DefaultConsoleReporter
	csv     *DefaultCSVReporter
	excel   *DefaultExcelReporter
	paths   *DefaultPathManager
}

var _ Reporter = (*DefaultReporter)(nil)

// NewDefaultReporter creates a new default reporter with all functionality
func NewDefaultReporter() *DefaultReporter {
	return &DefaultReporter{
		console: NewDefaultConsoleReporter(),
		csv:     NewDefaultCSVReporter(),
		excel:   NewDefaultExcelReporter(),
		paths:   NewDefaultPathManager(),
	}
}

func (r *DefaultReporter) OutputResults(w io.Writer, res *replay.Result) {
	r.console.OutputResults(w, res)
}

func (r *DefaultReporter) WriteTradesCSV(res *replay.Result, path string) error {
	return r.csv.WriteTradesCSV(res, path)
}

func (r *DefaultReporter) WriteWorkbook(res *replay.Result, path string) error {
	return r.excel.WriteWorkbook(res, path)
}

func (r *DefaultReporter) WriteSummaryJSON(res *replay.Result, path string) error {
	return WriteSummaryJSON(res, path)
}

func (r *DefaultReporter) GetDefaultOutputDir(symbol, interval string) string {
	return r.paths.GetDefaultOutputDir(symbol, interval)
}

func (r *DefaultReporter) EnsureDirectoryExists(path string) error {
	return r.paths.EnsureDirectoryExists(path)
}

// WriteAll writes the workbook, trade CSV and JSON summary of res into dir
// and returns the paths written
func (r *DefaultReporter) WriteAll(res *replay.Result, dir string, at time.Time) ([]string, error) {
	var written []string
	for _, out := range []struct {
		ext   string
		write func(*replay.Result, string) error
	}{
		{"xlsx", r.WriteWorkbook},
		{"csv", r.WriteTradesCSV},
		{"json", r.WriteSummaryJSON},
	} {
		path := filepath.Join(dir, RunFileName(at, out.ext))
		if err := out.write(res, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}
