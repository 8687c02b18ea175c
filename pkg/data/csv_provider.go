package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// CSVProvider implements DataProvider for CSV files
type CSVProvider struct {
	format  CSVColumnMapping
	skipped int
}

// NewCSVProvider creates a new CSV data provider with default format
func NewCSVProvider() *CSVProvider {
	return &CSVProvider{format: DefaultCSVFormat}
}

// NewCSVProviderWithFormat creates a new CSV data provider with custom format
func NewCSVProviderWithFormat(format CSVColumnMapping) *CSVProvider {
	return &CSVProvider{format: format}
}

// GetName returns the name of the data provider
func (p *CSVProvider) GetName() string {
	return "CSV Provider"
}

// Skipped returns how many malformed rows the last load dropped
func (p *CSVProvider) Skipped() int {
	return p.skipped
}

// LoadData loads bars from a CSV file with a header row. Rows that do not
// parse or violate OHLC ordering are skipped and counted. The result is
// sorted and de-duplicated.
func (p *CSVProvider) LoadData(source string) ([]types.OHLCV, error) {
	file, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open bar file %s: %w", source, err)
	}
	defer file.Close()

	bars, err := p.parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no valid bars in %s (%d rows skipped)", source, p.skipped)
	}
	return RemoveDuplicates(SortByTimestamp(bars)), nil
}

func (p *CSVProvider) parse(r io.Reader) ([]types.OHLCV, error) {
	format := p.format
	p.skipped = 0

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	// Skip header
	if _, err := reader.Read(); err != nil {
		return nil, err
	}

	var data []types.OHLCV
	lineNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV at line %d: %w", lineNum+1, err)
		}
		lineNum++

		if len(record) < format.MinColumns {
			p.skipped++
			continue
		}

		timestamp, err := parseBarTime(record[format.TimestampCol], format.DateFormat)
		if err != nil {
			p.skipped++
			continue
		}

		var vals [5]float64
		cols := [5]int{format.OpenCol, format.HighCol, format.LowCol, format.CloseCol, format.VolumeCol}
		ok := true
		for i, col := range cols {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			p.skipped++
			continue
		}

		bar := types.OHLCV{
			Timestamp: timestamp,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		}
		if err := validateBar(bar); err != nil {
			p.skipped++
			continue
		}
		data = append(data, bar)
	}

	return data, nil
}

func parseBarTime(s, layout string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if layout != "" {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	if n > 1e12 {
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}

func validateBar(b types.OHLCV) error {
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("prices must be positive")
	}
	if b.High < b.Low {
		return fmt.Errorf("high (%.4f) cannot be less than low (%.4f)", b.High, b.Low)
	}
	if b.High < b.Open || b.High < b.Close {
		return fmt.Errorf("high (%.4f) must be >= open (%.4f) and close (%.4f)", b.High, b.Open, b.Close)
	}
	if b.Low > b.Open || b.Low > b.Close {
		return fmt.Errorf("low (%.4f) must be <= open (%.4f) and close (%.4f)", b.Low, b.Open, b.Close)
	}
	return nil
}

// ValidateData validates the integrity of loaded data
func (p *CSVProvider) ValidateData(data []types.OHLCV) error {
	if len(data) == 0 {
		return fmt.Errorf("no data provided")
	}
	for i, candle := range data {
		if err := validateBar(candle); err != nil {
			return fmt.Errorf("invalid price data at index %d: %w", i, err)
		}
	}
	return ValidateTimeSequence(data)
}
