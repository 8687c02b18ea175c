package data

import (
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// DataProvider loads historical bars
type DataProvider interface {
	// LoadData loads historical data from the specified source, oldest first
	LoadData(source string) ([]types.OHLCV, error)

	// ValidateData validates the integrity of the loaded data
	ValidateData(data []types.OHLCV) error

	// GetName returns the name of the data provider
	GetName() string
}

// CSVColumnMapping defines the column positions of a bar CSV.
// DateFormat is tried first; RFC 3339 and unix seconds/milliseconds are
// always accepted as well.
type CSVColumnMapping struct {
	TimestampCol int
	OpenCol      int
	HighCol      int
	LowCol       int
	CloseCol     int
	VolumeCol    int
	MinColumns   int
	DateFormat   string
}

// DefaultCSVFormat matches the files written by the Bybit kline downloader:
// timestamp,open,high,low,close,volume,turnover
var DefaultCSVFormat = CSVColumnMapping{
	TimestampCol: 0,
	OpenCol:      1,
	HighCol:      2,
	LowCol:       3,
	CloseCol:     4,
	VolumeCol:    5,
	MinColumns:   6,
	DateFormat:   "2006-01-02 15:04:05",
}
