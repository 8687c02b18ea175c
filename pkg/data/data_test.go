package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

const sampleCSV = `timestamp,open,high,low,close,volume,turnover
2024-06-03 00:15:00,101,103,100,102,12,1224
2024-06-03 00:00:00,100,102,99,101,10,1010
2024-06-03 00:15:00,999,999,999,999,1,1
2024-06-03 00:30:00,102,101,100,100.5,5,500
bad-time,1,2,0.5,1.5,1,1
2024-06-03 00:45:00,100.5,101,100,100.8
1717375500,100.8,101.5,100.2,101.2,7,700
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candles.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCSVProvider_LoadData(t *testing.T) {
	p := NewCSVProvider()
	bars, err := p.LoadData(writeFile(t, sampleCSV))
	require.NoError(t, err)

	// high below open, bad time and short row are dropped; the duplicate
	// 00:15 row survives parsing and loses to the first occurrence
	assert.Equal(t, 3, p.Skipped())
	require.Len(t, bars, 3)
	assert.True(t, bars[0].Timestamp.Equal(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 102.0, bars[1].Close)
	assert.True(t, bars[2].Timestamp.Equal(time.Date(2024, 6, 3, 0, 45, 0, 0, time.UTC)), "unix seconds accepted")
	assert.NoError(t, p.ValidateData(bars))
}

func TestCSVProvider_Errors(t *testing.T) {
	p := NewCSVProvider()
	_, err := p.LoadData(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	_, err = p.LoadData(writeFile(t, "timestamp,open,high,low,close,volume\n"))
	assert.ErrorContains(t, err, "no valid bars")

	assert.Error(t, p.ValidateData(nil))
}

func TestParseBarTime(t *testing.T) {
	want := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-06-03 00:00:00", "2024-06-03T00:00:00Z", "1717372800", "1717372800000"} {
		got, err := parseBarTime(s, DefaultCSVFormat.DateFormat)
		require.NoError(t, err, s)
		assert.True(t, got.Equal(want), s)
	}
}

func TestFilters(t *testing.T) {
	t0 := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	bar := func(min int) types.OHLCV {
		return types.OHLCV{Timestamp: t0.Add(time.Duration(min) * time.Minute), Open: 1, High: 1, Low: 1, Close: 1}
	}

	data := SortByTimestamp([]types.OHLCV{bar(30), bar(0), bar(15)})
	assert.NoError(t, ValidateTimeSequence(data))
	assert.NoError(t, CheckSpacing(data, "15m"))

	assert.Error(t, ValidateTimeSequence([]types.OHLCV{bar(0), bar(0)}))
	assert.Error(t, CheckSpacing([]types.OHLCV{bar(0), bar(30)}, "15m"))

	assert.Len(t, FilterByDateRange(data, t0.Add(15*time.Minute), time.Time{}), 2)
	assert.Len(t, FilterByDateRange(data, time.Time{}, t0), 1)
	assert.Len(t, RemoveDuplicates([]types.OHLCV{bar(0), bar(0), bar(15)}), 2)
}

func TestFindDataFile(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "bybit", "linear", "BTCUSDT", "60")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "candles.csv"), nil, 0o644))

	path, _ := FindDataFile(root, "bybit", "btcusdt", "1h")
	assert.True(t, strings.HasSuffix(path, filepath.Join("60", "candles.csv")))

	path, tried := FindDataFile(root, "bybit", "ETHUSDT", "15m")
	assert.Empty(t, path)
	assert.Len(t, tried, 3)

	assert.Equal(t, "240", ConvertIntervalToMinutes("4h"))
	assert.Equal(t, "15", ConvertIntervalToMinutes("15"))
	assert.Equal(t, "weird", ConvertIntervalToMinutes("weird"))
}

func TestWriteCSV_LoadsBack(t *testing.T) {
	t0 := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	bars := []types.OHLCV{
		{Timestamp: t0.Add(15 * time.Minute), Open: 101, High: 103, Low: 100, Close: 102.5, Volume: 12},
		{Timestamp: t0, Open: 100, High: 102, Low: 99, Close: 101, Volume: 10},
	}
	path := filepath.Join(t.TempDir(), "bybit", "BTCUSDT_15m.csv")
	require.NoError(t, WriteCSV(path, bars))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2024-06-03 00:00:00,100,102,99,101,10,1010", lines[1])

	p := NewCSVProvider()
	loaded, err := p.LoadData(path)
	require.NoError(t, err)
	assert.Zero(t, p.Skipped())
	require.Len(t, loaded, 2)
	assert.Equal(t, bars[1], loaded[0])
	assert.Equal(t, bars[0], loaded[1])
}
