package signal

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// Source yields the records of one timeframe with after < timestamp <= until,
// oldest first.
type Source interface {
	Fetch(ctx context.Context, tf types.Timeframe, after, until time.Time) ([]Record, error)
}

// CSVSource reads an append-only CSV dataset. The file is re-read on every
// fetch so an external writer can keep appending to it.
//
// Expected columns: timestamp,direction,weight with an optional timeframe
// column. When the timeframe column is present only matching rows are
// returned. Timestamps are unix seconds, unix milliseconds or RFC3339.
type CSVSource struct {
	path string
}

// NewCSVSource creates a CSV backed source.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Fetch implements Source.
func (s *CSVSource) Fetch(ctx context.Context, tf types.Timeframe, after, until time.Time) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(s.path)
	if err != nil {
		return nil, boterrors.NewDataSourceError("signal", "open csv", err)
	}
	defer file.Close()

	records, err := parseSignalCSV(file, tf)
	if err != nil {
		return nil, boterrors.NewDataSourceError("signal", "parse csv", err).WithContext("path", s.path)
	}

	out := records[:0]
	for _, r := range records {
		if r.Timestamp.After(after) && !r.Timestamp.After(until) {
			out = append(out, r)
		}
	}
	return out, nil
}

func parseSignalCSV(r io.Reader, tf types.Timeframe) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	tsCol, ok := cols["timestamp"]
	if !ok {
		return nil, fmt.Errorf("missing timestamp column")
	}
	dirCol, ok := cols["direction"]
	if !ok {
		return nil, fmt.Errorf("missing direction column")
	}
	weightCol, hasWeight := cols["weight"]
	tfCol, hasTF := cols["timeframe"]

	var out []Record
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("error reading CSV at line %d: %w", line, err)
		}
		if hasTF && tfCol < len(row) && types.Timeframe(strings.ToLower(strings.TrimSpace(row[tfCol]))) != tf {
			continue
		}
		if tsCol >= len(row) || dirCol >= len(row) {
			return nil, fmt.Errorf("insufficient columns at line %d", line)
		}

		ts, err := parseTimestamp(row[tsCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		dir, err := ParseDirection(row[dirCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		weight := WeightNone
		if hasWeight && weightCol < len(row) {
			if weight, err = ParseWeight(row[weightCol]); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		out = append(out, Record{Timestamp: ts, Direction: dir, Weight: weight})
	}
	return out, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t.UTC(), nil
}

// StaticSource serves a fixed set of records per timeframe. Useful for tests
// and for replaying a signal file that was loaded up front.
type StaticSource struct {
	records map[types.Timeframe][]Record
}

// NewStaticSource creates a source over the given records.
func NewStaticSource(records map[types.Timeframe][]Record) *StaticSource {
	return &StaticSource{records: records}
}

// Fetch implements Source.
func (s *StaticSource) Fetch(ctx context.Context, tf types.Timeframe, after, until time.Time) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range s.records[tf] {
		if r.Timestamp.After(after) && !r.Timestamp.After(until) {
			out = append(out, r)
		}
	}
	return out, nil
}

// LoadCSV reads every record of a signal CSV into a StaticSource, once. Rows
// without a timeframe column are assigned to every timeframe in tfs.
func LoadCSV(path string, tfs ...types.Timeframe) (*StaticSource, error) {
	data := make(map[types.Timeframe][]Record, len(tfs))
	for _, tf := range tfs {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open signal file: %w", err)
		}
		records, err := parseSignalCSV(file, tf)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse signal file %s: %w", path, err)
		}
		data[tf] = records
	}
	return NewStaticSource(data), nil
}
