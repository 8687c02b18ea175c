package signal

import (
	"fmt"
	"sort"
	"time"
)

// Buffer holds the most recent records of one timeframe, newest at index 0.
// It is owned by a single engine lane and is not safe for concurrent use.
type Buffer struct {
	records       []Record
	capacity      int
	lastProcessed time.Time
}

// NewBuffer creates a buffer holding at most capacity records.
func NewBuffer(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("signal buffer capacity must be positive, got %d", capacity)
	}
	return &Buffer{
		records:  make([]Record, 0, capacity),
		capacity: capacity,
	}, nil
}

// Push inserts r as the newest record, evicting the oldest when full.
func (b *Buffer) Push(r Record) {
	if len(b.records) < b.capacity {
		b.records = append(b.records, Record{})
	}
	copy(b.records[1:], b.records[:len(b.records)-1])
	b.records[0] = r
}

// Apply pushes every record that is strictly newer than the last processed
// timestamp and not newer than until. Records may arrive in any order; they
// are inserted oldest first. Records sharing an instant collapse to the
// first one delivered. It returns the number of records accepted and the
// number collapsed into an earlier record of the same batch.
func (b *Buffer) Apply(records []Record, until time.Time) (accepted, collapsed int) {
	if len(records) == 0 {
		return 0, 0
	}
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	for _, r := range sorted {
		if r.Timestamp.After(until) {
			continue
		}
		if !r.Timestamp.After(b.lastProcessed) {
			if accepted > 0 && r.Timestamp.Equal(b.lastProcessed) {
				collapsed++
			}
			continue
		}
		b.Push(r)
		b.lastProcessed = r.Timestamp
		accepted++
	}
	return accepted, collapsed
}

// Len returns the number of stored records.
func (b *Buffer) Len() int {
	return len(b.records)
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// At returns the record at index i (0 = newest).
func (b *Buffer) At(i int) Record {
	return b.records[i]
}

// Records returns a copy of the stored records, newest first.
func (b *Buffer) Records() []Record {
	out := make([]Record, len(b.records))
	copy(out, b.records)
	return out
}

// LastProcessed is the timestamp of the newest record applied so far.
func (b *Buffer) LastProcessed() time.Time {
	return b.lastProcessed
}
