package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// FetchRequest asks for the records of one timeframe that became available
// for the bar that closed at BarTime.
type FetchRequest struct {
	Timeframe types.Timeframe
	After     time.Time
	Until     time.Time
	BarTime   time.Time
}

// FetchResult is delivered back to the engine loop once a request finished,
// successfully or not.
type FetchResult struct {
	Request  FetchRequest
	Records  []Record
	Attempts int
	Err      error
}

// Retrier calls a source up to Attempts times, waiting Delay between
// attempts. The wait honours ctx.
type Retrier struct {
	Attempts int
	Delay    time.Duration
	Log      *logger.Logger
}

// Fetch runs req against src with bounded retries.
func (r Retrier) Fetch(ctx context.Context, src Source, req FetchRequest) FetchResult {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	res := FetchResult{Request: req}
	for attempt := 1; attempt <= attempts; attempt++ {
		res.Attempts = attempt
		records, err := src.Fetch(ctx, req.Timeframe, req.After, req.Until)
		if err == nil {
			res.Records = records
			res.Err = nil
			return res
		}
		res.Err = err
		r.Log.LogWarning("signal fetch", "attempt %d/%d for %s failed: %v", attempt, attempts, req.Timeframe, err)

		if attempt == attempts {
			break
		}
		timer := time.NewTimer(r.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Err = ctx.Err()
			return res
		case <-timer.C:
		}
	}

	res.Err = boterrors.NewDataSourceError("signal", "fetch",
		fmt.Errorf("giving up after %d attempts: %w", res.Attempts, res.Err)).WithContext("timeframe", req.Timeframe.String())
	return res
}

// AsyncFetcher runs retrier fetches on their own goroutines and hands the
// results back on a channel, so the caller's loop never waits on a slow
// source.
type AsyncFetcher struct {
	src     Source
	retrier Retrier
	results chan FetchResult
	wg      sync.WaitGroup
}

// NewAsyncFetcher creates a fetcher. buffer sizes the result channel.
func NewAsyncFetcher(src Source, retrier Retrier, buffer int) *AsyncFetcher {
	if buffer < 1 {
		buffer = 1
	}
	return &AsyncFetcher{
		src:     src,
		retrier: retrier,
		results: make(chan FetchResult, buffer),
	}
}

// Submit starts req in the background. The result is dropped if ctx is
// cancelled before the consumer takes it.
func (f *AsyncFetcher) Submit(ctx context.Context, req FetchRequest) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		res := f.retrier.Fetch(ctx, f.src, req)
		select {
		case f.results <- res:
		case <-ctx.Done():
		}
	}()
}

// Results is the channel the engine loop consumes.
func (f *AsyncFetcher) Results() <-chan FetchResult {
	return f.results
}

// Wait blocks until every submitted fetch has finished.
func (f *AsyncFetcher) Wait() {
	f.wg.Wait()
}
