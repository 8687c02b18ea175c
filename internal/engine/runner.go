package engine

import (
	"context"
	"time"

	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/internal/signal"
)

// Runner is the live event loop. Ticks, fetch results and operator
// requests are all handled on the goroutine that calls Run, which is the
// only one touching engine state.
type Runner struct {
	engine   *Engine
	fetcher  *signal.AsyncFetcher
	interval time.Duration
	clock    func() time.Time
	resume   chan chan error
	log      *logger.Logger
}

// NewRunner creates a runner ticking every interval
func NewRunner(e *Engine, fetcher *signal.AsyncFetcher, interval time.Duration, log *logger.Logger) *Runner {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Runner{
		engine:   e,
		fetcher:  fetcher,
		interval: interval,
		clock:    time.Now,
		resume:   make(chan chan error),
		log:      log.With("runner"),
	}
}

// Run loops until ctx is cancelled, then waits for in-flight fetches
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer r.fetcher.Wait()

	r.log.Info("Event loop started, ticking every %s", r.interval)
	r.submit(ctx, r.engine.OnTick(ctx, r.clock()))

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Event loop stopping: %v", ctx.Err())
			return nil
		case <-ticker.C:
			r.submit(ctx, r.engine.OnTick(ctx, r.clock()))
		case res := <-r.fetcher.Results():
			r.submit(ctx, r.engine.OnSignals(ctx, res, r.clock()))
		case reply := <-r.resume:
			reply <- r.engine.ResumeTrading(ctx)
		}
	}
}

func (r *Runner) submit(ctx context.Context, reqs []signal.FetchRequest) {
	for _, req := range reqs {
		r.fetcher.Submit(ctx, req)
	}
}

// Resume asks the loop to clear a drawdown halt and waits for the outcome
func (r *Runner) Resume(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case r.resume <- reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
