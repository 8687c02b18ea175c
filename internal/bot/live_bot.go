package bot

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ducminhle1904/confluence-bot/internal/config"
	"github.com/ducminhle1904/confluence-bot/internal/engine"
	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/internal/exchange/bybit"
	"github.com/ducminhle1904/confluence-bot/internal/journal"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/internal/monitoring"
	"github.com/ducminhle1904/confluence-bot/internal/notifications"
	"github.com/ducminhle1904/confluence-bot/internal/safety"
	"github.com/ducminhle1904/confluence-bot/internal/signal"
)

// alertQueue sizes the notification backlog
const alertQueue = 64

// LiveBot runs the engine against a venue with monitoring, the journal and
// alerts attached
type LiveBot struct {
	cfg *config.Config
	log *logger.Logger

	client  exchange.Venue
	venue   *safety.ProtectedVenue
	engine  *engine.Engine
	runner  *engine.Runner
	health  *monitoring.HealthChecker
	server  *monitoring.Server
	journal *journal.Journal
	alerter *notifications.Alerter
}

// NewLiveBot builds a bot trading on Bybit. Credentials must be present.
func NewLiveBot(cfg *config.Config, log *logger.Logger) (*LiveBot, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}
	client := bybit.NewClient(bybit.Config{
		APIKey:       cfg.Exchange.APIKey,
		APISecret:    cfg.Exchange.APISecret,
		Testnet:      cfg.Exchange.Testnet,
		Demo:         cfg.Exchange.Demo,
		Category:     cfg.Exchange.Category,
		Symbol:       cfg.Symbol,
		StrategyID:   cfg.StrategyID,
		MinStopTicks: cfg.Exchange.MinStopTicks,
	}, log)
	return NewLiveBotWithVenue(cfg, client, log)
}

// NewLiveBotWithVenue builds a bot around an existing venue
func NewLiveBotWithVenue(cfg *config.Config, client exchange.Venue, log *logger.Logger) (*LiveBot, error) {
	b := &LiveBot{
		cfg:    cfg,
		log:    log,
		client: client,
		venue:  safety.NewProtectedVenue(client, cfg.Safety.RateLimit, cfg.Safety.Breaker, log),
		health: monitoring.NewHealthChecker(4 * cfg.TickInterval),
	}
	b.health.WatchBreakers(func() map[string]string {
		reads, writes := b.venue.BreakerStates()
		return map[string]string{"reads": reads.String(), "writes": writes.String()}
	})

	observers := engine.Observers{monitoring.NewObserver(cfg.Symbol, b.health)}

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path, cfg.Identity(), log)
		if err != nil {
			return nil, err
		}
		b.journal = j
		observers = append(observers, j)
	}
	if cfg.Notifications.Enabled {
		title := fmt.Sprintf("Confluence %s", cfg.StrategyID)
		n := notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChat, title)
		b.alerter = notifications.NewAlerter(n, cfg.Symbol, alertQueue, log)
		observers = append(observers, b.alerter)
	}
	if cfg.Monitoring.Enabled {
		b.server = monitoring.NewServer(cfg.Monitoring.Addr, b.health, log)
	}

	e, err := NewEngine(cfg, b.venue, observers, log)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.engine = e

	src, err := NewSignalSource(cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	fetcher := signal.NewAsyncFetcher(src, signal.Retrier{
		Attempts: cfg.Signals.Attempts,
		Delay:    cfg.Signals.RetryDelay,
		Log:      log,
	}, 4)
	b.runner = engine.NewRunner(e, fetcher, cfg.TickInterval, log)
	return b, nil
}

// Run prints the startup tables and runs the event loop, the monitoring
// listener and the alerter until ctx is cancelled or one of them fails
func (b *LiveBot) Run(ctx context.Context) error {
	b.printStartupInfo()
	b.printBotConfiguration(ctx)
	fmt.Printf("📝 Trading logs: %s\n", b.log.GetLogPath())
	fmt.Printf("🔄 Bot is running... (trading activity logged to file)\n\n")

	group, ctx := errgroup.WithContext(ctx)
	if b.server != nil {
		group.Go(func() error {
			if err := b.server.Run(ctx); err != nil {
				return fmt.Errorf("monitoring server error: %w", err)
			}
			return nil
		})
	}
	if b.alerter != nil {
		group.Go(func() error {
			b.alerter.Run(ctx)
			return nil
		})
	}
	group.Go(func() error {
		return b.runner.Run(ctx)
	})

	err := group.Wait()
	b.shutdown()
	return err
}

// Resume clears a manual drawdown halt from outside the event loop
func (b *LiveBot) Resume(ctx context.Context) error {
	return b.runner.Resume(ctx)
}

// Health returns the current health report
func (b *LiveBot) Health() monitoring.HealthStatus {
	return b.health.Status()
}

// shutdown cancels this engine's pending orders; open positions keep their
// venue-side stop and target
func (b *LiveBot) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fmt.Printf("🧹 Cancelling pending orders...\n")
	ids, err := cancelOwnPending(ctx, b.client, b.cfg.Identity())
	if err != nil {
		fmt.Printf("⚠️ Error cancelling pending orders: %v\n", err)
		b.log.LogError("shutdown", err)
	} else if len(ids) > 0 {
		b.log.Info("Cancelled %d pending order(s) on shutdown", len(ids))
	}
	if err := b.Close(); err != nil {
		b.log.LogError("close", err)
	}
	fmt.Printf("✅ Cleanup completed\n")
}

// Close releases the journal
func (b *LiveBot) Close() error {
	if b.journal != nil {
		return b.journal.Close()
	}
	return nil
}

func cancelOwnPending(ctx context.Context, g exchange.Gateway, owner exchange.Identity) ([]string, error) {
	pending, err := g.PendingOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}
	var cancelled []string
	for _, o := range pending {
		if !owner.Owns(o.Identity) {
			continue
		}
		if err := g.CancelPending(ctx, o.ID); err != nil {
			return cancelled, fmt.Errorf("failed to cancel %s: %w", o.ID, err)
		}
		cancelled = append(cancelled, o.ID)
	}
	return cancelled, nil
}
