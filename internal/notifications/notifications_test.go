package notifications

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/confluence-bot/internal/confirmation"
	"github.com/ducminhle1904/confluence-bot/internal/lifecycle"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
	"github.com/ducminhle1904/confluence-bot/internal/orders"
	"github.com/ducminhle1904/confluence-bot/internal/risk"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

type captured struct {
	mu     sync.Mutex
	alerts []alert
}

func (c *captured) SendAlert(_ context.Context, level, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert{level: level, message: message})
	return nil
}

func (c *captured) all() []alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]alert(nil), c.alerts...)
}

func TestTelegramNotifier_PostsMessage(t *testing.T) {
	type form struct{ path, chat, text string }
	got := make(chan form, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		got <- form{r.URL.Path, r.PostForm.Get("chat_id"), r.PostForm.Get("text")}
	}))
	defer srv.Close()

	n := NewTelegramNotifier("tok", "42", "Confluence Bot")
	n.baseURL = srv.URL
	require.NoError(t, n.SendAlert(context.Background(), LevelError, "halted"))

	f := <-got
	assert.Equal(t, "/bottok/sendMessage", f.path)
	assert.Equal(t, "42", f.chat)
	assert.Contains(t, f.text, "🚨 *Confluence Bot*")
	assert.Contains(t, f.text, "halted")
}

func TestTelegramNotifier_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("tok", "42", "x")
	n.baseURL = srv.URL
	assert.ErrorContains(t, n.SendAlert(context.Background(), LevelInfo, "hi"), "403")
}

func TestAlerter_DeliversTransitions(t *testing.T) {
	sink := &captured{}
	a := NewAlerter(sink, "BTCUSDT", 8, logger.Nop())

	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	a.RiskEvaluated(now, risk.RiskState{DailyStartBalance: 10000}, risk.Verdict{DailyHaltTripped: true, DailyLossPercent: 5.5})
	a.RiskEvaluated(now, risk.RiskState{}, risk.Verdict{Admit: true}) // nothing happened
	a.OrderPlaced(now, confirmation.Decision{Direction: types.SideBuy, Timeframe: "15m"}, orders.Placement{}, orders.ErrStopTooClose)
	a.PositionManaged(now, lifecycle.Action{Kind: lifecycle.ActionTrailing})
	a.PositionManaged(now, lifecycle.Action{Kind: lifecycle.ActionBreakeven, Err: errors.New("x")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	require.Eventually(t, func() bool { return len(sink.all()) == 3 }, 5*time.Second, 10*time.Millisecond)
	got := sink.all()
	assert.Equal(t, LevelError, got[0].level)
	assert.Contains(t, got[0].message, "`BTCUSDT` Daily loss halt: 5.50%")
	assert.Equal(t, LevelWarning, got[1].level)
	assert.Contains(t, got[2].message, "breakeven")
}

func TestAlerter_DropsWhenQueueFull(t *testing.T) {
	sink := &captured{}
	a := NewAlerter(sink, "BTCUSDT", 1, logger.Nop())
	v := risk.Verdict{Resumed: true}
	a.RiskEvaluated(time.Now(), risk.RiskState{}, v)
	a.RiskEvaluated(time.Now(), risk.RiskState{}, v)
	assert.Len(t, a.queue, 1)
}
