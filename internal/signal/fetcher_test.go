package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

type flakySource struct {
	failures int32
	calls    atomic.Int32
}

func (s *flakySource) Fetch(ctx context.Context, tf types.Timeframe, after, until time.Time) ([]Record, error) {
	n := s.calls.Add(1)
	if n <= s.failures {
		return nil, errors.New("connection reset")
	}
	return []Record{rec(1, DirectionBuy, WeightHigh)}, nil
}

func TestRetrier_SucceedsAfterFailures(t *testing.T) {
	src := &flakySource{failures: 2}
	r := Retrier{Attempts: 3, Delay: time.Millisecond}

	res := r.Fetch(context.Background(), src, FetchRequest{Timeframe: "15m"})

	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, res.Records, 1)
}

func TestRetrier_GivesUpAsDataSourceError(t *testing.T) {
	src := &flakySource{failures: 10}
	r := Retrier{Attempts: 2, Delay: time.Millisecond}

	res := r.Fetch(context.Background(), src, FetchRequest{Timeframe: "15m"})

	require.Error(t, res.Err)
	assert.True(t, boterrors.Is(res.Err, boterrors.ErrorCategoryDataSource))
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestRetrier_StopsOnCancel(t *testing.T) {
	src := &flakySource{failures: 10}
	r := Retrier{Attempts: 5, Delay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := r.Fetch(ctx, src, FetchRequest{Timeframe: "15m"})

	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 1, res.Attempts)
}

func TestAsyncFetcher_DeliversResults(t *testing.T) {
	src := &flakySource{failures: 1}
	f := NewAsyncFetcher(src, Retrier{Attempts: 2, Delay: time.Millisecond}, 4)

	bar := t0.Add(15 * time.Minute)
	f.Submit(context.Background(), FetchRequest{Timeframe: "15m", BarTime: bar})

	select {
	case res := <-f.Results():
		require.NoError(t, res.Err)
		assert.Equal(t, bar, res.Request.BarTime)
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
	}
	f.Wait()
}

func TestCSVSource_FiltersByTimeframeAndWindow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signals.csv")
	content := fmt.Sprintf("timestamp,timeframe,direction,weight\n%d,15m,BUY,HIGH\n%d,1h,SELL,LOW\n%d,15m,SELL,LOW\n%d,15m,BUY,NONE\n",
		t0.Unix(), t0.Unix(), t0.Add(time.Minute).Unix(), t0.Add(time.Hour).Unix())
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	src := NewCSVSource(path)
	recs, err := src.Fetch(context.Background(), "15m", t0.Add(-time.Second), t0.Add(30*time.Minute))

	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, DirectionBuy, recs[0].Direction)
	assert.Equal(t, WeightHigh, recs[0].Weight)
	assert.Equal(t, DirectionSell, recs[1].Direction)
}

func TestCSVSource_MissingFileIsDataSourceError(t *testing.T) {
	_, err := NewCSVSource("/nonexistent/signals.csv").Fetch(context.Background(), "15m", time.Time{}, t0)
	assert.True(t, boterrors.Is(err, boterrors.ErrorCategoryDataSource))
}

func TestHTTPSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "15m", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		fmt.Fprintf(w, `{"signals":[{"timestamp":%d,"direction":"SELL","weight":"HIGH"}]}`, t0.Unix())
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "BTCUSDT", "secret", time.Second)
	recs, err := src.Fetch(context.Background(), "15m", t0.Add(-time.Minute), t0)

	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, DirectionSell, recs[0].Direction)
}

func TestHTTPSource_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, "BTCUSDT", "", time.Second).Fetch(context.Background(), "15m", t0, t0)
	assert.True(t, boterrors.Is(err, boterrors.ErrorCategoryDataSource))
}
