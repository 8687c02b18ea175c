package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	boterrors "github.com/ducminhle1904/confluence-bot/internal/errors"
	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// HTTPSource polls a remote signal endpoint:
//
//	GET <url>?symbol=BTCUSDT&timeframe=15m&after=<unix>&until=<unix>
//
// answering {"signals":[{"timestamp":1700000000,"direction":"BUY","weight":"HIGH"}]}.
// Calls go through a circuit breaker so a dead endpoint fails fast.
type HTTPSource struct {
	baseURL string
	symbol  string
	token   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

type httpSignal struct {
	Timestamp int64  `json:"timestamp"`
	Direction string `json:"direction"`
	Weight    string `json:"weight"`
}

type httpSignalResponse struct {
	Signals []httpSignal `json:"signals"`
}

// NewHTTPSource creates a remote source. token, when set, is sent as a
// bearer token.
func NewHTTPSource(baseURL, symbol, token string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	st := gobreaker.Settings{
		Name:     "signal-http",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &HTTPSource{
		baseURL: baseURL,
		symbol:  symbol,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, tf types.Timeframe, after, until time.Time) ([]Record, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.fetch(ctx, tf, after, until)
	})
	if err != nil {
		return nil, boterrors.NewDataSourceError("signal", "http fetch", err).WithContext("timeframe", tf.String())
	}
	return res.([]Record), nil
}

func (s *HTTPSource) fetch(ctx context.Context, tf types.Timeframe, after, until time.Time) ([]Record, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid signal url: %w", err)
	}
	q := u.Query()
	q.Set("symbol", s.symbol)
	q.Set("timeframe", tf.String())
	q.Set("after", strconv.FormatInt(after.Unix(), 10))
	q.Set("until", strconv.FormatInt(until.Unix(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("signal endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var payload httpSignalResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode signals: %w", err)
	}

	out := make([]Record, 0, len(payload.Signals))
	for _, raw := range payload.Signals {
		dir, err := ParseDirection(raw.Direction)
		if err != nil {
			return nil, err
		}
		weight, err := ParseWeight(raw.Weight)
		if err != nil {
			return nil, err
		}
		ts := time.Unix(raw.Timestamp, 0).UTC()
		if raw.Timestamp > 1e12 {
			ts = time.UnixMilli(raw.Timestamp).UTC()
		}
		if !ts.After(after) || ts.After(until) {
			continue
		}
		out = append(out, Record{Timestamp: ts, Direction: dir, Weight: weight})
	}
	return out, nil
}
