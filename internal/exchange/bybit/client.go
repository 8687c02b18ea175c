package bybit

import (
	"sync"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
)

const demoBaseURL = "https://api-demo.bybit.com"

// Client wraps the Bybit API client for one symbol traded by one strategy.
// It implements exchange.Venue.
type Client struct {
	httpClient *bybit_api.Client
	testnet    bool
	demo       bool

	category     string
	identity     exchange.Identity
	minStopTicks float64
	retry        RetryConfig
	log          *logger.Logger

	instMu     sync.Mutex
	instrument *InstrumentInfo
}

// Config holds the configuration for the Bybit client
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	Demo       bool   // Demo trading environment
	BaseURL    string // overrides the environment URL when set
	Category   string // "linear" unless set
	Symbol     string
	StrategyID string
	// MinStopTicks is the minimum SL/TP distance from entry in ticks. Bybit
	// publishes no such rule, so it is a configured safety margin.
	MinStopTicks float64
}

// NewClient creates a new Bybit client
func NewClient(config Config, log *logger.Logger) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		switch {
		case config.Demo:
			baseURL = demoBaseURL
		case config.Testnet:
			baseURL = bybit_api.TESTNET
		default:
			baseURL = bybit_api.MAINNET
		}
	}

	httpClient := bybit_api.NewBybitHttpClient(
		config.APIKey,
		config.APISecret,
		bybit_api.WithBaseURL(baseURL),
	)

	category := config.Category
	if category == "" {
		category = "linear"
	}

	return &Client{
		httpClient:   httpClient,
		testnet:      config.Testnet,
		demo:         config.Demo,
		category:     category,
		identity:     exchange.Identity{Symbol: config.Symbol, StrategyID: config.StrategyID},
		minStopTicks: config.MinStopTicks,
		retry:        DefaultRetryConfig(),
		log:          log.With("bybit"),
	}
}

// GetName returns the venue name
func (c *Client) GetName() string {
	return "bybit-" + c.GetEnvironment()
}

// IsTestnet returns whether the client is configured for testnet
func (c *Client) IsTestnet() bool {
	return c.testnet
}

// IsDemo returns whether the client is configured for demo trading
func (c *Client) IsDemo() bool {
	return c.demo
}

// GetEnvironment returns a string describing the current environment
func (c *Client) GetEnvironment() string {
	if c.demo {
		return "demo"
	} else if c.testnet {
		return "testnet"
	}
	return "mainnet"
}

var _ exchange.Venue = (*Client)(nil)
