package delivery

import (
	"context"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/bountymxe/mxe-go/internal/api"
	"github.com/bountymxe/mxe-go/internal/log"
	"github.com/bountymxe/mxe-go/internal/wire"
)

// EventHandler is invoked for each result notification. Returning an error
// does not stop delivery; the error is logged.
type EventHandler func(ctx context.Context, ev *wire.ResultEvent) error

// Strategy defines the interface for notification delivery mechanisms.
// Implementations include PollingStrategy, SSEStrategy, and AutoStrategy.
//
// The typical lifecycle is:
//  1. Create a strategy with NewXxxStrategy(cfg)
//  2. Call Start(ctx, handler) to begin receiving events
//  3. Call Stop() when done to release resources
type Strategy interface {
	// Start begins delivery. It returns once delivery is running; events
	// arrive asynchronously.
	Start(ctx context.Context, handler EventHandler) error

	// Stop shuts down the strategy. After Stop returns no more events are
	// delivered. Stop is idempotent.
	Stop() error

	// Name returns the strategy name for logging and debugging.
	// Examples: "polling", "sse", "auto:sse", "auto:polling"
	Name() string

	// LastSeq returns the highest sequence number delivered.
	LastSeq() uint64

	// OnReconnect sets a callback invoked after each successful SSE
	// connection. Polling strategies never call it.
	OnReconnect(fn func(ctx context.Context))
}

// Config holds configuration shared by all delivery strategies.
type Config struct {
	// APIClient is the gateway client.
	APIClient *api.Client

	// StartAfter is the sequence number after which delivery begins.
	StartAfter uint64

	// PollingInitialInterval is the starting interval between polls.
	// If zero, defaults to DefaultPollingInitialInterval.
	PollingInitialInterval time.Duration

	// PollingMaxBackoff is the maximum interval between polls.
	// If zero, defaults to DefaultPollingMaxBackoff.
	PollingMaxBackoff time.Duration

	// PollingBackoffMultiplier is the factor by which the interval
	// increases after each poll with no new results.
	// If zero, defaults to DefaultPollingBackoffMultiplier.
	PollingBackoffMultiplier float64

	// PollingJitterFactor is the maximum random jitter added to
	// poll intervals (as a fraction of the interval).
	// If zero, defaults to DefaultPollingJitterFactor.
	PollingJitterFactor float64

	// SSEConnectionTimeout is the maximum time to wait for an SSE connection
	// before falling back to polling (when using auto mode).
	// If zero, defaults to DefaultSSEConnectionTimeout.
	SSEConnectionTimeout time.Duration

	// SSEReconnectInterval is the first reconnect delay; later delays double.
	// If zero, defaults to DefaultSSEReconnectInterval.
	SSEReconnectInterval time.Duration

	// SSEMaxReconnectAttempts bounds consecutive failed connections.
	// If zero, defaults to DefaultSSEMaxReconnectAttempts.
	SSEMaxReconnectAttempts int

	// Logger receives delivery events. Output is discarded when nil.
	Logger *logging.Logger
}

// Default configuration values.
const (
	DefaultPollingInitialInterval   = 2 * time.Second
	DefaultPollingMaxBackoff        = 30 * time.Second
	DefaultPollingBackoffMultiplier = 1.5
	DefaultPollingJitterFactor      = 0.3
	DefaultSSEConnectionTimeout     = 5 * time.Second
	DefaultSSEReconnectInterval     = 5 * time.Second
	DefaultSSEMaxReconnectAttempts  = 10
)

func (cfg Config) withDefaults() Config {
	if cfg.PollingInitialInterval <= 0 {
		cfg.PollingInitialInterval = DefaultPollingInitialInterval
	}
	if cfg.PollingMaxBackoff <= 0 {
		cfg.PollingMaxBackoff = DefaultPollingMaxBackoff
	}
	if cfg.PollingBackoffMultiplier <= 0 {
		cfg.PollingBackoffMultiplier = DefaultPollingBackoffMultiplier
	}
	if cfg.PollingJitterFactor <= 0 {
		cfg.PollingJitterFactor = DefaultPollingJitterFactor
	}
	if cfg.SSEConnectionTimeout <= 0 {
		cfg.SSEConnectionTimeout = DefaultSSEConnectionTimeout
	}
	if cfg.SSEReconnectInterval <= 0 {
		cfg.SSEReconnectInterval = DefaultSSEReconnectInterval
	}
	if cfg.SSEMaxReconnectAttempts <= 0 {
		cfg.SSEMaxReconnectAttempts = DefaultSSEMaxReconnectAttempts
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard("delivery")
	}
	return cfg
}

// cursor tracks the delivery position and drops events at or below it, so
// an event replayed after a reconnect or fallback reaches the handler once.
type cursor struct {
	mu      sync.Mutex
	last    uint64
	handler EventHandler
	logger  *logging.Logger
}

func (c *cursor) position() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *cursor) deliver(ctx context.Context, ev *wire.ResultEvent) bool {
	if ev == nil || ev.Result == nil {
		return false
	}
	c.mu.Lock()
	if ev.Seq <= c.last {
		c.mu.Unlock()
		return false
	}
	c.last = ev.Seq
	handler := c.handler
	c.mu.Unlock()

	if handler != nil {
		if err := handler(ctx, ev); err != nil {
			c.logger.Debugf("handler for event %d: %v", ev.Seq, err)
		}
	}
	return true
}
