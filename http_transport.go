package mxe

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/bountymxe/mxe-go/internal/api"
	"github.com/bountymxe/mxe-go/internal/delivery"
	"github.com/bountymxe/mxe-go/internal/log"
	"github.com/bountymxe/mxe-go/internal/wire"
)

// DeliveryStrategy specifies how the HTTP transport receives result
// notifications.
type DeliveryStrategy string

const (
	// StrategyAuto tries SSE first, falls back to polling.
	StrategyAuto DeliveryStrategy = "auto"
	// StrategySSE uses Server-Sent Events for push notifications.
	StrategySSE DeliveryStrategy = "sse"
	// StrategyPolling uses periodic API calls with exponential backoff.
	StrategyPolling DeliveryStrategy = "polling"
)

type httpConfig struct {
	apiKey           string
	httpClient       *http.Client
	timeout          time.Duration
	retries          int
	retryDelay       time.Duration
	deliveryStrategy DeliveryStrategy
	pollInterval     time.Duration
	sseTimeout       time.Duration
	logger           *logging.Logger
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*httpConfig)

// WithAPIKey sets the gateway API key.
func WithAPIKey(key string) HTTPOption {
	return func(c *httpConfig) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *httpConfig) {
		c.httpClient = hc
	}
}

// WithHTTPTimeout sets the per-request timeout.
func WithHTTPTimeout(d time.Duration) HTTPOption {
	return func(c *httpConfig) {
		c.timeout = d
	}
}

// WithRetries sets how often idempotent requests are retried. Negative
// disables retries.
func WithRetries(n int) HTTPOption {
	return func(c *httpConfig) {
		c.retries = n
	}
}

// WithRetryDelay sets the first retry delay.
func WithRetryDelay(d time.Duration) HTTPOption {
	return func(c *httpConfig) {
		c.retryDelay = d
	}
}

// WithDeliveryStrategy sets the notification delivery strategy.
func WithDeliveryStrategy(s DeliveryStrategy) HTTPOption {
	return func(c *httpConfig) {
		c.deliveryStrategy = s
	}
}

// WithPollInterval sets the initial polling interval.
func WithPollInterval(d time.Duration) HTTPOption {
	return func(c *httpConfig) {
		c.pollInterval = d
	}
}

// WithSSEConnectionTimeout sets how long StrategyAuto waits for the event
// stream before falling back to polling.
func WithSSEConnectionTimeout(d time.Duration) HTTPOption {
	return func(c *httpConfig) {
		c.sseTimeout = d
	}
}

// WithTransportLogger sets the transport logger.
func WithTransportLogger(l *logging.Logger) HTTPOption {
	return func(c *httpConfig) {
		c.logger = l
	}
}

// HTTPTransport talks to an MXE gateway over HTTP. It implements Transport.
type HTTPTransport struct {
	api    *api.Client
	cfg    *httpConfig
	logger *logging.Logger
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a transport for the gateway at baseURL.
func NewHTTPTransport(baseURL string, opts ...HTTPOption) (*HTTPTransport, error) {
	cfg := &httpConfig{deliveryStrategy: StrategyAuto}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.Discard("transport")
	}

	apiOpts := []api.Option{api.WithAPIKey(cfg.apiKey)}
	if cfg.httpClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(cfg.httpClient))
	}
	if cfg.timeout > 0 {
		apiOpts = append(apiOpts, api.WithTimeout(cfg.timeout))
	}
	if cfg.retries != 0 {
		apiOpts = append(apiOpts, api.WithRetries(cfg.retries))
	}
	if cfg.retryDelay > 0 {
		apiOpts = append(apiOpts, api.WithRetryDelay(cfg.retryDelay))
	}

	switch cfg.deliveryStrategy {
	case StrategyAuto, StrategySSE, StrategyPolling:
	default:
		return nil, fmt.Errorf("unknown delivery strategy %q", cfg.deliveryStrategy)
	}

	client, err := api.New(baseURL, apiOpts...)
	if err != nil {
		return nil, err
	}
	return &HTTPTransport{api: client, cfg: cfg, logger: cfg.logger}, nil
}

// BaseURL returns the gateway URL.
func (t *HTTPTransport) BaseURL() string {
	return t.api.BaseURL()
}

// ClusterKey implements KeyLookup.
func (t *HTTPTransport) ClusterKey(ctx context.Context) ([]byte, error) {
	key, err := t.api.GetClusterKey(ctx)
	return key, wrapError(err)
}

// Submit implements Submitter.
func (t *HTTPTransport) Submit(ctx context.Context, routing Routing, req *SubmittableRequest) (*SubmissionAck, error) {
	ack, err := t.api.SubmitComputation(ctx, routing, req)
	return ack, wrapError(err)
}

// AwaitFinalization implements Finalizer.
func (t *HTTPTransport) AwaitFinalization(ctx context.Context, id CorrelationID) (*Finalization, error) {
	fin, err := t.api.AwaitFinalization(ctx, id)
	return fin, wrapError(err)
}

// Subscribe implements Notifier. Delivery begins after the newest result
// the gateway holds when Subscribe is called; earlier results belong to
// requests this subscriber cannot have made.
func (t *HTTPTransport) Subscribe(ctx context.Context, handler func(*ComputationResult)) (func(), error) {
	page, err := t.api.ListResults(ctx, math.MaxUint64)
	if err != nil {
		return nil, wrapError(err)
	}

	strategy := t.newStrategy(page.Last)
	deliver := func(_ context.Context, ev *wire.ResultEvent) error {
		handler(ev.Result)
		return nil
	}
	if err := strategy.Start(ctx, deliver); err != nil {
		return nil, err
	}
	t.logger.Debugf("subscribed via %s after seq %d", strategy.Name(), page.Last)

	return func() {
		if err := strategy.Stop(); err != nil {
			t.logger.Warningf("stop %s: %v", strategy.Name(), err)
		}
	}, nil
}

func (t *HTTPTransport) newStrategy(after uint64) delivery.Strategy {
	cfg := delivery.Config{
		APIClient:              t.api,
		StartAfter:             after,
		PollingInitialInterval: t.cfg.pollInterval,
		SSEConnectionTimeout:   t.cfg.sseTimeout,
		Logger:                 t.logger,
	}
	switch t.cfg.deliveryStrategy {
	case StrategyPolling:
		return delivery.NewPollingStrategy(cfg)
	case StrategySSE:
		return delivery.NewSSEStrategy(cfg)
	default:
		return delivery.NewAutoStrategy(cfg)
	}
}
