package delivery

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/bountymxe/mxe-go/internal/api"
)

// PollingStrategy delivers notifications by listing results after the last
// delivered sequence number, with adaptive backoff.
type PollingStrategy struct {
	apiClient *api.Client
	cfg       Config
	logger    *logging.Logger
	cur       *cursor
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	interval  time.Duration
	started   bool
}

// NewPollingStrategy creates a new polling strategy.
func NewPollingStrategy(cfg Config) *PollingStrategy {
	cfg = cfg.withDefaults()
	return &PollingStrategy{
		apiClient: cfg.APIClient,
		cfg:       cfg,
		logger:    cfg.Logger,
		cur:       &cursor{last: cfg.StartAfter, logger: cfg.Logger},
		interval:  cfg.PollingInitialInterval,
	}
}

// Name returns the strategy name.
func (p *PollingStrategy) Name() string {
	return "polling"
}

// LastSeq returns the highest sequence number delivered.
func (p *PollingStrategy) LastSeq() uint64 {
	return p.cur.position()
}

// OnReconnect is a no-op; polling has no persistent connection.
func (p *PollingStrategy) OnReconnect(fn func(ctx context.Context)) {}

// Start begins polling for notifications.
func (p *PollingStrategy) Start(ctx context.Context, handler EventHandler) error {
	if p.apiClient == nil {
		return fmt.Errorf("polling strategy: API client is nil")
	}

	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("polling strategy: already started")
	}
	p.started = true
	p.cur.handler = handler
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.wg.Add(1)
	go p.pollLoop(ctx)
	return nil
}

// Stop shuts down the strategy and waits for the poll loop to exit.
func (p *PollingStrategy) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	return nil
}

func (p *PollingStrategy) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		wait := p.poll(ctx)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// poll fetches and delivers new results and returns the wait before the
// next poll.
func (p *PollingStrategy) poll(ctx context.Context) time.Duration {
	page, err := p.apiClient.ListResults(ctx, p.cur.position())
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Debugf("list results: %v", err)
		}
		return p.backoff()
	}

	delivered := 0
	for i := range page.Results {
		if p.cur.deliver(ctx, &page.Results[i]) {
			delivered++
		}
	}
	if delivered == 0 {
		return p.backoff()
	}

	p.mu.Lock()
	p.interval = p.cfg.PollingInitialInterval
	p.mu.Unlock()
	return p.withJitter(p.cfg.PollingInitialInterval)
}

func (p *PollingStrategy) backoff() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.interval
	next := time.Duration(float64(p.interval) * p.cfg.PollingBackoffMultiplier)
	if next > p.cfg.PollingMaxBackoff {
		next = p.cfg.PollingMaxBackoff
	}
	p.interval = next
	return p.withJitter(current)
}

func (p *PollingStrategy) withJitter(d time.Duration) time.Duration {
	return d + time.Duration(rand.Float64()*p.cfg.PollingJitterFactor*float64(d))
}
