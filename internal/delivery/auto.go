package delivery

import (
	"context"
	"sync"
	"time"
)

// AutoStrategy tries SSE first and falls back to polling if the stream
// cannot be established in time or is later lost for good. Polling resumes
// after the last sequence number SSE delivered.
type AutoStrategy struct {
	cfg     Config
	mu      sync.Mutex
	current Strategy
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewAutoStrategy creates a new auto strategy.
func NewAutoStrategy(cfg Config) *AutoStrategy {
	return &AutoStrategy{cfg: cfg.withDefaults()}
}

// Name returns the strategy name.
func (a *AutoStrategy) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil {
		return "auto:" + a.current.Name()
	}
	return "auto"
}

// LastSeq returns the highest sequence number delivered.
func (a *AutoStrategy) LastSeq() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil {
		return a.current.LastSeq()
	}
	return a.cfg.StartAfter
}

// OnReconnect forwards fn to the SSE strategy.
func (a *AutoStrategy) OnReconnect(fn func(ctx context.Context)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil {
		a.current.OnReconnect(fn)
	}
}

// Start begins delivery, trying SSE first then falling back to polling.
func (a *AutoStrategy) Start(ctx context.Context, handler EventHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	sse := NewSSEStrategy(a.cfg)
	if err := sse.Start(ctx, handler); err != nil {
		return a.startPolling(ctx, a.cfg.StartAfter, handler)
	}

	timer := time.NewTimer(a.cfg.SSEConnectionTimeout)
	defer timer.Stop()

	select {
	case <-sse.Connected():
		a.mu.Lock()
		a.current = sse
		a.mu.Unlock()
		a.wg.Add(1)
		go a.watch(ctx, sse, handler)
		return nil
	case <-sse.Done():
	case <-timer.C:
	case <-ctx.Done():
		sse.Stop()
		return ctx.Err()
	}

	sse.Stop()
	a.cfg.Logger.Infof("SSE unavailable, falling back to polling: %v", sse.LastError())
	return a.startPolling(ctx, sse.LastSeq(), handler)
}

// watch switches to polling if the SSE strategy gives up reconnecting.
func (a *AutoStrategy) watch(ctx context.Context, sse *SSEStrategy, handler EventHandler) {
	defer a.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-sse.Done():
	}
	if ctx.Err() != nil {
		return
	}
	a.cfg.Logger.Warningf("SSE lost, falling back to polling: %v", sse.LastError())
	if err := a.startPolling(ctx, sse.LastSeq(), handler); err != nil {
		a.cfg.Logger.Errorf("start polling: %v", err)
	}
}

func (a *AutoStrategy) startPolling(ctx context.Context, after uint64, handler EventHandler) error {
	cfg := a.cfg
	cfg.StartAfter = after
	polling := NewPollingStrategy(cfg)
	if err := polling.Start(ctx, handler); err != nil {
		return err
	}
	a.mu.Lock()
	a.current = polling
	a.mu.Unlock()
	return nil
}

// Stop shuts down whichever strategy is active.
func (a *AutoStrategy) Stop() error {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()

	a.mu.Lock()
	current := a.current
	a.mu.Unlock()
	if current != nil {
		return current.Stop()
	}
	return nil
}
