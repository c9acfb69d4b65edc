package delivery

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/bountymxe/mxe-go/internal/api"
	"github.com/bountymxe/mxe-go/internal/wire"
)

// SSEStrategy delivers notifications over a Server-Sent Events stream,
// reconnecting with exponential backoff and resuming after the last
// delivered sequence number.
type SSEStrategy struct {
	apiClient   *api.Client
	cfg         Config
	logger      *logging.Logger
	cur         *cursor
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
	attempts    int
	started     bool
	lastError   error
	onReconnect func(ctx context.Context)

	connected     chan struct{} // closed when the first connection is established
	connectedOnce sync.Once
	done          chan struct{} // closed when the connect loop exits
}

// NewSSEStrategy creates a new SSE strategy.
func NewSSEStrategy(cfg Config) *SSEStrategy {
	cfg = cfg.withDefaults()
	return &SSEStrategy{
		apiClient: cfg.APIClient,
		cfg:       cfg,
		logger:    cfg.Logger,
		cur:       &cursor{last: cfg.StartAfter, logger: cfg.Logger},
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Name returns the strategy name.
func (s *SSEStrategy) Name() string {
	return "sse"
}

// Connected returns a channel that's closed when the SSE connection is established.
func (s *SSEStrategy) Connected() <-chan struct{} {
	return s.connected
}

// Done returns a channel that's closed when the strategy stops delivering,
// either because Stop was called or because reconnects were exhausted.
func (s *SSEStrategy) Done() <-chan struct{} {
	return s.done
}

// LastError returns the last connection error, if any.
func (s *SSEStrategy) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// LastSeq returns the highest sequence number delivered.
func (s *SSEStrategy) LastSeq() uint64 {
	return s.cur.position()
}

// OnReconnect sets a callback run after every successful connection.
func (s *SSEStrategy) OnReconnect(fn func(ctx context.Context)) {
	s.mu.Lock()
	s.onReconnect = fn
	s.mu.Unlock()
}

// Start begins listening for notifications.
func (s *SSEStrategy) Start(ctx context.Context, handler EventHandler) error {
	if s.apiClient == nil {
		return fmt.Errorf("SSE strategy: API client is nil")
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("SSE strategy: already started")
	}
	s.started = true
	s.cur.handler = handler
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.connectLoop(ctx)
	return nil
}

// Stop shuts down the strategy and waits for the connection loop to exit.
func (s *SSEStrategy) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *SSEStrategy) connectLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.done)

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.connect(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("stream closed by server")
		}
		s.mu.Lock()
		s.lastError = err
		s.attempts++
		attempts := s.attempts
		s.mu.Unlock()

		if attempts >= s.cfg.SSEMaxReconnectAttempts {
			s.logger.Warningf("giving up after %d attempts: %v", attempts, err)
			return
		}

		wait := s.cfg.SSEReconnectInterval * time.Duration(1<<(attempts-1))
		s.logger.Debugf("reconnecting in %v: %v", wait, err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *SSEStrategy) connect(ctx context.Context) error {
	resp, err := s.apiClient.OpenEventStream(ctx, s.cur.position())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	s.mu.Lock()
	s.attempts = 0
	onReconnect := s.onReconnect
	s.mu.Unlock()

	s.connectedOnce.Do(func() {
		close(s.connected)
	})
	if onReconnect != nil {
		onReconnect(ctx)
	}

	var (
		id   string
		data strings.Builder
	)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			// Blank line dispatches the buffered event.
			if data.Len() > 0 {
				s.dispatch(ctx, id, data.String())
			}
			id = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id:"):
			id = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}

func (s *SSEStrategy) dispatch(ctx context.Context, id, data string) {
	seq, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		s.logger.Debugf("skipping event without sequence number")
		return
	}
	res := new(wire.ComputationResult)
	if err := json.Unmarshal([]byte(data), res); err != nil {
		s.logger.Debugf("skipping malformed event %d: %v", seq, err)
		return
	}
	s.cur.deliver(ctx, &wire.ResultEvent{Seq: seq, Result: res})
}
