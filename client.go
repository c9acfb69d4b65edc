package mxe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/bountymxe/mxe-go/internal/journal"
	"github.com/bountymxe/mxe-go/internal/log"
)

// Client owns one listening scope: a notification subscription and the
// correlator that routes its results to concurrently running sessions.
type Client struct {
	transport  Transport
	cfg        *clientConfig
	logger     *logging.Logger
	correlator *Correlator
	metrics    *metrics
	journal    *journal.Store

	unsubscribe func()
	mu          sync.RWMutex
	closed      bool
}

// New subscribes to result notifications on transport and returns a client
// ready to run sessions.
func New(transport Transport, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.circuit.validate(); err != nil {
		return nil, err
	}
	if cfg.routing.CompDefOffset == 0 {
		cfg.routing.CompDefOffset = cfg.circuit.CompDefOffset()
	}
	if cfg.sleeper == nil {
		cfg.sleeper = SleepContext
	}
	if cfg.logger == nil {
		cfg.logger = log.Discard("mxe")
	}

	m, err := newMetrics(cfg.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	c := &Client{
		transport: transport,
		cfg:       cfg,
		logger:    cfg.logger,
		metrics:   m,
	}
	c.correlator = NewCorrelator(cfg.logger)
	c.correlator.metrics = m

	if cfg.journalPath != "" {
		c.journal, err = journal.Open(cfg.journalPath)
		if err != nil {
			return nil, err
		}
	}

	c.unsubscribe, err = transport.Subscribe(context.Background(), c.handleNotification)
	if err != nil {
		if c.journal != nil {
			c.journal.Close()
		}
		return nil, fmt.Errorf("subscribe to notifications: %w", wrapError(err))
	}

	c.logger.Infof("client ready: circuit=%s program=%q cluster=%q", cfg.circuit.Name, cfg.routing.ProgramID, cfg.routing.ClusterID)
	return c, nil
}

// NewSession returns a fresh single-use session.
func (c *Client) NewSession() (*Session, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	return &Session{client: c}, nil
}

// Run runs inputs through a new session.
func (c *Client) Run(ctx context.Context, inputs []uint64) (*Result, error) {
	s, err := c.NewSession()
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, inputs)
}

// Compute runs the bounty circuit for (effort, quality). The bounty is
// Values[0] of the result.
func (c *Client) Compute(ctx context.Context, effort, quality uint64) (*Result, error) {
	if c.cfg.circuit.InputArity != 2 || c.cfg.circuit.OutputArity != 1 {
		return nil, fmt.Errorf("%w: circuit %s is not a bounty circuit", ErrArityMismatch, c.cfg.circuit.Name)
	}
	return c.Run(ctx, []uint64{effort, quality})
}

// Circuit returns the circuit sessions invoke.
func (c *Client) Circuit() Circuit {
	return c.cfg.circuit
}

// Pending returns the number of requests awaiting a result.
func (c *Client) Pending() int {
	return c.correlator.Len()
}

// History returns up to limit journaled sessions, newest first. It returns
// nil when the client has no journal.
func (c *Client) History(limit int) ([]SessionRecord, error) {
	if c.journal == nil {
		return nil, nil
	}
	recs, err := c.journal.List(limit)
	if err != nil {
		return nil, err
	}
	out := make([]SessionRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, SessionRecord{
			CorrelationID: r.CorrelationID,
			Circuit:       r.Circuit,
			State:         r.State,
			Reason:        r.Reason,
			Error:         r.Error,
			Signature:     r.Signature,
			StartedAt:     r.StartedAt,
			UpdatedAt:     r.UpdatedAt,
		})
	}
	return out, nil
}

// Close unsubscribes from notifications and deregisters every pending
// request. Sessions still waiting fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.unsubscribe()
	c.correlator.Close()

	if c.journal != nil {
		return c.journal.Close()
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// handleNotification is the subscription callback. Unknown ids are dropped
// without disturbing other pending requests.
func (c *Client) handleNotification(res *ComputationResult) {
	if _, err := c.correlator.OnNotification(res); err != nil && !errors.Is(err, ErrUnknownCorrelationID) {
		c.logger.Debugf("notification %s: %v", res.CorrelationID, err)
	}
}

func (c *Client) journalBegin(id CorrelationID, state State, at time.Time) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Begin(id.String(), c.cfg.circuit.Name, state.String(), at); err != nil {
		c.logger.Warningf("journal: %v", err)
	}
}

func (c *Client) journalTransition(id CorrelationID, state State, reason FailureReason, errMsg string) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Transition(id.String(), state.String(), string(reason), errMsg, time.Now()); err != nil {
		c.logger.Warningf("journal: %v", err)
	}
}

func (c *Client) journalSignature(id CorrelationID, sig string) {
	if c.journal == nil || sig == "" {
		return
	}
	if err := c.journal.Update(id.String(), func(r *journal.Record) { r.Signature = sig }); err != nil {
		c.logger.Warningf("journal: %v", err)
	}
}
