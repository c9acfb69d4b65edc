package mxe

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bountymxe/mxe-go/internal/wire"
)

// State is a stage of a computation session.
type State int

const (
	StateIdle State = iota
	StateKeyFetched
	StateSubmitted
	StateAwaitingFinalization
	StateAwaitingNotification
	StateDecrypted
	StateFailed
)

var stateNames = [...]string{
	StateIdle:                 "idle",
	StateKeyFetched:           "key_fetched",
	StateSubmitted:            "submitted",
	StateAwaitingFinalization: "awaiting_finalization",
	StateAwaitingNotification: "awaiting_notification",
	StateDecrypted:            "decrypted",
	StateFailed:               "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether s is Decrypted or Failed.
func (s State) Terminal() bool {
	return s == StateDecrypted || s == StateFailed
}

// Session runs one confidential computation from key fetch to decrypted
// result. A session is single-use; build a new one for every request.
type Session struct {
	client *Client
	used   atomic.Bool

	mu      sync.Mutex
	state   State
	id      CorrelationID
	hasID   bool
	err     error
	started time.Time
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CorrelationID returns the id of the submitted request. It is the zero id
// until the request has been built.
func (s *Session) CorrelationID() CorrelationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Err returns the terminal error of a failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Run encrypts inputs, submits them, waits for finalization and the result
// notification, and returns the decrypted output.
//
// Every failure is a *SessionError. Cancelling ctx abandons the session and
// deregisters its pending request; a ctx deadline fails it with a timeout.
// Calling Run a second time returns ErrSessionUsed.
func (s *Session) Run(ctx context.Context, inputs []uint64) (*Result, error) {
	if !s.used.CompareAndSwap(false, true) {
		return nil, ErrSessionUsed
	}
	c := s.client
	if c.isClosed() {
		return nil, ErrClientClosed
	}

	if c.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.timeout)
		defer cancel()
	}
	s.started = time.Now()

	key, err := FetchClusterKey(ctx, c.transport.ClusterKey, c.cfg.keyRetries, c.cfg.keyRetryDelay,
		WithSleeper(c.cfg.sleeper),
		WithFetchLogger(c.logger),
		withAttemptHook(func(_ int, err error) { c.metrics.keyAttempt(err) }),
	)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	s.transition(StateKeyFetched)

	pending, req, err := BuildRequest(key, inputs, c.cfg.circuit)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	s.bind(pending.CorrelationID)

	outcome, err := c.correlator.Register(pending)
	if err != nil {
		pending.Zero()
		return nil, s.fail(ctx, err)
	}
	// No-op once the outcome has been delivered.
	defer c.correlator.Deregister(pending.CorrelationID)

	ack, err := c.transport.Submit(ctx, c.cfg.routing, req)
	if err != nil {
		return nil, s.fail(ctx, &SubmissionError{CorrelationID: pending.CorrelationID, Err: wrapError(err)})
	}
	pending.SubmittedAt = time.Now()
	s.transition(StateSubmitted)
	c.journalSignature(pending.CorrelationID, ack.Signature)

	s.transition(StateAwaitingFinalization)
	fin, err := c.transport.AwaitFinalization(ctx, pending.CorrelationID)
	if err != nil {
		return nil, s.fail(ctx, fmt.Errorf("await finalization: %w", wrapError(err)))
	}
	switch fin.Status {
	case wire.StatusFinalized:
	case wire.StatusAborted:
		return nil, s.fail(ctx, ErrComputationAborted)
	default:
		return nil, s.fail(ctx, fmt.Errorf("await finalization: unexpected status %q", fin.Status))
	}
	s.transition(StateAwaitingNotification)

	select {
	case out := <-outcome:
		if out.Err != nil {
			return nil, s.fail(ctx, out.Err)
		}
		s.transition(StateDecrypted)
		elapsed := time.Since(s.started)
		c.metrics.finished("", elapsed.Seconds())
		c.logger.Infof("session %s decrypted in %v", pending.CorrelationID, elapsed)
		return &Result{
			CorrelationID:         pending.CorrelationID,
			Values:                out.Values,
			SubmissionSignature:   ack.Signature,
			FinalizationSignature: fin.Signature,
			Elapsed:               elapsed,
		}, nil
	case <-ctx.Done():
		return nil, s.fail(ctx, ctx.Err())
	}
}

func (s *Session) bind(id CorrelationID) {
	s.mu.Lock()
	s.id = id
	s.hasID = true
	state := s.state
	s.mu.Unlock()

	s.client.journalBegin(id, state, s.started)
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	id, hasID := s.id, s.hasID
	s.mu.Unlock()

	c := s.client
	c.metrics.transition(to)
	if hasID {
		c.logger.Debugf("session %s: %s -> %s", id, from, to)
		c.journalTransition(id, to, "", "")
	} else {
		c.logger.Debugf("session: %s -> %s", from, to)
	}
}

// fail moves the session to Failed and builds its terminal error. When ctx
// has ended, the context outcome takes precedence over err, since the
// transport error is then a consequence of the cancellation.
func (s *Session) fail(ctx context.Context, err error) error {
	s.mu.Lock()
	from := s.state
	id, hasID := s.id, s.hasID
	s.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		err = contextError(from.String(), ctxErr)
		if te, ok := err.(*TimeoutError); ok {
			te.Timeout = s.client.cfg.timeout
		}
	}
	reason := classify(err)
	if reason == ReasonInternal && from == StateAwaitingFinalization {
		reason = ReasonFinalization
	}

	serr := &SessionError{State: from, Reason: reason, Err: err}
	if hasID {
		serr.CorrelationID = id
	}

	s.mu.Lock()
	s.state = StateFailed
	s.err = serr
	s.mu.Unlock()

	c := s.client
	c.metrics.transition(StateFailed)
	c.metrics.finished(reason, time.Since(s.started).Seconds())
	if hasID {
		c.journalTransition(id, StateFailed, reason, err.Error())
	}
	if reason.Retryable() {
		c.logger.Warningf("%v", serr)
	} else {
		c.logger.Errorf("%v", serr)
	}
	return serr
}
