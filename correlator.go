package mxe

import (
	"fmt"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/bountymxe/mxe-go/internal/log"
)

// Outcome is the result of correlating a notification with a pending
// request: decrypted values, or the error that prevented decryption.
type Outcome struct {
	Values []uint64
	Err    error
}

type pendingEntry struct {
	req *PendingRequest
	out chan Outcome
}

// Correlator matches asynchronously delivered results to the pending
// requests that produced them. It holds at most one pending request per
// correlation id and is scoped to the listening context that owns it.
//
// Registration of an id that is already pending is rejected with
// ErrDuplicateCorrelationID; the existing request is left untouched.
type Correlator struct {
	mu      sync.Mutex
	pending map[CorrelationID]*pendingEntry
	closed  bool

	logger  *logging.Logger
	metrics *metrics
}

// NewCorrelator returns an empty correlator. A nil logger discards output.
func NewCorrelator(logger *logging.Logger) *Correlator {
	if logger == nil {
		logger = log.Discard("correlator")
	}
	return &Correlator{
		pending: make(map[CorrelationID]*pendingEntry),
		logger:  logger,
	}
}

// Register records req and returns the channel on which its single outcome
// will be delivered. The channel is buffered so delivery never blocks.
func (c *Correlator) Register(req *PendingRequest) (<-chan Outcome, error) {
	if req == nil || req.cipher == nil {
		return nil, fmt.Errorf("register: incomplete pending request")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if _, ok := c.pending[req.CorrelationID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateCorrelationID, req.CorrelationID)
	}

	e := &pendingEntry{req: req, out: make(chan Outcome, 1)}
	c.pending[req.CorrelationID] = e
	c.metrics.setPending(len(c.pending))
	return e.out, nil
}

// Deregister removes the pending request for id and wipes its cipher. It
// reports whether a request was pending. A notification arriving later for
// id is treated as unknown.
func (c *Correlator) Deregister(id CorrelationID) bool {
	e := c.take(id)
	if e == nil {
		return false
	}
	e.req.Zero()
	return true
}

// OnNotification correlates res with its pending request, decrypts it, and
// removes the request. Each id is consumed at most once: removal happens
// under the lock before decryption, so a concurrent or repeated
// notification for the same id gets ErrUnknownCorrelationID.
//
// A result that fails authentication still consumes the request; the
// owning session fails with ErrAuthenticationFailure rather than waiting
// for a second, possibly forged, notification.
func (c *Correlator) OnNotification(res *ComputationResult) ([]uint64, error) {
	if res == nil {
		return nil, fmt.Errorf("nil notification")
	}

	e := c.take(res.CorrelationID)
	if e == nil {
		c.logger.Debugf("dropping notification for unknown id %s", res.CorrelationID)
		c.metrics.notification("unknown")
		return nil, fmt.Errorf("%w: %s", ErrUnknownCorrelationID, res.CorrelationID)
	}

	values, err := e.req.Decrypt(res)
	e.req.Zero()
	if err != nil {
		c.logger.Warningf("result for %s rejected: %v", res.CorrelationID, err)
		c.metrics.notification("rejected")
	} else {
		c.metrics.notification("matched")
	}

	e.out <- Outcome{Values: values, Err: err}
	return values, err
}

// Len returns the number of pending requests.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close deregisters every pending request, waking their waiters with
// ErrClientClosed. Later registrations fail.
func (c *Correlator) Close() {
	c.mu.Lock()
	entries := c.pending
	c.pending = make(map[CorrelationID]*pendingEntry)
	c.closed = true
	c.metrics.setPending(0)
	c.mu.Unlock()

	for _, e := range entries {
		e.req.Zero()
		e.out <- Outcome{Err: ErrClientClosed}
	}
}

func (c *Correlator) take(id CorrelationID) *pendingEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	c.metrics.setPending(len(c.pending))
	return e
}
