package cluster

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/bountymxe/mxe-go/internal/crypto"
	"github.com/bountymxe/mxe-go/internal/log"
	"github.com/bountymxe/mxe-go/internal/wire"
)

var (
	// ErrUnknownCircuit is returned for a routing offset with no circuit.
	ErrUnknownCircuit = errors.New("cluster: unknown circuit")
	// ErrInvalidRequest is returned when a request cannot be decrypted or
	// does not match its circuit.
	ErrInvalidRequest = errors.New("cluster: invalid request")
	// ErrDuplicate is returned when a correlation id is already queued.
	ErrDuplicate = errors.New("cluster: duplicate correlation id")
	// ErrUnknownComputation is returned for an id that was never submitted.
	ErrUnknownComputation = errors.New("cluster: unknown computation")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("cluster: closed")
)

// Fault alters how the next submitted computation is processed.
type Fault uint32

const (
	// FaultTamper flips a bit of the sealed result.
	FaultTamper Fault = 1 << iota
	// FaultDrop finalizes the computation but never notifies.
	FaultDrop
	// FaultDuplicate notifies twice.
	FaultDuplicate
	// FaultForeign precedes the notification with one for an id nobody
	// submitted.
	FaultForeign
	// FaultAbort aborts the computation instead of executing it.
	FaultAbort
	// FaultWrongNonce notifies with a nonce other than the sealing nonce.
	FaultWrongNonce
)

// Config configures a Cluster.
type Config struct {
	// PublishAfter is the number of key lookups answered with "not yet
	// published" before the key becomes visible.
	PublishAfter int
	// Circuits are the executable instructions. Defaults to Bounty.
	Circuits []Circuit
	// ExecDelay is the time between submission and finalization.
	ExecDelay time.Duration
	// NotifyDelay is the time between finalization and notification.
	NotifyDelay time.Duration
	// Keypair fixes the cluster key. A fresh key is generated when nil.
	Keypair *crypto.Keypair
	// Logger receives cluster events. Output is discarded when nil.
	Logger *logging.Logger
}

type computation struct {
	id        wire.CorrelationID
	circuit   string
	inputs    []uint64
	status    wire.FinalizationStatus
	signature string
	done      chan struct{}
}

// Cluster is a simulated MXE. It is safe for concurrent use.
type Cluster struct {
	cfg      Config
	keypair  *crypto.Keypair
	logger   *logging.Logger
	circuits map[uint32]Circuit

	mu      sync.Mutex
	lookups int
	comps   map[wire.CorrelationID]*computation
	faults  []Fault
	events  []wire.ResultEvent
	changed chan struct{}
	closed  bool

	subMu   sync.RWMutex
	subs    map[uint64]func(*wire.ComputationResult)
	nextSub uint64

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a cluster.
func New(cfg Config) (*Cluster, error) {
	if len(cfg.Circuits) == 0 {
		cfg.Circuits = []Circuit{Bounty()}
	}
	circuits := make(map[uint32]Circuit, len(cfg.Circuits))
	for _, ci := range cfg.Circuits {
		if ci.InputArity <= 0 || ci.OutputArity != 1 || ci.Eval == nil {
			return nil, fmt.Errorf("cluster: circuit %q must take inputs and produce one output", ci.Name)
		}
		if _, ok := circuits[ci.Offset()]; ok {
			return nil, fmt.Errorf("cluster: circuit %q collides with another offset", ci.Name)
		}
		circuits[ci.Offset()] = ci
	}

	kp := cfg.Keypair
	if kp == nil {
		var err error
		if kp, err = crypto.GenerateKeypair(); err != nil {
			return nil, err
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard("cluster")
	}

	return &Cluster{
		cfg:      cfg,
		keypair:  kp,
		logger:   logger,
		circuits: circuits,
		comps:    make(map[wire.CorrelationID]*computation),
		changed:  make(chan struct{}),
		subs:     make(map[uint64]func(*wire.ComputationResult)),
		stop:     make(chan struct{}),
	}, nil
}

// PublicKey returns the cluster key regardless of publication state.
func (c *Cluster) PublicKey() crypto.PublicKey {
	return c.keypair.PublicKey
}

// Lookups returns how many times ClusterKey has been called.
func (c *Cluster) Lookups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookups
}

// Inject queues f for the next submission. Each submission consumes one
// queued fault set.
func (c *Cluster) Inject(f Fault) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = append(c.faults, f)
}

// Inputs returns the decrypted inputs of a submitted computation.
func (c *Cluster) Inputs(id wire.CorrelationID) ([]uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	comp, ok := c.comps[id]
	if !ok {
		return nil, false
	}
	return append([]uint64(nil), comp.inputs...), true
}

// ClusterKey returns the raw public key, or nil until PublishAfter lookups
// have been made.
func (c *Cluster) ClusterKey(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	c.lookups++
	if c.lookups <= c.cfg.PublishAfter {
		return nil, nil
	}
	pub := c.keypair.PublicKey
	return pub[:], nil
}

// Submit decrypts req, queues its execution, and acknowledges it.
func (c *Cluster) Submit(ctx context.Context, routing wire.Routing, req *wire.SubmittableRequest) (*wire.SubmissionAck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}
	circuit, ok := c.circuits[routing.CompDefOffset]
	if !ok {
		return nil, fmt.Errorf("%w: offset %d", ErrUnknownCircuit, routing.CompDefOffset)
	}
	if req.Arity() != circuit.InputArity {
		return nil, fmt.Errorf("%w: %s takes %d inputs, got %d: %w", ErrInvalidRequest, circuit.Name, circuit.InputArity, req.Arity(), crypto.ErrArityMismatch)
	}

	secret, err := c.keypair.Agree(req.EphemeralPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	cipher, err := crypto.FromSecret(secret)
	if err != nil {
		return nil, err
	}
	inputs, err := cipher.Decrypt(req.CiphertextBlocks, req.Nonce, circuit.InputArity)
	if err != nil {
		cipher.Zero()
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cipher.Zero()
		return nil, ErrClosed
	}
	if _, ok := c.comps[req.CorrelationID]; ok {
		c.mu.Unlock()
		cipher.Zero()
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, req.CorrelationID)
	}
	var fault Fault
	if len(c.faults) > 0 {
		fault, c.faults = c.faults[0], c.faults[1:]
	}
	comp := &computation{
		id:      req.CorrelationID,
		circuit: circuit.Name,
		inputs:  inputs,
		status:  wire.StatusPending,
		done:    make(chan struct{}),
	}
	c.comps[comp.id] = comp
	c.wg.Add(1)
	c.mu.Unlock()

	go c.execute(comp, circuit, cipher, fault)

	c.logger.Debugf("queued %s for %s (faults=%#x)", comp.id, circuit.Name, uint32(fault))
	return &wire.SubmissionAck{
		CorrelationID: comp.id,
		Signature:     signature("submit", comp.id[:], req.Nonce[:]),
		QueuedAt:      time.Now().UTC(),
	}, nil
}

// AwaitFinalization blocks until the computation leaves the pending state.
func (c *Cluster) AwaitFinalization(ctx context.Context, id wire.CorrelationID) (*wire.Finalization, error) {
	comp, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-comp.done:
		return c.finalization(comp), nil
	case <-c.stop:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Finalization returns the computation's status, waiting up to wait for it
// to leave the pending state.
func (c *Cluster) Finalization(ctx context.Context, id wire.CorrelationID, wait time.Duration) (*wire.Finalization, error) {
	comp, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-comp.done:
		case <-timer.C:
		case <-c.stop:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c.finalization(comp), nil
}

// Subscribe registers handler for every notification published from now
// on. The returned function unsubscribes; once it returns, handler is not
// called again. handler must not call it.
func (c *Cluster) Subscribe(ctx context.Context, handler func(*wire.ComputationResult)) (func(), error) {
	if handler == nil {
		return nil, fmt.Errorf("cluster: nil handler")
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	c.subMu.Lock()
	c.nextSub++
	key := c.nextSub
	c.subs[key] = handler
	c.subMu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, key)
			c.subMu.Unlock()
		})
	}
	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				unsubscribe()
			case <-c.stop:
			}
		}()
	}
	return unsubscribe, nil
}

// Events returns the published notifications with a sequence number
// greater than after, the highest sequence number, and a channel closed at
// the next publication.
func (c *Cluster) Events(after uint64) ([]wire.ResultEvent, uint64, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	last := uint64(len(c.events))
	if after >= last {
		return nil, last, c.changed
	}
	out := make([]wire.ResultEvent, last-after)
	copy(out, c.events[after:])
	return out, last, c.changed
}

// Close stops every in-flight computation and wipes the cluster key.
func (c *Cluster) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.stop)
	c.mu.Unlock()

	c.wg.Wait()
	c.keypair.Zero()
}

func (c *Cluster) execute(comp *computation, circuit Circuit, cipher *crypto.Cipher, fault Fault) {
	defer c.wg.Done()
	defer cipher.Zero()

	if !c.sleep(c.cfg.ExecDelay) {
		return
	}

	if fault&FaultAbort != 0 {
		c.finalize(comp, wire.StatusAborted)
		return
	}
	outputs, err := circuit.Eval(comp.inputs)
	if err != nil {
		c.logger.Warningf("%s aborted: %v", comp.id, err)
		c.finalize(comp, wire.StatusAborted)
		return
	}

	nonce, err := crypto.NewNonce()
	if err != nil {
		c.logger.Errorf("%s: %v", comp.id, err)
		c.finalize(comp, wire.StatusAborted)
		return
	}
	blocks, err := cipher.Encrypt(outputs, nonce)
	if err != nil {
		c.logger.Errorf("%s: %v", comp.id, err)
		c.finalize(comp, wire.StatusAborted)
		return
	}
	res := &wire.ComputationResult{
		CorrelationID:    comp.id,
		ResultCiphertext: blocks[0],
		ResultNonce:      nonce,
	}
	if fault&FaultTamper != 0 {
		res.ResultCiphertext[0] ^= 0x01
	}
	if fault&FaultWrongNonce != 0 {
		if res.ResultNonce, err = crypto.NewNonce(); err != nil {
			c.logger.Errorf("%s: %v", comp.id, err)
		}
	}

	c.finalize(comp, wire.StatusFinalized)
	if !c.sleep(c.cfg.NotifyDelay) {
		return
	}

	if fault&FaultDrop != 0 {
		c.logger.Debugf("%s: dropping notification", comp.id)
		return
	}
	if fault&FaultForeign != 0 {
		if foreign, err := foreignResult(); err == nil {
			c.publish(foreign)
		}
	}
	c.publish(res)
	if fault&FaultDuplicate != 0 {
		dup := *res
		c.publish(&dup)
	}
}

func (c *Cluster) finalize(comp *computation, status wire.FinalizationStatus) {
	c.mu.Lock()
	comp.status = status
	comp.signature = signature("finalize", comp.id[:], []byte(status))
	c.mu.Unlock()
	close(comp.done)
	c.logger.Debugf("%s %s", comp.id, status)
}

func (c *Cluster) publish(res *wire.ComputationResult) {
	c.mu.Lock()
	seq := uint64(len(c.events)) + 1
	c.events = append(c.events, wire.ResultEvent{Seq: seq, Result: res})
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()

	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, h := range c.subs {
		h(res)
	}
}

func (c *Cluster) lookup(id wire.CorrelationID) (*computation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	comp, ok := c.comps[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComputation, id)
	}
	return comp, nil
}

func (c *Cluster) finalization(comp *computation) *wire.Finalization {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &wire.Finalization{
		CorrelationID: comp.id,
		Status:        comp.status,
		Signature:     comp.signature,
	}
}

func (c *Cluster) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-c.stop:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.stop:
		return false
	}
}

func foreignResult() (*wire.ComputationResult, error) {
	res := new(wire.ComputationResult)
	if err := crypto.RandomBytes(res.CorrelationID[:]); err != nil {
		return nil, err
	}
	if err := crypto.RandomBytes(res.ResultCiphertext[:]); err != nil {
		return nil, err
	}
	if err := crypto.RandomBytes(res.ResultNonce[:]); err != nil {
		return nil, err
	}
	return res, nil
}

func signature(kind string, parts ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	for _, p := range parts {
		h.Write(p)
	}
	return "sim_" + hex.EncodeToString(h.Sum(nil)[:16])
}
