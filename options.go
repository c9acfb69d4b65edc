package mxe

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/op/go-logging.v1"
)

const (
	// DefaultKeyRetries is the number of cluster key lookups per session.
	DefaultKeyRetries = 10
	// DefaultKeyRetryDelay is the wait between cluster key lookups.
	DefaultKeyRetryDelay = 500 * time.Millisecond
	// DefaultTimeout bounds a whole session when the caller sets no
	// deadline of its own.
	DefaultTimeout = 2 * time.Minute
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	logger        *logging.Logger
	circuit       Circuit
	routing       Routing
	keyRetries    int
	keyRetryDelay time.Duration
	timeout       time.Duration
	sleeper       Sleeper
	journalPath   string
	registerer    prometheus.Registerer
}

func defaultConfig() *clientConfig {
	return &clientConfig{
		circuit:       BountyCircuit,
		keyRetries:    DefaultKeyRetries,
		keyRetryDelay: DefaultKeyRetryDelay,
		timeout:       DefaultTimeout,
		sleeper:       SleepContext,
	}
}

// Option configures the client.
type Option func(*clientConfig)

// WithLogger sets the logger for client and session events.
func WithLogger(l *logging.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithCircuit sets the circuit every session invokes. Defaults to
// BountyCircuit.
func WithCircuit(circuit Circuit) Option {
	return func(c *clientConfig) {
		c.circuit = circuit
	}
}

// WithRouting sets the program and cluster identifiers sent with each
// submission. A zero CompDefOffset is filled in from the circuit.
func WithRouting(r Routing) Option {
	return func(c *clientConfig) {
		c.routing = r
	}
}

// WithKeyRetries sets how many times the cluster key is looked up before a
// session fails with ErrKeyUnavailable.
func WithKeyRetries(n int) Option {
	return func(c *clientConfig) {
		c.keyRetries = n
	}
}

// WithKeyRetryDelay sets the wait between cluster key lookups.
func WithKeyRetryDelay(d time.Duration) Option {
	return func(c *clientConfig) {
		c.keyRetryDelay = d
	}
}

// WithTimeout bounds each session. Zero leaves sessions bounded only by
// the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithKeySleeper replaces the wait used between cluster key lookups.
func WithKeySleeper(s Sleeper) Option {
	return func(c *clientConfig) {
		c.sleeper = s
	}
}

// WithJournal records every session in a bbolt journal at path.
func WithJournal(path string) Option {
	return func(c *clientConfig) {
		c.journalPath = path
	}
}

// WithMetrics registers the client's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *clientConfig) {
		c.registerer = reg
	}
}
