package mxe

import (
	"context"
	"errors"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/bountymxe/mxe-go/internal/crypto"
	"github.com/bountymxe/mxe-go/internal/log"
)

// Sleeper waits for d or until ctx is done, whichever comes first. Tests
// substitute a fake clock.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type fetchConfig struct {
	sleep     Sleeper
	logger    *logging.Logger
	onAttempt func(attempt int, err error)
}

// FetchOption configures FetchClusterKey.
type FetchOption func(*fetchConfig)

// WithSleeper replaces the wait between attempts.
func WithSleeper(s Sleeper) FetchOption {
	return func(c *fetchConfig) {
		c.sleep = s
	}
}

// WithFetchLogger logs each failed attempt to l.
func WithFetchLogger(l *logging.Logger) FetchOption {
	return func(c *fetchConfig) {
		c.logger = l
	}
}

func withAttemptHook(fn func(attempt int, err error)) FetchOption {
	return func(c *fetchConfig) {
		c.onAttempt = fn
	}
}

// FetchClusterKey polls lookup up to maxRetries times, waiting retryDelay
// between attempts, and returns the first well-formed key observed.
//
// A lookup error, an empty answer, an all-zero key, and a key of the wrong
// length each count as one unavailable attempt. There is no wait after the
// final attempt. Exhaustion returns a *KeyUnavailableError, which callers
// must surface rather than retry in a loop. If ctx ends first the error
// matches ErrTimeout or ErrAborted. Values of maxRetries below one are
// treated as one.
func FetchClusterKey(ctx context.Context, lookup KeyLookupFunc, maxRetries int, retryDelay time.Duration, opts ...FetchOption) (PublicKey, error) {
	cfg := &fetchConfig{sleep: SleepContext}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.Discard("keyfetch")
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	var (
		zero    PublicKey
		lastErr error
	)
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, contextError("cluster key fetch", err)
		}

		key, err := lookupOnce(ctx, lookup)
		if cfg.onAttempt != nil {
			cfg.onAttempt(attempt, err)
		}
		if err == nil {
			if attempt > 1 {
				cfg.logger.Debugf("cluster key available after %d attempts", attempt)
			}
			return key, nil
		}
		if ctx.Err() != nil {
			return zero, contextError("cluster key fetch", ctx.Err())
		}
		if err != errKeyNotPublished {
			lastErr = err
		}
		cfg.logger.Warningf("cluster key attempt %d/%d: %v", attempt, maxRetries, err)

		if attempt < maxRetries {
			if err := cfg.sleep(ctx, retryDelay); err != nil {
				return zero, contextError("cluster key fetch", err)
			}
		}
	}

	return zero, &KeyUnavailableError{Attempts: maxRetries, LastErr: lastErr}
}

// errKeyNotPublished marks an attempt that found no key yet.
var errKeyNotPublished = errors.New("key not yet published")

func lookupOnce(ctx context.Context, lookup KeyLookupFunc) (PublicKey, error) {
	var zero PublicKey
	raw, err := lookup(ctx)
	if err != nil {
		return zero, wrapError(err)
	}
	if len(raw) == 0 {
		return zero, errKeyNotPublished
	}
	key, err := crypto.PublicKeyFromBytes(raw)
	if err != nil {
		return zero, err
	}
	if key.IsZero() {
		return zero, errKeyNotPublished
	}
	return key, nil
}
