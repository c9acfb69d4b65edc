package mxe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bountymxe/mxe-go/internal/api"
	"github.com/bountymxe/mxe-go/internal/crypto"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrInvalidPeerKey is returned when the cluster public key is not a
	// usable X25519 point.
	ErrInvalidPeerKey = crypto.ErrInvalidPeerKey

	// ErrAuthenticationFailure is returned when a result was tampered with or
	// was sealed under a different secret or nonce. Never retry with the
	// same inputs.
	ErrAuthenticationFailure = crypto.ErrAuthenticationFailure

	// ErrArityMismatch is returned when the number of values or blocks does
	// not match the circuit definition.
	ErrArityMismatch = crypto.ErrArityMismatch

	// ErrKeyUnavailable is returned when the cluster key was not published
	// within the configured number of attempts.
	ErrKeyUnavailable = errors.New("cluster public key unavailable")

	// ErrSubmission is returned when the gateway rejects or fails to accept
	// a computation.
	ErrSubmission = errors.New("submission failed")

	// ErrUnknownCorrelationID is returned for notifications that match no
	// pending request. They are stale, duplicated, or belong to another
	// listener.
	ErrUnknownCorrelationID = errors.New("unknown correlation id")

	// ErrDuplicateCorrelationID is returned when a pending request is
	// registered under an id that is already pending.
	ErrDuplicateCorrelationID = errors.New("duplicate correlation id")

	// ErrTimeout is returned when a caller deadline elapses before the
	// result is decrypted.
	ErrTimeout = errors.New("timed out")

	// ErrAborted is returned when the caller cancels a session.
	ErrAborted = errors.New("session abandoned")

	// ErrComputationAborted is returned when the cluster reports that it
	// aborted the computation.
	ErrComputationAborted = errors.New("computation aborted by cluster")

	// ErrSessionUsed is returned when Run is called on a session that has
	// already run.
	ErrSessionUsed = errors.New("session already used")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrRateLimited is returned when the gateway rate limit is exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// MXEError is implemented by all SDK errors.
type MXEError interface {
	error
	MXEError() // marker method
}

// FailureReason classifies a terminal session failure.
type FailureReason string

const (
	ReasonKeyUnavailable     FailureReason = "key_unavailable"
	ReasonInvalidPeerKey     FailureReason = "invalid_peer_key"
	ReasonSubmission         FailureReason = "submission_error"
	ReasonFinalization       FailureReason = "finalization_error"
	ReasonAuthentication     FailureReason = "authentication_failure"
	ReasonArityMismatch      FailureReason = "arity_mismatch"
	ReasonComputationAborted FailureReason = "computation_aborted"
	ReasonTimeout            FailureReason = "timeout"
	ReasonAborted            FailureReason = "aborted"
	ReasonInternal           FailureReason = "internal"
)

// Retryable reports whether a new session with fresh key material may
// succeed where this one failed.
func (r FailureReason) Retryable() bool {
	return r == ReasonKeyUnavailable || r == ReasonTimeout
}

// APIError represents an HTTP error from the MXE gateway.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string // if returned by server
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		if e.Message != "" {
			return fmt.Sprintf("API error %d: %s (request_id: %s)", e.StatusCode, e.Message, e.RequestID)
		}
		return fmt.Sprintf("API error %d (request_id: %s)", e.StatusCode, e.RequestID)
	}
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// MXEError implements the MXEError interface.
func (e *APIError) MXEError() {}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 409:
		return target == ErrDuplicateCorrelationID
	case 429:
		return target == ErrRateLimited
	}
	return false
}

// NetworkError represents a network-level failure.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// MXEError implements the MXEError interface.
func (e *NetworkError) MXEError() {}

// KeyUnavailableError is returned when cluster key polling is exhausted.
type KeyUnavailableError struct {
	Attempts int
	LastErr  error
}

func (e *KeyUnavailableError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("cluster public key unavailable after %d attempts: %v", e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("cluster public key unavailable after %d attempts", e.Attempts)
}

// Unwrap returns the last lookup error, if any.
func (e *KeyUnavailableError) Unwrap() error {
	return e.LastErr
}

// Is implements errors.Is for sentinel error matching.
func (e *KeyUnavailableError) Is(target error) bool {
	return target == ErrKeyUnavailable
}

// MXEError implements the MXEError interface.
func (e *KeyUnavailableError) MXEError() {}

// SubmissionError wraps a failure to queue a computation.
type SubmissionError struct {
	CorrelationID CorrelationID
	Err           error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit computation %s: %v", e.CorrelationID, e.Err)
}

// Unwrap returns the underlying error.
func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *SubmissionError) Is(target error) bool {
	return target == ErrSubmission
}

// MXEError implements the MXEError interface.
func (e *SubmissionError) MXEError() {}

// TimeoutError represents an operation that exceeded its deadline.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s timed out after %v", e.Operation, e.Timeout)
	}
	return fmt.Sprintf("%s timed out", e.Operation)
}

// Is implements errors.Is for sentinel error matching.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout || target == context.DeadlineExceeded
}

// MXEError implements the MXEError interface.
func (e *TimeoutError) MXEError() {}

// SessionError is the terminal error of a failed session. It records the
// state the session was in when it failed and whether a new session may
// be attempted.
type SessionError struct {
	CorrelationID CorrelationID
	State         State
	Reason        FailureReason
	Err           error
}

func (e *SessionError) Error() string {
	var zero CorrelationID
	if e.CorrelationID == zero {
		return fmt.Sprintf("session failed in %s (%s): %v", e.State, e.Reason, e.Err)
	}
	return fmt.Sprintf("session %s failed in %s (%s): %v", e.CorrelationID, e.State, e.Reason, e.Err)
}

// Unwrap returns the underlying error.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may start a new session for the same
// inputs. Only key unavailability and timeouts qualify.
func (e *SessionError) Retryable() bool {
	return e.Reason.Retryable()
}

// MXEError implements the MXEError interface.
func (e *SessionError) MXEError() {}

// IsRetryable reports whether err is a failure that a fresh session may
// overcome.
func IsRetryable(err error) bool {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return classify(err).Retryable()
}

// classify maps an error to the failure reason reported to callers.
func classify(err error) FailureReason {
	switch {
	case errors.Is(err, ErrKeyUnavailable):
		return ReasonKeyUnavailable
	case errors.Is(err, ErrAuthenticationFailure):
		return ReasonAuthentication
	case errors.Is(err, ErrInvalidPeerKey):
		return ReasonInvalidPeerKey
	case errors.Is(err, ErrArityMismatch):
		return ReasonArityMismatch
	case errors.Is(err, ErrComputationAborted):
		return ReasonComputationAborted
	case errors.Is(err, ErrSubmission):
		return ReasonSubmission
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrAborted), errors.Is(err, ErrClientClosed), errors.Is(err, context.Canceled):
		return ReasonAborted
	}
	return ReasonInternal
}

// contextError converts a context error raised while waiting in operation
// into the SDK's timeout or abandonment error.
func contextError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Operation: operation}
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", operation, ErrAborted)
	}
	return err
}

// wrapError converts internal API errors to public errors.
// This ensures that errors.Is() checks work with public sentinel errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			RequestID:  apiErr.RequestID,
		}
	}

	var netErr *api.NetworkError
	if errors.As(err, &netErr) {
		return &NetworkError{
			Err:     netErr.Err,
			URL:     netErr.URL,
			Attempt: netErr.Attempt,
		}
	}

	return err
}
