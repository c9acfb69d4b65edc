package mxe

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bountymxe/mxe-go/internal/api"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want FailureReason
	}{
		{&KeyUnavailableError{Attempts: 3}, ReasonKeyUnavailable},
		{&KeyUnavailableError{Attempts: 3, LastErr: ErrInvalidPeerKey}, ReasonKeyUnavailable},
		{fmt.Errorf("open: %w", ErrAuthenticationFailure), ReasonAuthentication},
		{ErrInvalidPeerKey, ReasonInvalidPeerKey},
		{ErrArityMismatch, ReasonArityMismatch},
		{ErrComputationAborted, ReasonComputationAborted},
		{&SubmissionError{Err: errors.New("boom")}, ReasonSubmission},
		{&TimeoutError{Operation: "submit"}, ReasonTimeout},
		{context.DeadlineExceeded, ReasonTimeout},
		{context.Canceled, ReasonAborted},
		{ErrClientClosed, ReasonAborted},
		{errors.New("other"), ReasonInternal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestFailureReason_Retryable(t *testing.T) {
	retryable := map[FailureReason]bool{
		ReasonKeyUnavailable: true,
		ReasonTimeout:        true,
	}
	for _, r := range []FailureReason{
		ReasonKeyUnavailable, ReasonInvalidPeerKey, ReasonSubmission, ReasonFinalization,
		ReasonAuthentication, ReasonArityMismatch, ReasonComputationAborted,
		ReasonTimeout, ReasonAborted, ReasonInternal,
	} {
		require.Equal(t, retryable[r], r.Retryable(), string(r))
	}
}

func TestContextError(t *testing.T) {
	err := contextError("cluster key fetch", context.DeadlineExceeded)
	require.ErrorIs(t, err, ErrTimeout)
	require.Contains(t, err.Error(), "cluster key fetch")

	err = contextError("submit", context.Canceled)
	require.ErrorIs(t, err, ErrAborted)

	other := errors.New("other")
	require.Equal(t, other, contextError("x", other))
}

func TestWrapError(t *testing.T) {
	require.NoError(t, wrapError(nil))

	err := wrapError(fmt.Errorf("do: %w", &api.APIError{StatusCode: 409, Message: "exists", RequestID: "req-1"}))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 409, apiErr.StatusCode)
	require.Equal(t, "req-1", apiErr.RequestID)
	require.ErrorIs(t, err, ErrDuplicateCorrelationID)
	require.Equal(t, "API error 409: exists (request_id: req-1)", err.Error())

	cause := errors.New("connection refused")
	err = wrapError(&api.NetworkError{Err: cause, URL: "http://gw", Attempt: 2})
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	require.Equal(t, 2, netErr.Attempt)
	require.ErrorIs(t, err, cause)

	plain := errors.New("plain")
	require.Equal(t, plain, wrapError(plain))
}

func TestErrorMessages(t *testing.T) {
	id := CorrelationID{1, 2, 3, 4, 5, 6, 7, 8}

	require.Equal(t, "API error 500", (&APIError{StatusCode: 500}).Error())
	require.Equal(t, "cluster public key unavailable after 10 attempts", (&KeyUnavailableError{Attempts: 10}).Error())
	require.Equal(t, "submit timed out after 2s", (&TimeoutError{Operation: "submit", Timeout: 2 * time.Second}).Error())
	require.Equal(t, "submit computation 0102030405060708: nope", (&SubmissionError{CorrelationID: id, Err: errors.New("nope")}).Error())

	se := &SessionError{CorrelationID: id, State: StateSubmitted, Reason: ReasonTimeout, Err: ErrTimeout}
	require.Equal(t, "session 0102030405060708 failed in submitted (timeout): timed out", se.Error())
	se.CorrelationID = CorrelationID{}
	require.Equal(t, "session failed in submitted (timeout): timed out", se.Error())
}

func TestMXEErrorMarker(t *testing.T) {
	for _, err := range []error{
		&APIError{}, &NetworkError{}, &KeyUnavailableError{},
		&SubmissionError{}, &TimeoutError{}, &SessionError{},
	} {
		var m MXEError
		require.True(t, errors.As(err, &m), "%T", err)
	}
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(&SessionError{Reason: ReasonTimeout}))
	require.False(t, IsRetryable(&SessionError{Reason: ReasonAuthentication}))
	require.True(t, IsRetryable(&KeyUnavailableError{}))
	require.False(t, IsRetryable(ErrAuthenticationFailure))
	require.False(t, IsRetryable(errors.New("x")))
}
