package mxe

import (
	"context"
)

// KeyLookup retrieves the cluster's current public key. It returns an
// empty slice and a nil error while the key has not been published.
type KeyLookup interface {
	ClusterKey(ctx context.Context) ([]byte, error)
}

// Submitter queues a confidential computation with the gateway.
type Submitter interface {
	Submit(ctx context.Context, routing Routing, req *SubmittableRequest) (*SubmissionAck, error)
}

// Finalizer blocks until the cluster confirms that a computation executed
// or was aborted. Finalization does not carry the result.
type Finalizer interface {
	AwaitFinalization(ctx context.Context, id CorrelationID) (*Finalization, error)
}

// Notifier delivers result notifications. The handler may be invoked
// concurrently and in any order. Subscribe returns the matching unsubscribe
// operation; once it returns no further calls to handler are made.
type Notifier interface {
	Subscribe(ctx context.Context, handler func(*ComputationResult)) (unsubscribe func(), err error)
}

// Transport is the full set of gateway collaborators a Client needs.
type Transport interface {
	KeyLookup
	Submitter
	Finalizer
	Notifier
}

// KeyLookupFunc adapts a function to KeyLookup.
type KeyLookupFunc func(ctx context.Context) ([]byte, error)

// ClusterKey implements KeyLookup.
func (f KeyLookupFunc) ClusterKey(ctx context.Context) ([]byte, error) {
	return f(ctx)
}
