// Package api provides the HTTP client for an MXE gateway. It handles
// request/response serialization, optional API key authentication, and
// retry with exponential backoff for transient failures of idempotent
// requests.
//
// # Client Creation
//
// The package provides two ways to create a client:
//
//   - [NewClient]: Struct-based configuration for explicit, type-safe setup.
//   - [New]: Functional options pattern for flexible configuration.
//
// Both require a base URL. When an API key is configured it is sent in the
// X-API-Key header on every request.
//
// # Endpoints
//
//   - GET  /v1/cluster/key: the cluster's published X25519 key, 404 until published.
//   - POST /v1/computations: queue a [wire.SubmittableRequest].
//   - GET  /v1/computations/{id}/finalization: long-poll a computation's status.
//   - GET  /v1/results?after=N: result notifications after sequence N.
//   - GET  /v1/events?after=N: the same notifications as a Server-Sent Events stream.
//
// # Retry Behavior
//
// GET requests are retried up to 3 times by default on network errors and
// on these HTTP status codes:
//
//   - 408 Request Timeout
//   - 429 Too Many Requests
//   - 500 Internal Server Error
//   - 502 Bad Gateway
//   - 503 Service Unavailable
//   - 504 Gateway Timeout
//
// Submissions are never retried: a repeated POST would reach the gateway
// with an id it has already queued.
//
// # Error Handling
//
// Non-2xx responses are returned as [*APIError], which matches the package
// sentinels with errors.Is:
//
//	if errors.Is(err, api.ErrDuplicate) {
//	    // the correlation id is already queued
//	}
//
// # Thread Safety
//
// The [Client] type is safe for concurrent use.
package api
