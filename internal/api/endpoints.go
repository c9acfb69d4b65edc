package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bountymxe/mxe-go/internal/crypto"
	"github.com/bountymxe/mxe-go/internal/wire"
)

// DefaultFinalizationWait is how long a single finalization long-poll may
// be held open by the gateway.
const DefaultFinalizationWait = 20 * time.Second

// GetClusterKey returns the cluster's raw public key. It returns nil and no
// error while the key has not been published.
func (c *Client) GetClusterKey(ctx context.Context) ([]byte, error) {
	var result wire.KeyResponse
	err := c.Do(ctx, http.MethodGet, "/v1/cluster/key", nil, &result)
	if isStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if result.PublicKey == "" {
		return nil, nil
	}
	return crypto.DecodeFixed(result.PublicKey, crypto.KeySize)
}

// SubmitComputation queues req for execution under routing.
func (c *Client) SubmitComputation(ctx context.Context, routing wire.Routing, req *wire.SubmittableRequest) (*wire.SubmissionAck, error) {
	var ack wire.SubmissionAck
	body := wire.SubmitRequest{Routing: routing, Request: req}
	if err := c.Do(ctx, http.MethodPost, "/v1/computations", body, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// GetFinalization returns the computation's status, asking the gateway to
// hold the request up to wait for it to leave the pending state.
func (c *Client) GetFinalization(ctx context.Context, id wire.CorrelationID, wait time.Duration) (*wire.Finalization, error) {
	path := fmt.Sprintf("/v1/computations/%s/finalization", url.PathEscape(id.String()))
	if wait > 0 {
		path += "?wait=" + url.QueryEscape(wait.String())
	}
	var fin wire.Finalization
	if err := c.Do(ctx, http.MethodGet, path, nil, &fin); err != nil {
		return nil, err
	}
	return &fin, nil
}

// AwaitFinalization long-polls until the computation is finalized or
// aborted, or ctx ends.
func (c *Client) AwaitFinalization(ctx context.Context, id wire.CorrelationID) (*wire.Finalization, error) {
	wait := DefaultFinalizationWait
	if t := c.httpClient.Timeout; t > 0 && t <= wait {
		wait = t / 2
	}
	for {
		fin, err := c.GetFinalization(ctx, id, wait)
		if err != nil {
			return nil, err
		}
		if fin.Status != wire.StatusPending {
			return fin, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// ListResults returns result notifications with a sequence number greater
// than after.
func (c *Client) ListResults(ctx context.Context, after uint64) (*wire.ResultsPage, error) {
	path := "/v1/results?after=" + strconv.FormatUint(after, 10)
	var page wire.ResultsPage
	if err := c.Do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// OpenEventStream opens an SSE connection delivering result notifications
// with a sequence number greater than after. The caller closes the body.
func (c *Client) OpenEventStream(ctx context.Context, after uint64) (*http.Response, error) {
	path := "/v1/events?after=" + strconv.FormatUint(after, 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", c.userAgent)
	if after > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatUint(after, 10))
	}

	// The stream outlives any per-request timeout, so bypass it.
	hc := *c.httpClient
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err, URL: c.baseURL + path, Attempt: 1}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseErrorResponse(resp)
	}
	return resp, nil
}
