package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bountymxe/mxe-go/internal/wire"
)

// Default client configuration values.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// Client is the HTTP client for an MXE gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      *RetryConfig
	userAgent  string
}

// Config configures a Client created with NewClient.
type Config struct {
	// BaseURL is the gateway root, e.g. https://gateway.example.com.
	BaseURL string
	// APIKey is sent as X-API-Key when set.
	APIKey string
	// HTTPClient replaces the default client. Its timeout applies to every
	// request, including finalization long-polls.
	HTTPClient *http.Client
	// MaxRetries bounds retries of idempotent requests.
	// If zero, defaults to DefaultMaxRetries. Negative disables retries.
	MaxRetries int
	// RetryDelay is the first retry delay; later delays double.
	// If zero, defaults to DefaultRetryDelay.
	RetryDelay time.Duration
	// RetryOn lists the status codes that trigger a retry.
	// If empty, DefaultRetryableStatus is used.
	RetryOn []int
}

// NewClient creates a client from cfg.
func NewClient(cfg Config) (*Client, error) {
	opts := []Option{WithAPIKey(cfg.APIKey)}
	if cfg.HTTPClient != nil {
		opts = append(opts, WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.MaxRetries != 0 {
		opts = append(opts, WithRetries(cfg.MaxRetries))
	}
	if cfg.RetryDelay > 0 {
		opts = append(opts, WithRetryDelay(cfg.RetryDelay))
	}
	if len(cfg.RetryOn) > 0 {
		opts = append(opts, WithRetryOn(cfg.RetryOn))
	}
	return New(cfg.BaseURL, opts...)
}

// Option configures the API client.
type Option func(*Client)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the maximum number of retries. Negative disables retries.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n < 0 {
			n = 0
		}
		c.retry.MaxRetries = n
	}
}

// WithRetryDelay sets the base retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retry.BaseDelay = d
	}
}

// WithRetryOn sets the status codes that trigger a retry.
func WithRetryOn(codes []int) Option {
	return func(c *Client) {
		set := make(map[int]struct{}, len(codes))
		for _, code := range codes {
			set[code] = struct{}{}
		}
		c.retry.RetryableOn = func(statusCode int) bool {
			_, ok := set[statusCode]
			return ok
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a client for the gateway at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		retry:      DefaultRetryConfig(),
		userAgent:  "mxe-go",
	}
	c.retry.MaxRetries = DefaultMaxRetries
	c.retry.BaseDelay = DefaultRetryDelay

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the gateway root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs a JSON request. body, when non-nil, is marshaled as the
// request body; result, when non-nil, receives the decoded response.
// Idempotent requests are retried per the client's RetryConfig.
func (c *Client) Do(ctx context.Context, method, path string, body, result interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	resp, err := c.send(ctx, method, path, payload, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// send issues the request, retrying idempotent methods, and returns a
// response with a 2xx status. The caller closes the body.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, accept string) (*http.Response, error) {
	retry := Idempotent(method)
	fullURL := c.baseURL + path

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if retry && c.retry.ShouldRetry(attempt, 0) {
				if werr := c.retry.Wait(ctx, attempt); werr != nil {
					return nil, werr
				}
				continue
			}
			return nil, &NetworkError{Err: err, URL: fullURL, Attempt: attempt + 1}
		}

		if resp.StatusCode < 300 {
			return resp, nil
		}

		apiErr := parseErrorResponse(resp)
		resp.Body.Close()
		if retry && c.retry.ShouldRetry(attempt, resp.StatusCode) {
			if werr := c.retry.Wait(ctx, attempt); werr != nil {
				return nil, werr
			}
			continue
		}
		return nil, apiErr
	}
}

func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp wire.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errResp.Error,
			RequestID:  errResp.RequestID,
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
		RequestID:  resp.Header.Get("X-Request-Id"),
	}
}

// isStatus reports whether err is an APIError with the given status.
func isStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
