package apicore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/q-x-iao/apicore/internal/qs"
)

const (
	// DefaultMaxRetries is the retry budget applied when neither the client
	// nor the call overrides it.
	DefaultMaxRetries = 2

	// DefaultTimeout bounds a single attempt when no timeout is configured.
	DefaultTimeout = 10 * time.Minute
)

// Middleware wraps an http.RoundTripper, allowing request/response
// interception. Middleware runs once per wire attempt.
type Middleware func(next http.RoundTripper) http.RoundTripper

// Authenticator contributes credential headers to every request. Returned
// headers are merged below custom defaults, so both can be overridden
// per call.
type Authenticator interface {
	AuthHeaders() map[string]string
}

// AuthenticatorFunc adapts a plain function to the Authenticator interface.
type AuthenticatorFunc func() map[string]string

func (f AuthenticatorFunc) AuthHeaders() map[string]string { return f() }

// Client is a retry-aware HTTP client for JSON REST APIs. Construct it with
// New and functional options; the zero value is not usable.
//
// All methods are safe for concurrent use.
type Client struct {
	httpClient *http.Client
	transport  http.RoundTripper
	middleware []Middleware

	baseURL   *url.URL
	userAgent string

	maxRetries int
	timeout    time.Duration

	customHeaders map[string]string
	customQuery   map[string]any
	auth          Authenticator

	strictValidation bool

	idempotencyHeader string
	idempotencyPrefix string

	headerValidator func(merged, custom map[string]string) error

	qs          *qs.Stringifier
	multipartQS *qs.Stringifier

	logger  Logger
	debug   *DebugConfig
	metrics *MetricsCollector

	rateLimiter *rate.Limiter

	defaultStreamFactory StreamFactory

	validationError error
	closed          atomic.Bool
}

// New creates a Client. Configuration problems are not returned here; they
// surface from ValidateConfiguration and from every request method, so a
// misconfigured client fails loudly instead of half-working.
func New(options ...Option) *Client {
	c := &Client{
		maxRetries:        DefaultMaxRetries,
		timeout:           DefaultTimeout,
		idempotencyPrefix: "apicore",
		userAgent:         "apicore/" + Version,
		qs:                qs.New(qs.Repeat),
		multipartQS:       qs.New(qs.Brackets),
		debug:             DefaultDebugConfig(),
	}

	for _, opt := range options {
		opt(c)
	}

	if c.logger == nil {
		c.logger = NewSimpleLogger()
	}
	if c.transport == nil {
		c.transport = http.DefaultTransport
	}

	rt := c.transport
	for i := len(c.middleware) - 1; i >= 0; i-- {
		rt = c.middleware[i](rt)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: rt}
	} else if c.httpClient.Transport == nil {
		c.httpClient.Transport = rt
	}

	if c.validationError == nil {
		c.validationError = c.validate()
	}
	return c
}

func (c *Client) validate() error {
	if c.maxRetries < 0 {
		return newConfigError("maxRetries must be >= 0, got %d", c.maxRetries)
	}
	if c.timeout <= 0 {
		return newConfigError("timeout must be > 0, got %v", c.timeout)
	}
	if c.idempotencyHeader != "" && c.idempotencyPrefix == "" {
		return newConfigError("idempotency header %q configured without a key prefix", c.idempotencyHeader)
	}
	return nil
}

// ValidateConfiguration reports the configuration error recorded during
// construction, if any.
func (c *Client) ValidateConfiguration() error {
	return c.validationError
}

// BaseURL returns the configured base URL, or nil when requests must use
// absolute URLs.
func (c *Client) BaseURL() *url.URL {
	if c.baseURL == nil {
		return nil
	}
	u := *c.baseURL
	return &u
}

// Close releases idle connections. Requests issued after Close fail with a
// config error.
func (c *Client) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.httpClient.CloseIdleConnections()
	}
}

// IsClosed reports whether Close has been called.
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

// defaultHeaders produces the client-level header layer: content negotiation,
// identification, platform fingerprint, credentials, then custom defaults.
// Later layers win on conflict.
func (c *Client) defaultHeaders() map[string]string {
	headers := map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
		"User-Agent":   c.userAgent,
	}
	for k, v := range c.platformProperties() {
		headers[k] = v
	}
	if c.auth != nil {
		for k, v := range c.auth.AuthHeaders() {
			headers[k] = v
		}
	}
	for k, v := range c.customHeaders {
		headers[k] = v
	}
	return headers
}

// Do executes one logical request described by opts, retrying per the
// client's policy, and decodes the final response into dst. See
// Client.processResponse for the destination conventions.
func (c *Client) Do(ctx context.Context, opts *RequestOptions, dst any) error {
	if err := c.preflight(); err != nil {
		return err
	}

	method := opts.Method
	endpoint := opts.URL

	c.metrics.RecordRequestStart(method, endpoint)
	defer c.metrics.RecordRequestEnd(method, endpoint)

	start := time.Now()
	resp, err := c.send(ctx, opts)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.metrics.RecordRequest(method, endpoint, status, time.Since(start))

	if err != nil {
		c.recordError(err, method, endpoint)
		return err
	}
	if err := c.processResponse(resp.Request, resp, dst); err != nil {
		c.recordError(err, method, endpoint)
		return err
	}
	return nil
}

// send runs the wire-level attempt loop and returns the first response that
// should not be retried. On failure the response body has been consumed and
// the returned error carries the classification.
func (c *Client) send(ctx context.Context, opts *RequestOptions) (*http.Response, error) {
	retries := opts.retryBudget(c.maxRetries)
	remaining := retries

	requestID := ""
	if c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	for {
		req, err := c.buildRequest(ctx, opts)
		if err != nil {
			return nil, err
		}

		if c.rateLimiter != nil {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return nil, newConnectionError(req, err)
			}
		}

		if c.debug.Enabled && c.debug.LogRequests {
			c.logger.Debug("sending request",
				"requestId", requestID,
				"method", req.Method,
				"url", req.URL.String(),
				"attempt", retries-remaining+1,
			)
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		timeout := c.timeout
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		if timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
			req = req.WithContext(attemptCtx)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			cancel()
			var classified error
			if isTimeout(err) {
				classified = newTimeoutError(req, err)
			} else {
				classified = newConnectionError(req, err)
			}
			// Give up once the parent context is done, regardless of
			// remaining budget.
			if ctx.Err() != nil || remaining <= 0 {
				return nil, classified
			}
			remaining--
			delay := retryDelay(remaining, retries, nil)
			c.logRetry(requestID, req, retries-remaining, delay, classified)
			c.metrics.RecordRetry(opts.Method, opts.URL)
			if err := sleepContext(ctx, delay); err != nil {
				return nil, classified
			}
			continue
		}

		if resp.StatusCode < 400 {
			// Body stays open; decoding owns it. The attempt context must
			// outlive the read, so it is cancelled by the body wrapper.
			resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
			return resp, nil
		}

		if remaining > 0 && shouldRetryResponse(resp) {
			// Drain fully before retrying, keeping the bytes so an aborted
			// sleep still surfaces the diagnostic body.
			rawBody, _ := readBody(req, resp)
			cancel()
			remaining--
			delay := retryDelay(remaining, retries, resp.Header)
			c.logRetry(requestID, req, retries-remaining, delay, fmt.Errorf("status %d", resp.StatusCode))
			c.metrics.RecordRetry(opts.Method, opts.URL)
			if err := sleepContext(ctx, delay); err != nil {
				return nil, newStatusError(req, resp, rawBody)
			}
			continue
		}

		rawBody, readErr := readBody(req, resp)
		cancel()
		if readErr != nil {
			return nil, readErr
		}
		statusErr := newStatusError(req, resp, rawBody)
		if c.debug.Enabled && c.debug.LogErrors {
			c.logger.Warn("request failed",
				"requestId", requestID,
				"method", req.Method,
				"url", req.URL.String(),
				"status", resp.StatusCode,
				"errorType", string(errorTypeOf(statusErr)),
			)
		}
		return nil, statusErr
	}
}

func (c *Client) logRetry(requestID string, req *http.Request, attempt int, delay time.Duration, cause error) {
	if !c.debug.Enabled || !c.debug.LogRetries {
		return
	}
	c.logger.Info("retrying request",
		"requestId", requestID,
		"method", req.Method,
		"url", req.URL.String(),
		"attempt", attempt,
		"delay", delay.String(),
		"cause", cause.Error(),
	)
}

func (c *Client) preflight() error {
	if c.validationError != nil {
		return c.validationError
	}
	if c.closed.Load() {
		return newConfigError("client is closed")
	}
	return nil
}

func (c *Client) recordError(err error, method, endpoint string) {
	c.metrics.RecordError(errorTypeOf(err), method, endpoint)
}

func errorTypeOf(err error) ErrorType {
	if e, ok := err.(*Error); ok {
		return e.Type
	}
	return ErrorTypeConnection
}

// cancelBody ties an attempt's context cancellation to body closure so the
// per-attempt deadline covers the read as well.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// Get issues a GET request against path and decodes the response into dst.
func (c *Client) Get(ctx context.Context, path string, dst any, opts ...RequestOption) error {
	return c.Do(ctx, NewRequestOptions(http.MethodGet, path, opts...), dst)
}

// Post issues a POST request with body against path and decodes the response
// into dst.
func (c *Client) Post(ctx context.Context, path string, body any, dst any, opts ...RequestOption) error {
	all := append([]RequestOption{WithBody(body)}, opts...)
	return c.Do(ctx, NewRequestOptions(http.MethodPost, path, all...), dst)
}

// Put issues a PUT request with body against path and decodes the response
// into dst.
func (c *Client) Put(ctx context.Context, path string, body any, dst any, opts ...RequestOption) error {
	all := append([]RequestOption{WithBody(body)}, opts...)
	return c.Do(ctx, NewRequestOptions(http.MethodPut, path, all...), dst)
}

// Patch issues a PATCH request with body against path and decodes the
// response into dst.
func (c *Client) Patch(ctx context.Context, path string, body any, dst any, opts ...RequestOption) error {
	all := append([]RequestOption{WithBody(body)}, opts...)
	return c.Do(ctx, NewRequestOptions(http.MethodPatch, path, all...), dst)
}

// Delete issues a DELETE request against path and decodes the response
// into dst.
func (c *Client) Delete(ctx context.Context, path string, dst any, opts ...RequestOption) error {
	return c.Do(ctx, NewRequestOptions(http.MethodDelete, path, opts...), dst)
}
