package apicore

import (
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Option configures a Client during construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client. Middleware configured
// on the Client is installed as its transport only when the supplied client
// has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTransport sets the base RoundTripper that middleware wraps.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

// WithMiddleware appends request/response interceptors. Middleware runs in
// the order given, outermost first, once per wire attempt.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *Client) { c.middleware = append(c.middleware, mw...) }
}

// WithBaseURL sets the base URL that relative request paths resolve against.
// An unparsable or schemeless URL is recorded as a configuration error.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		u, err := url.Parse(raw)
		if err != nil {
			c.validationError = newConfigError("invalid base URL %q: %v", raw, err)
			return
		}
		if u.Scheme == "" || u.Host == "" {
			c.validationError = newConfigError("base URL %q must be absolute", raw)
			return
		}
		c.baseURL = u
	}
}

// WithMaxRetries sets the default retry budget for requests that do not
// override it.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithTimeout sets the per-attempt timeout for requests that do not override
// it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithDefaultHeaders sets headers applied to every request. Per-call headers
// override them; a per-call Omit value removes one.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(c *Client) {
		if c.customHeaders == nil {
			c.customHeaders = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			c.customHeaders[k] = v
		}
	}
}

// WithDefaultQuery sets query parameters applied to every request. Per-call
// parameters override them.
func WithDefaultQuery(query map[string]any) Option {
	return func(c *Client) {
		if c.customQuery == nil {
			c.customQuery = make(map[string]any, len(query))
		}
		for k, v := range query {
			c.customQuery[k] = v
		}
	}
}

// WithAuth installs a credential source consulted on every request.
func WithAuth(auth Authenticator) Option {
	return func(c *Client) { c.auth = auth }
}

// WithBearerAuth installs a static bearer token credential.
func WithBearerAuth(token string) Option {
	return WithAuth(AuthenticatorFunc(func() map[string]string {
		return map[string]string{"Authorization": "Bearer " + token}
	}))
}

// WithStrictValidation makes response decoding reject JSON fields absent
// from the destination type.
func WithStrictValidation() Option {
	return func(c *Client) { c.strictValidation = true }
}

// WithIdempotencyHeader enables automatic idempotency keys: non-GET requests
// lacking the named header get one generated with the given prefix, stable
// across retries of the same call.
func WithIdempotencyHeader(header, prefix string) Option {
	return func(c *Client) {
		c.idempotencyHeader = header
		c.idempotencyPrefix = prefix
	}
}

// WithHeaderValidator installs a hook invoked with the merged and per-call
// header sets before a request is built. A returned error aborts the request
// as a configuration error.
func WithHeaderValidator(fn func(merged, custom map[string]string) error) Option {
	return func(c *Client) { c.headerValidator = fn }
}

// WithUserAgent overrides the User-Agent header value.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the structured logger.
func WithLogger(l Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithDebug enables debug logging with default categories.
func WithDebug() Option {
	return func(c *Client) { c.debug.Enabled = true }
}

// WithDebugConfig sets the full debug configuration.
func WithDebugConfig(cfg *DebugConfig) Option {
	return func(c *Client) {
		if cfg != nil {
			c.debug = cfg
		}
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) { c.metrics = NewMetricsCollector() }
}

// WithMetricsRegistry enables Prometheus metrics on the given registerer.
func WithMetricsRegistry(registry prometheus.Registerer) Option {
	return func(c *Client) { c.metrics = NewMetricsCollectorWithRegistry(registry) }
}

// WithRateLimiter throttles wire attempts to rps requests per second with
// the given burst.
func WithRateLimiter(rps float64, burst int) Option {
	return func(c *Client) { c.rateLimiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithStreamFactory sets the handler used by DoStream when the call does not
// supply one.
func WithStreamFactory(f StreamFactory) Option {
	return func(c *Client) { c.defaultStreamFactory = f }
}
