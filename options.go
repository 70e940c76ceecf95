package tandang

import (
	"fmt"
	"net/http"
	"time"
)

// WithBaseURL sets the API base URL prepended to every request path.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithCredentials sets the credential store consulted for auth headers.
func WithCredentials(store CredentialStore) Option {
	return func(c *Client) {
		c.credentials = store
	}
}

// WithLocale sets the Accept-Language header value.
func WithLocale(locale string) Option {
	return func(c *Client) {
		c.locale = locale
	}
}

// WithCSRFTokenProvider sets the anti-forgery token source. The provider is
// consulted per request.
func WithCSRFTokenProvider(fn func() string) Option {
	return func(c *Client) {
		c.csrfToken = fn
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseDelay sets the first backoff delay. Subsequent delays grow by 4x.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = d
	}
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0).
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.jitter = f
	}
}

// WithRetryPolicy replaces the default retry policy entirely.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithRateLimiter applies a client-side token bucket ahead of every attempt.
func WithRateLimiter(rps float64, burst int) Option {
	return func(c *Client) {
		c.rateLimiter = NewRateLimiter(rps, burst)
	}
}

// WithoutDeduplication disables in-flight request coalescing for the whole
// client. Per-request opt-out is Request.SkipDedup.
func WithoutDeduplication() Option {
	return func(c *Client) {
		c.dedup = nil
	}
}

// WithMaxConcurrent bounds how many queued requests execute simultaneously.
func WithMaxConcurrent(n int) Option {
	return func(c *Client) {
		c.queue = NewRequestQueue(n)
	}
}

// WithTimeout sets the per-attempt transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient sets a custom underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithMiddleware adds middleware wrapping the transport.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithMetrics enables Prometheus metrics collection on the default registry.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging with the current configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration checks the client configuration for consistency.
func (c *Client) ValidateConfiguration() error {
	if c.maxRetries < 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: fmt.Sprintf("maxRetries must be >= 0, got %d", c.maxRetries),
		}
	}
	if c.baseDelay <= 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: fmt.Sprintf("baseDelay must be > 0, got %v", c.baseDelay),
		}
	}
	if c.maxDelay < c.baseDelay {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: fmt.Sprintf("maxDelay %v must be >= baseDelay %v", c.maxDelay, c.baseDelay),
		}
	}
	if c.jitter < 0 || c.jitter > 1 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: fmt.Sprintf("jitter must be in [0, 1], got %v", c.jitter),
		}
	}
	if c.httpClient == nil {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "httpClient must not be nil",
		}
	}
	if c.queue == nil {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "queue must not be nil",
		}
	}
	return nil
}
