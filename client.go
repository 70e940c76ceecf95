package tandang

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ambiyansyah-risyal/tandang/internal/envelope"
)

// Client is the request orchestration pipeline for a remote HTTP API. It
// layers header injection, optional payload encryption, deduplication,
// retries with backoff, cooperative cancellation, a bounded priority queue
// and metrics around an injected transport. It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	credentials CredentialStore
	locale      string
	csrfToken   func() string

	maxRetries  int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      float64
	retryPolicy RetryPolicy

	rateLimiter *RateLimiter
	middleware  []Middleware

	dedup   *DeduplicationTracker
	cancels *CancelRegistry
	queue   *RequestQueue

	crypto   atomic.Pointer[CryptoContext]
	cryptoMu sync.Mutex

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger

	validationError error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
		baseDelay:  1 * time.Second,
		maxDelay:   30 * time.Second,
		jitter:     0,
		middleware: []Middleware{},
		dedup:      NewDeduplicationTracker(),
		cancels:    NewCancelRegistry(),
		queue:      NewRequestQueue(5),
		debug:      DefaultDebugConfig(),
	}
	client.crypto.Store(&CryptoContext{})

	for _, option := range options {
		option(client)
	}

	if client.retryPolicy == nil {
		policy := NewDefaultRetryPolicy(client.maxRetries, client.baseDelay, client.maxDelay)
		if client.jitter > 0 {
			policy.WithJitter(client.jitter)
		}
		client.retryPolicy = policy
	}

	client.queue.logger = client.logger
	client.queue.debug = client.debug
	client.queue.metrics = client.metrics

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Execute runs one request through the full pipeline and returns its final
// outcome. Intermediate retry attempts never surface to the caller.
func (c *Client) Execute(ctx context.Context, req *Request) (*Response, error) {
	if c.validationError != nil {
		return nil, &ClientError{
			Type:      ErrorTypeValidation,
			Message:   "invalid client configuration",
			Cause:     c.validationError,
			Timestamp: time.Now(),
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	requestID := c.newRequestID()

	if c.debugEnabled() && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting request", "requestID", requestID, "method", req.Method, "path", req.Path)
	}

	c.metrics.RecordRequestStart(req.Method, req.Path)
	defer c.metrics.RecordRequestEnd(req.Method, req.Path)

	var (
		resp *Response
		err  error
	)
	if req.SkipDedup || c.dedup == nil {
		resp, err = c.executeOnce(ctx, req, requestID, start)
	} else {
		signature := RequestSignature(req)
		entry, owner := c.dedup.GetOrCreateEntry(signature)
		if owner {
			resp, err = c.executeOnce(ctx, req, requestID, start)
			c.dedup.Complete(signature, resp, err)
		} else {
			c.metrics.RecordDeduplicationHit(req.Method, req.Path)
			if c.debugEnabled() && c.debug.LogDedup && c.logger != nil {
				c.logger.Debug("Coalesced onto in-flight request", "requestID", requestID, "signature", signature)
			}
			resp, err = entry.Wait(ctx)
			// A waiter abandoning the shared call is a cancellation of its
			// own request, reported like any other cancelled outcome.
			if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				err = c.cancelledError(requestID, req, time.Since(start))
			}
		}
	}

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	c.metrics.RecordRequest(req.Method, req.Path, statusCode, time.Since(start))

	return resp, err
}

// executeOnce runs the non-shared part of the pipeline: headers, optional
// encryption and signing, cancellation handle, retry loop, decryption.
func (c *Client) executeOnce(ctx context.Context, req *Request, requestID string, start time.Time) (*Response, error) {
	headers := c.buildHeaders(req, requestID)

	body := req.Body
	cc := c.crypto.Load()
	if cc.Enabled() && len(body) > 0 {
		encoded, err := cc.key.Encrypt(body)
		if err != nil {
			c.metrics.RecordError(ErrorTypeCrypto, req.Method, req.Path)
			return nil, c.newError(ErrorTypeCrypto, "request encryption failed", err, requestID, req, 0, time.Since(start))
		}
		body = []byte(encoded)
		headers[HeaderEncrypted] = "1"
	}

	if req.RequireSignature {
		ts := time.Now().Unix()
		headers[HeaderTimestamp] = strconv.FormatInt(ts, 10)
		headers[HeaderSignature] = envelope.Sign(c.signingSecret(), req.Method, req.Path, ts, body)
	}

	handle := c.cancels.Register(ctx, req.Method, req.Path, req.CancelKey)
	defer c.cancels.Release(handle.ID())

	resp, err := c.doWithRetry(handle, req, headers, body, requestID, start, 0)

	// Cancellation wins a race with a late success: the caller asked to
	// stop, so the result is discarded and a cancelled outcome reported.
	if handle.Cancelled() {
		c.metrics.RecordCancellation()
		if c.debugEnabled() && c.debug.LogCancel && c.logger != nil {
			c.logger.Debug("Request cancelled", "requestID", requestID, "cancelKey", handle.ID())
		}
		return nil, c.cancelledError(requestID, req, time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	if resp.Header.Get(HeaderEncrypted) != "" {
		if !cc.Enabled() {
			c.metrics.RecordError(ErrorTypeCrypto, req.Method, req.Path)
			return nil, c.newError(ErrorTypeCrypto, "received encrypted response with encryption disabled", nil, requestID, req, 0, time.Since(start))
		}
		plaintext, derr := cc.key.Decrypt(string(resp.Body))
		if derr != nil {
			c.metrics.RecordError(ErrorTypeCrypto, req.Method, req.Path)
			return nil, c.newError(ErrorTypeCrypto, "response decryption failed", derr, requestID, req, 0, time.Since(start))
		}
		resp = &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: plaintext}
	}

	return resp, nil
}

func (c *Client) doWithRetry(handle *CancelHandle, req *Request, headers map[string]string, body []byte, requestID string, start time.Time, attempt int) (*Response, error) {
	if handle.Cancelled() {
		return nil, c.cancelledError(requestID, req, time.Since(start))
	}

	if c.rateLimiter != nil && !c.rateLimiter.Allow() {
		c.metrics.RecordError(ErrorTypeRateLimit, req.Method, req.Path)
		return nil, c.newError(ErrorTypeRateLimit, "rate limit exceeded", ErrRateLimited, requestID, req, attempt, time.Since(start))
	}

	if attempt > 0 {
		c.metrics.RecordRetry(req.Method, req.Path, attempt)
	}

	httpReq, err := c.newHTTPRequest(handle.Context(), req, headers, body)
	if err != nil {
		return nil, c.newError(ErrorTypeValidation, "building request failed", err, requestID, req, attempt, time.Since(start))
	}

	rawResp, err := c.executeMiddleware(httpReq)

	var resp *Response
	if err == nil {
		resp, err = bufferResponse(rawResp)
	}

	// A cancel landing mid-transport reports as cancelled, never retried,
	// whether it arrived through the registry flag or the caller's context.
	if handle.Cancelled() || errors.Is(handle.Context().Err(), context.Canceled) {
		return nil, c.cancelledError(requestID, req, time.Since(start))
	}

	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		authErr := c.newError(ErrorTypeAuth, "credentials rejected", nil, requestID, req, attempt, time.Since(start))
		authErr.StatusCode = http.StatusUnauthorized
		if c.credentials != nil {
			c.credentials.AuthError(authErr)
		}
		c.metrics.RecordError(ErrorTypeAuth, req.Method, req.Path)
		return nil, authErr
	}

	if !req.SkipRetry {
		if delay, retry := c.retryPolicy.ShouldRetry(resp, err, attempt); retry {
			if c.debugEnabled() && c.debug.LogRetries && c.logger != nil {
				c.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+1, "maxRetries", c.maxRetries, "backoff", delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-handle.Context().Done():
				timer.Stop()
				return nil, c.cancelledError(requestID, req, time.Since(start))
			}
			return c.doWithRetry(handle, req, headers, body, requestID, start, attempt+1)
		}
	}

	if err != nil {
		c.metrics.RecordError(ErrorTypeNetwork, req.Method, req.Path)
		return nil, c.newError(ErrorTypeNetwork, "network request failed", err, requestID, req, attempt, time.Since(start))
	}

	if resp.StatusCode >= 400 {
		errType := errorTypeForStatus(resp.StatusCode)
		c.metrics.RecordError(errType, req.Method, req.Path)
		statusErr := c.newError(errType, http.StatusText(resp.StatusCode), nil, requestID, req, attempt, time.Since(start))
		statusErr.StatusCode = resp.StatusCode
		return nil, statusErr
	}

	return resp, nil
}

func (c *Client) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.httpClient.Do(req)
	}

	current := RoundTripperFunc(c.httpClient.Do)

	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

// buildHeaders assembles the standard header set. The bearer token wins
// over the static API key during a login transition; the precedence is
// deterministic.
func (c *Client) buildHeaders(req *Request, requestID string) map[string]string {
	headers := make(map[string]string, len(req.Header)+5)
	for k, v := range req.Header {
		headers[k] = v
	}

	if c.credentials != nil {
		if token := c.credentials.BearerToken(); token != "" {
			headers["Authorization"] = "Bearer " + token
		} else if key := c.credentials.APIKey(); key != "" {
			headers["X-Api-Key"] = key
		}
	}
	if c.locale != "" {
		headers["Accept-Language"] = c.locale
	}
	if c.csrfToken != nil {
		if token := c.csrfToken(); token != "" {
			headers["X-CSRF-Token"] = token
		}
	}
	headers[HeaderRequestID] = requestID

	return headers
}

// signingSecret follows the same precedence as request auth.
func (c *Client) signingSecret() string {
	if c.credentials == nil {
		return ""
	}
	if token := c.credentials.BearerToken(); token != "" {
		return token
	}
	return c.credentials.APIKey()
}

func (c *Client) newHTTPRequest(ctx context.Context, req *Request, headers map[string]string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func bufferResponse(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Get performs a GET request through the pipeline.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Execute(ctx, &Request{Method: http.MethodGet, Path: path})
}

// Post performs a POST request through the pipeline.
func (c *Client) Post(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.Execute(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request through the pipeline.
func (c *Client) Put(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.Execute(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Delete performs a DELETE request through the pipeline.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Execute(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// QueueRequest submits a request to the bounded priority queue. The
// returned channel delivers the settled outcome.
func (c *Client) QueueRequest(ctx context.Context, req *Request, priority int) <-chan QueueOutcome {
	return c.queue.Enqueue(ctx, func(ctx context.Context) (*Response, error) {
		return c.Execute(ctx, req)
	}, priority)
}

// QueueFunc submits arbitrary work to the bounded priority queue.
func (c *Client) QueueFunc(ctx context.Context, fn ExecuteFunc, priority int) <-chan QueueOutcome {
	return c.queue.Enqueue(ctx, fn, priority)
}

// CancelRequest signals the in-flight request registered under key,
// reporting whether a live handle was found.
func (c *Client) CancelRequest(key string) bool {
	return c.cancels.Cancel(key)
}

// CancelAllRequests signals every in-flight request and returns the count
// cancelled. An escape hatch for page or navigation teardown.
func (c *Client) CancelAllRequests() int {
	return c.cancels.CancelAll()
}

// InFlight reports the number of requests with a live cancellation handle.
func (c *Client) InFlight() int {
	return c.cancels.Len()
}

func (c *Client) newRequestID() string {
	if c.debug != nil && c.debug.RequestIDGen != nil {
		return c.debug.RequestIDGen()
	}
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}

func (c *Client) debugEnabled() bool {
	return c.debug != nil && c.debug.Enabled
}

func (c *Client) newError(errorType, message string, cause error, requestID string, req *Request, attempt int, duration time.Duration) *ClientError {
	return &ClientError{
		Type:       errorType,
		Message:    message,
		Cause:      cause,
		RequestID:  requestID,
		Method:     req.Method,
		Path:       req.Path,
		Attempt:    attempt,
		MaxRetries: c.maxRetries,
		Timestamp:  time.Now(),
		Duration:   duration,
	}
}

func (c *Client) cancelledError(requestID string, req *Request, duration time.Duration) *ClientError {
	clientErr := c.newError(ErrorTypeCancelled, "request cancelled", ErrCancelled, requestID, req, 0, duration)
	clientErr.Cancelled = true
	return clientErr
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
