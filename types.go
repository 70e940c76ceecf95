package tandang

import (
	"net/http"
)

// Request describes a single outbound API call. It is immutable once handed
// to the client: the client owns it for the lifetime of the request.
type Request struct {
	// Method is the HTTP method, e.g. "GET".
	Method string

	// Path is the request path relative to the client base URL.
	Path string

	// Header holds caller supplied headers. Standard headers (auth, locale,
	// anti-forgery) are injected by the client and take precedence.
	Header map[string]string

	// Body is the raw request payload, nil for body-less requests.
	Body []byte

	// RequireSignature asks the client to attach an HMAC signature and
	// timestamp header computed over the wire payload.
	RequireSignature bool

	// SkipDedup bypasses in-flight request coalescing. Uploads and per-call
	// customized requests are never safe to share.
	SkipDedup bool

	// SkipRetry disables the retry loop for this request.
	SkipRetry bool

	// CancelKey optionally names the cancellation handle for this request.
	// When empty, a composite key of method, path and submission time is used.
	CancelKey string
}

// Response is a fully buffered HTTP response. Buffering lets deduplicated
// callers share one response safely.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Middleware wraps the transport for cross-cutting concerns (tracing,
// custom auth, fault injection in tests).
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Option represents a configuration option.
type Option func(*Client)

// QueueOutcome carries the settled result of one queued request.
type QueueOutcome struct {
	Response *Response
	Err      error
}
