package tandang

import (
	"errors"
	"fmt"
	"time"
)

// Error type classifiers carried by ClientError.Type.
const (
	ErrorTypeNetwork    = "Network"
	ErrorTypeServer     = "Server"
	ErrorTypeClient     = "Client"
	ErrorTypeRateLimit  = "RateLimit"
	ErrorTypeTimeout    = "Timeout"
	ErrorTypeCancelled  = "Cancelled"
	ErrorTypeCrypto     = "Crypto"
	ErrorTypeAuth       = "Auth"
	ErrorTypeValidation = "Validation"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCancelled is returned when a request was cancelled by its caller.
	ErrCancelled = errors.New("tandang: request cancelled")

	// ErrRateLimited is returned when a request is denied by the local rate limiter.
	ErrRateLimited = errors.New("tandang: rate limited")
)

// ClientError represents an error from the client. Type classifies the
// failure, StatusCode carries the HTTP status (0 for pure network failures)
// and Cancelled marks requests that were stopped on purpose so callers can
// distinguish them from breakage.
type ClientError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	Path       string
	StatusCode int
	Attempt    int
	MaxRetries int
	Cancelled  bool
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var msg string
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Cause)
	} else {
		msg = fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if target == ErrCancelled {
		return e.Cancelled
	}
	if target == ErrRateLimited {
		return e.Type == ErrorTypeRateLimit
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// IsTransient determines if an error represents a transient failure that
// might succeed on retry. Returns true for network errors, timeouts, 5xx
// server responses and rate limiting. Returns false for other 4xx client
// errors, crypto failures and cancellations.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		if clientErr.Cancelled {
			return false
		}
		switch clientErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeServer, ErrorTypeRateLimit:
			return true
		default:
			return false
		}
	}

	return false
}

// IsCancelled reports whether the error marks a request that was stopped on
// purpose rather than one that broke.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCancelled) {
		return true
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Cancelled
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.Path != "" {
		info += fmt.Sprintf("Path: %s\n", e.Path)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Cancelled {
		info += "Cancelled: true\n"
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// errorTypeForStatus maps an HTTP status to an error classifier.
func errorTypeForStatus(status int) string {
	switch {
	case status == 401:
		return ErrorTypeAuth
	case status == 408:
		return ErrorTypeTimeout
	case status == 429:
		return ErrorTypeRateLimit
	case status >= 500:
		return ErrorTypeServer
	case status >= 400:
		return ErrorTypeClient
	default:
		return ErrorTypeNetwork
	}
}
