package httpclient

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType identifies the category of a ClientError.
type ErrorType string

const (
	// NetworkError covers transport-level failures: connection refused, DNS
	// failure, reset. Recovered internally by retry until attempts run out.
	NetworkError ErrorType = "network"
	// TimeoutError covers per-attempt timeouts.
	TimeoutError ErrorType = "timeout"
	// PermanentError covers deterministic failures (4xx other than the
	// retryable set, disallowed methods). Never retried.
	PermanentError ErrorType = "permanent"
	// MalformedError covers 2xx responses whose body does not parse as the
	// expected shape or is rejected by a domain validator.
	MalformedError ErrorType = "malformed"
	// CancelledError is surfaced when the caller's context interrupts the
	// call, during permit wait, backoff or an in-flight attempt.
	CancelledError ErrorType = "cancelled"
	// ExhaustedError is surfaced when MaxAttempts is reached while still
	// receiving retryable failures. It wraps the last attempt's failure.
	ExhaustedError ErrorType = "exhausted"
)

// ClientError is the common contract for all errors returned by this package.
type ClientError interface {
	error
	Type() ErrorType
}

// Attempter is implemented by errors that know how many physical attempts
// the logical call consumed.
type Attempter interface {
	Attempts() int
}

// IsErrorType reports whether err is a ClientError of the given type.
func IsErrorType(err error, errorType ErrorType) bool {
	var clientErr ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type() == errorType
	}
	return false
}

// IsHTTPStatusError reports whether err carries the given HTTP status code.
func IsHTTPStatusError(err error, statusCode int) bool {
	var statusErr interface{ StatusCode() int }
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode() == statusCode
	}
	return false
}

// IsSuccessStatus reports whether statusCode is in the 2xx range.
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

type networkError struct {
	message string
	err     error
}

// NewNetworkError creates a transport-level error, optionally wrapping the
// underlying cause.
func NewNetworkError(message string, err error) ClientError {
	return &networkError{message: message, err: err}
}

func (e *networkError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("network error: %s: %v", e.message, e.err)
	}
	return fmt.Sprintf("network error: %s", e.message)
}

func (e *networkError) Type() ErrorType { return NetworkError }
func (e *networkError) Unwrap() error   { return e.err }

type timeoutError struct {
	message  string
	timeout  time.Duration
	attempts int
}

// NewTimeoutError creates a per-attempt timeout error.
func NewTimeoutError(message string, timeout time.Duration, attempts int) ClientError {
	return &timeoutError{message: message, timeout: timeout, attempts: attempts}
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("timeout error: %s (after %s)", e.message, e.timeout)
}

func (e *timeoutError) Type() ErrorType { return TimeoutError }
func (e *timeoutError) Attempts() int   { return e.attempts }

type permanentError struct {
	message    string
	statusCode int
	body       []byte
	attempts   int
}

// NewPermanentError creates a non-retryable failure carrying the last status
// code and raw error body.
func NewPermanentError(message string, statusCode int, body []byte, attempts int) ClientError {
	return &permanentError{message: message, statusCode: statusCode, body: body, attempts: attempts}
}

func (e *permanentError) Error() string {
	if e.statusCode > 0 {
		return fmt.Sprintf("permanent failure: %s (status %d)", e.message, e.statusCode)
	}
	return fmt.Sprintf("permanent failure: %s", e.message)
}

func (e *permanentError) Type() ErrorType { return PermanentError }
func (e *permanentError) StatusCode() int { return e.statusCode }
func (e *permanentError) Body() []byte    { return e.body }
func (e *permanentError) Attempts() int   { return e.attempts }

type malformedError struct {
	message    string
	statusCode int
	body       []byte
	attempts   int
	err        error
}

// NewMalformedError creates an error for a 2xx response whose payload failed
// to parse or was rejected by a domain validator (cause carries the
// rejection).
func NewMalformedError(message string, statusCode int, body []byte, attempts int, cause error) ClientError {
	return &malformedError{message: message, statusCode: statusCode, body: body, attempts: attempts, err: cause}
}

func (e *malformedError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("malformed response: %s (status %d): %v", e.message, e.statusCode, e.err)
	}
	return fmt.Sprintf("malformed response: %s (status %d)", e.message, e.statusCode)
}

func (e *malformedError) Type() ErrorType { return MalformedError }
func (e *malformedError) StatusCode() int { return e.statusCode }
func (e *malformedError) Body() []byte    { return e.body }
func (e *malformedError) Attempts() int   { return e.attempts }
func (e *malformedError) Unwrap() error   { return e.err }

type cancelledError struct {
	message string
	err     error
}

// NewCancelledError creates an error for a caller-initiated cancellation.
func NewCancelledError(message string, err error) ClientError {
	return &cancelledError{message: message, err: err}
}

func (e *cancelledError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("cancelled: %s: %v", e.message, e.err)
	}
	return fmt.Sprintf("cancelled: %s", e.message)
}

func (e *cancelledError) Type() ErrorType { return CancelledError }
func (e *cancelledError) Unwrap() error   { return e.err }

type exhaustedError struct {
	message    string
	attempts   int
	statusCode int
	body       []byte
	err        error
}

// NewExhaustedError creates the terminal error for a call that used its full
// attempt budget on retryable failures. It wraps the last failure.
func NewExhaustedError(message string, attempts, statusCode int, body []byte, cause error) ClientError {
	return &exhaustedError{message: message, attempts: attempts, statusCode: statusCode, body: body, err: cause}
}

func (e *exhaustedError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("retries exhausted: %s (attempts %d): %v", e.message, e.attempts, e.err)
	}
	return fmt.Sprintf("retries exhausted: %s (attempts %d)", e.message, e.attempts)
}

func (e *exhaustedError) Type() ErrorType { return ExhaustedError }
func (e *exhaustedError) StatusCode() int { return e.statusCode }
func (e *exhaustedError) Body() []byte    { return e.body }
func (e *exhaustedError) Attempts() int   { return e.attempts }
func (e *exhaustedError) Unwrap() error   { return e.err }
