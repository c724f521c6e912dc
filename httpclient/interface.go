// Package httpclient provides a resilient REST client: every outbound call is
// executed with bounded concurrency, per-attempt timeouts, exponential backoff
// with jitter, and structured outcome classification. Higher-level adapters
// (configuration fetchers, market-data services) share this one reliability
// contract instead of reimplementing retry logic.
package httpclient

import (
	"context"
	nethttp "net/http"
	"time"

	weblibtrace "github.com/finwire/weblib/trace"
)

// HeaderXRequestID is the standard header name for request tracing
const HeaderXRequestID = weblibtrace.HeaderXRequestID

// Client defines the REST client interface for making HTTP requests.
// One logical call may be realized as several physical attempts; the methods
// below return once a terminal outcome is reached.
type Client interface {
	Get(ctx context.Context, req *Request) (*Response, error)
	Post(ctx context.Context, req *Request) (*Response, error)
	Put(ctx context.Context, req *Request) (*Response, error)
	Patch(ctx context.Context, req *Request) (*Response, error)
	Delete(ctx context.Context, req *Request) (*Response, error)
	Head(ctx context.Context, req *Request) (*Response, error)
	Options(ctx context.Context, req *Request) (*Response, error)
	Trace(ctx context.Context, req *Request) (*Response, error)
	Do(ctx context.Context, method string, req *Request) (*Response, error)
}

// Request represents a single logical HTTP call.
type Request struct {
	URL     string
	Headers map[string]string
	Body    []byte

	// Out, when non-nil, receives the decoded JSON payload of a successful
	// response. When nil the payload is decoded into a generic value.
	Out any

	// Raw disables payload decoding and domain validation; the response body
	// is returned verbatim. Used for non-JSON endpoints such as encrypted
	// configuration blobs.
	Raw bool

	// Options overrides client configuration for this call only. The client's
	// own configuration is never mutated.
	Options *Options
}

// Response is the envelope returned on a successful call.
type Response struct {
	StatusCode int
	Success    bool
	// Body holds the raw response payload.
	Body []byte
	// Data holds the decoded JSON payload (Request.Out when it was provided).
	// Nil for Raw requests and empty bodies.
	Data    any
	Headers nethttp.Header
	Stats   Stats
}

// Stats contains execution statistics for one logical call.
type Stats struct {
	// Attempts is the number of physical attempts performed.
	Attempts int
	// ElapsedTime covers the whole logical call, backoff waits included.
	ElapsedTime time.Duration
}

// Validator is the domain validation hook: it receives the decoded payload of
// a 2xx response that already parsed as JSON and may reject it (for example
// when a business-level error code is embedded in an otherwise-OK payload).
// A rejection classifies the response as malformed.
type Validator func(payload any) error

// RetryPredicate lets callers veto retries of transport-level failures.
// It receives the attempt index (1-based) and the attempt's error.
type RetryPredicate func(attempt int, err error) bool
