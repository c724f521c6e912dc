package httpclient

import (
	"maps"
	nethttp "net/http"
	"time"
)

// Defaults mirror a conservative browser-API client: three total attempts,
// fifteen-second attempts, thirty-second backoff ceiling.
const (
	DefaultMaxAttempts       = 3
	DefaultPerAttemptTimeout = 15 * time.Second
	DefaultBackoffCeiling    = 30 * time.Second
	DefaultMaxConcurrent     = 2
	DefaultPayloadLogBytes   = 1024
)

// Config holds the REST client configuration. It is immutable once the client
// is built: per-call overrides always operate on a copy.
type Config struct {
	// MaxAttempts is the total number of physical attempts per logical call
	// (>= 1). One means no retries.
	MaxAttempts int

	// PerAttemptTimeout bounds a single physical attempt. There is no
	// whole-call timeout; callers compose one around the call if needed.
	PerAttemptTimeout time.Duration

	// BackoffCeiling caps the wait between attempts regardless of the
	// computed exponential value.
	BackoffCeiling time.Duration

	// MaxRetryAfter caps server-provided Retry-After waits. Zero means the
	// BackoffCeiling applies.
	MaxRetryAfter time.Duration

	// AllowedMethods restricts which HTTP methods the client will execute.
	// A call with any other method fails fast before network I/O. Empty
	// means all standard methods are allowed.
	AllowedMethods []string

	// MaxConcurrentRequests bounds in-flight logical calls (>= 1).
	MaxConcurrentRequests int64

	// RequestsPerSecond enables client-side rate limiting when > 0.
	RequestsPerSecond float64
	Burst             int

	// RetryableStatuses lists status codes treated as transient. Any 5xx and
	// 429 are always retryable. Defaults to 408, 413, 429, 500, 502, 503, 504.
	RetryableStatuses []int

	// RetryAfterStatuses lists statuses whose Retry-After header overrides
	// the computed backoff. Defaults to 413, 429, 503.
	RetryAfterStatuses []int

	// DisableTimeoutRetry stops retrying per-attempt timeouts.
	DisableTimeoutRetry bool

	// RetryMalformed opts malformed 2xx responses into the retryable set, for
	// upstreams known to intermittently serve maintenance pages with an OK
	// status. Off by default: a malformed response rarely self-heals.
	RetryMalformed bool

	// TestMode disables jitter and collapses backoff waits to zero so retry
	// behavior can be tested deterministically and instantly.
	TestMode bool

	// ShouldRetry, when set, is consulted before retrying a transport-level
	// failure and can veto the retry.
	ShouldRetry RetryPredicate

	// Validator is the default domain validation hook applied to decoded 2xx
	// payloads. Per-call options may override it.
	Validator Validator

	// DefaultHeaders are applied to every request; per-request headers win.
	DefaultHeaders map[string]string

	// LogPayloads enables debug-level logging of headers and body payloads.
	LogPayloads bool
	// MaxPayloadLogBytes caps the number of body bytes logged when
	// LogPayloads is enabled.
	MaxPayloadLogBytes int

	// Transport is the underlying HTTP client. Connection pooling and TLS are
	// its concern, not this package's. Defaults to a plain http.Client.
	Transport *nethttp.Client
}

// Options carries per-call overrides. Nil fields inherit the client value.
type Options struct {
	MaxAttempts       *int
	PerAttemptTimeout *time.Duration
	BackoffCeiling    *time.Duration
	MaxRetryAfter     *time.Duration
	RetryMalformed    *bool
	Validator         Validator
	Headers           map[string]string
}

// normalize fills zero values with defaults and returns the receiver for
// chaining. Called once at build time.
func (c *Config) normalize() *Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.PerAttemptTimeout <= 0 {
		c.PerAttemptTimeout = DefaultPerAttemptTimeout
	}
	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = DefaultBackoffCeiling
	}
	if c.MaxConcurrentRequests < 1 {
		c.MaxConcurrentRequests = DefaultMaxConcurrent
	}
	if c.MaxPayloadLogBytes <= 0 {
		c.MaxPayloadLogBytes = DefaultPayloadLogBytes
	}
	if len(c.RetryableStatuses) == 0 {
		c.RetryableStatuses = []int{408, 413, 429, 500, 502, 503, 504}
	}
	if len(c.RetryAfterStatuses) == 0 {
		c.RetryAfterStatuses = []int{413, 429, 503}
	}
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{
			nethttp.MethodGet, nethttp.MethodPost, nethttp.MethodPut,
			nethttp.MethodPatch, nethttp.MethodDelete, nethttp.MethodHead,
			nethttp.MethodOptions, nethttp.MethodTrace,
		}
	}
	return c
}

// merge applies per-call overrides onto a copy of the client configuration.
// The receiver is never mutated.
func (c *Config) merge(opts *Options) *Config {
	merged := *c
	merged.AllowedMethods = append([]string(nil), c.AllowedMethods...)
	merged.RetryableStatuses = append([]int(nil), c.RetryableStatuses...)
	merged.RetryAfterStatuses = append([]int(nil), c.RetryAfterStatuses...)
	merged.DefaultHeaders = maps.Clone(c.DefaultHeaders)

	if opts == nil {
		return &merged
	}
	if opts.MaxAttempts != nil && *opts.MaxAttempts >= 1 {
		merged.MaxAttempts = *opts.MaxAttempts
	}
	if opts.PerAttemptTimeout != nil && *opts.PerAttemptTimeout > 0 {
		merged.PerAttemptTimeout = *opts.PerAttemptTimeout
	}
	if opts.BackoffCeiling != nil && *opts.BackoffCeiling > 0 {
		merged.BackoffCeiling = *opts.BackoffCeiling
	}
	if opts.MaxRetryAfter != nil {
		merged.MaxRetryAfter = *opts.MaxRetryAfter
	}
	if opts.RetryMalformed != nil {
		merged.RetryMalformed = *opts.RetryMalformed
	}
	if opts.Validator != nil {
		merged.Validator = opts.Validator
	}
	return &merged
}

func (c *Config) methodAllowed(method string) bool {
	for _, m := range c.AllowedMethods {
		if m == method {
			return true
		}
	}
	return false
}

func (c *Config) statusRetryable(status int) bool {
	if status == nethttp.StatusTooManyRequests || (status >= 500 && status <= 599) {
		return true
	}
	for _, s := range c.RetryableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (c *Config) statusHonorsRetryAfter(status int) bool {
	for _, s := range c.RetryAfterStatuses {
		if s == status {
			return true
		}
	}
	return false
}
