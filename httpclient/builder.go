package httpclient

import (
	nethttp "net/http"
	"time"

	"github.com/finwire/weblib/logger"
)

// Builder assembles a Client with a fluent API. Zero-value fields fall back
// to package defaults at Build time.
type Builder struct {
	log    logger.Logger
	config Config
	shared *Limiter
}

// NewBuilder creates a Builder using log for all client telemetry.
func NewBuilder(log logger.Logger) *Builder {
	return &Builder{log: log}
}

// WithConfig replaces the accumulated configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithTimeout sets the per-attempt timeout.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.PerAttemptTimeout = timeout
	return b
}

// WithMaxAttempts sets the total number of physical attempts per call.
func (b *Builder) WithMaxAttempts(n int) *Builder {
	b.config.MaxAttempts = n
	return b
}

// WithBackoffCeiling caps the wait between attempts.
func (b *Builder) WithBackoffCeiling(d time.Duration) *Builder {
	b.config.BackoffCeiling = d
	return b
}

// WithMaxConcurrent bounds in-flight logical calls.
func (b *Builder) WithMaxConcurrent(n int64) *Builder {
	b.config.MaxConcurrentRequests = n
	return b
}

// WithSharedLimiter makes the client draw permits from an externally owned
// pool so several clients share one concurrency bound.
func (b *Builder) WithSharedLimiter(l *Limiter) *Builder {
	b.shared = l
	return b
}

// WithRateLimit enables client-side rate limiting.
func (b *Builder) WithRateLimit(rps float64, burst int) *Builder {
	b.config.RequestsPerSecond = rps
	b.config.Burst = burst
	return b
}

// WithAllowedMethods restricts the methods the client will execute.
func (b *Builder) WithAllowedMethods(methods ...string) *Builder {
	b.config.AllowedMethods = methods
	return b
}

// WithValidator sets the default domain validation hook.
func (b *Builder) WithValidator(v Validator) *Builder {
	b.config.Validator = v
	return b
}

// WithDefaultHeaders sets headers applied to every request.
func (b *Builder) WithDefaultHeaders(headers map[string]string) *Builder {
	b.config.DefaultHeaders = headers
	return b
}

// WithRetryMalformed opts malformed responses into the retryable set.
func (b *Builder) WithRetryMalformed() *Builder {
	b.config.RetryMalformed = true
	return b
}

// WithTestMode disables jitter and real sleeping for deterministic tests.
func (b *Builder) WithTestMode() *Builder {
	b.config.TestMode = true
	return b
}

// WithHTTPClient injects the underlying transport.
func (b *Builder) WithHTTPClient(hc *nethttp.Client) *Builder {
	b.config.Transport = hc
	return b
}

// Build creates the client.
func (b *Builder) Build() Client {
	return newClient(b.log, &b.config, b.shared)
}
