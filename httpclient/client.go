package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	nethttp "net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/finwire/weblib/logger"
	weblibtrace "github.com/finwire/weblib/trace"
)

// client is the default Client implementation.
type client struct {
	config    *Config
	logger    logger.Logger
	transport *nethttp.Client
	limiter   *Limiter
	rate      *rate.Limiter

	mu  sync.Mutex
	rng *rand.Rand
}

var _ Client = (*client)(nil)

// New creates a resilient client from cfg. A nil cfg uses defaults. The
// configuration is copied and normalized; the caller's value is not retained.
func New(log logger.Logger, cfg *Config) Client {
	return newClient(log, cfg, nil)
}

func newClient(log logger.Logger, cfg *Config, shared *Limiter) *client {
	if cfg == nil {
		cfg = &Config{}
	}
	normalized := *cfg
	normalized.normalize()

	transport := normalized.Transport
	if transport == nil {
		transport = &nethttp.Client{}
	}

	limiter := shared
	if limiter == nil {
		limiter = NewLimiter(normalized.MaxConcurrentRequests)
	}

	var rl *rate.Limiter
	if normalized.RequestsPerSecond > 0 {
		burst := normalized.Burst
		if burst < 1 {
			burst = 1
		}
		rl = rate.NewLimiter(rate.Limit(normalized.RequestsPerSecond), burst)
	}

	return &client{
		config:    &normalized,
		logger:    log,
		transport: transport,
		limiter:   limiter,
		rate:      rl,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // jitter, not crypto
	}
}

func (c *client) Get(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodGet, req)
}

func (c *client) Post(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPost, req)
}

func (c *client) Put(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPut, req)
}

func (c *client) Patch(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPatch, req)
}

func (c *client) Delete(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodDelete, req)
}

func (c *client) Head(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodHead, req)
}

func (c *client) Options(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodOptions, req)
}

func (c *client) Trace(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodTrace, req)
}

// Do executes one logical call: merge per-call overrides, check the method
// allowlist, take a concurrency permit, run the attempt loop, and translate
// the terminal outcome into an envelope or a classified error. The permit is
// released on every exit path.
func (c *client) Do(ctx context.Context, method string, req *Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := c.config.merge(req.Options)
	requestID := weblibtrace.EnsureRequestID(ctx)
	ctx = weblibtrace.WithRequestID(ctx, requestID)

	if !cfg.methodAllowed(method) {
		c.logger.Warn().
			Str("method", method).
			Str("url", req.URL).
			Str("request_id", requestID).
			Msg("Method not allowed")
		return nil, NewPermanentError(fmt.Sprintf("method %s not allowed", method), 0, nil, 0)
	}

	// Fail fast on requests that can never be built, before consuming a
	// permit or touching the network.
	if _, err := nethttp.NewRequest(method, req.URL, nil); err != nil {
		return nil, NewPermanentError(fmt.Sprintf("invalid request: %v", err), 0, nil, 0)
	}

	c.logRequest(method, req, requestID, cfg)

	if c.rate != nil {
		if err := c.rate.Wait(ctx); err != nil {
			return nil, NewCancelledError("interrupted while rate limited", err)
		}
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, NewCancelledError("interrupted while waiting for a permit", ctx.Err())
	}
	defer c.limiter.Release()

	return c.run(ctx, method, req, cfg, requestID)
}

// run is the attempt loop: strictly sequential attempts, each bounded by the
// per-attempt timeout, separated by capped exponential backoff. Only
// retryable outcomes (and malformed ones when configured) re-enter the loop.
func (c *client) run(ctx context.Context, method string, req *Request, cfg *Config, requestID string) (*Response, error) {
	start := time.Now()

	for attempt := 1; ; attempt++ {
		attemptStart := time.Now()
		tr := c.attempt(ctx, method, req, cfg)
		outcome := classify(tr, cfg, req, time.Now())
		c.logAttempt(requestID, method, req.URL, attempt, outcome, time.Since(attemptStart))

		switch outcome.Kind {
		case OutcomeSuccess:
			resp := &Response{
				StatusCode: outcome.StatusCode,
				Success:    true,
				Body:       outcome.Body,
				Data:       outcome.Data,
				Headers:    outcome.Headers,
				Stats: Stats{
					Attempts:    attempt,
					ElapsedTime: time.Since(start),
				},
			}
			c.logResponse(resp, requestID, cfg)
			return resp, nil

		case OutcomeCancelled:
			return nil, NewCancelledError(method+" "+req.URL, outcome.Err)

		case OutcomePermanent:
			// Short-circuit without extra noise: the attempt log above is the
			// single line for a permanent failure.
			return nil, NewPermanentError(method+" "+req.URL, outcome.StatusCode, outcome.Body, attempt)

		case OutcomeMalformed:
			if !cfg.RetryMalformed || attempt == cfg.MaxAttempts {
				return nil, NewMalformedError(outcome.Reason+": "+method+" "+req.URL,
					outcome.StatusCode, outcome.Body, attempt, outcome.Err)
			}

		case OutcomeRetryable:
			if outcome.Reason == reasonTimeout && cfg.DisableTimeoutRetry {
				return nil, NewTimeoutError(method+" "+req.URL, cfg.PerAttemptTimeout, attempt)
			}
			if outcome.Reason == reasonTransport && cfg.ShouldRetry != nil && !cfg.ShouldRetry(attempt, outcome.Err) {
				return nil, NewNetworkError(method+" "+req.URL, outcome.Err)
			}
			if attempt == cfg.MaxAttempts {
				err := NewExhaustedError(method+" "+req.URL, attempt, outcome.StatusCode, outcome.Body, retryCause(outcome))
				c.logExhausted(requestID, method, req.URL, attempt, time.Since(start), err)
				return nil, err
			}
		}

		delay := outcome.RetryAfter
		if delay <= 0 {
			delay = c.backoff(attempt, cfg)
		}
		if err := sleepContext(ctx, delay, cfg.TestMode); err != nil {
			return nil, NewCancelledError("interrupted during backoff", err)
		}
	}
}

// attempt performs one physical round trip bounded by the per-attempt
// timeout, reading the body exactly once.
func (c *client) attempt(ctx context.Context, method string, req *Request, cfg *Config) *transportResult {
	attemptCtx, cancel := context.WithTimeout(ctx, cfg.PerAttemptTimeout)
	defer cancel()

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := nethttp.NewRequestWithContext(attemptCtx, method, req.URL, bodyReader)
	if err != nil {
		return &transportResult{err: err}
	}
	c.applyHeaders(httpReq, req, cfg)

	resp, err := c.transport.Do(httpReq)
	if err != nil {
		// The transport wraps context errors; surface the parent's
		// cancellation so it is not mistaken for an attempt timeout.
		if ctx.Err() == context.Canceled {
			return &transportResult{err: context.Canceled}
		}
		return &transportResult{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return &transportResult{err: context.Canceled}
		}
		return &transportResult{err: err}
	}

	return &transportResult{
		statusCode: resp.StatusCode,
		headers:    resp.Header,
		body:       body,
	}
}

func (c *client) applyHeaders(httpReq *nethttp.Request, req *Request, cfg *Config) {
	for k, v := range cfg.DefaultHeaders {
		httpReq.Header.Set(k, v)
	}
	if req.Options != nil {
		for k, v := range req.Options.Headers {
			httpReq.Header.Set(k, v)
		}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get(HeaderXRequestID) == "" {
		httpReq.Header.Set(HeaderXRequestID, weblibtrace.EnsureRequestID(httpReq.Context()))
	}
}

// backoff computes the jittered delay for the next attempt. The rng is
// guarded because logical calls run concurrently.
func (c *client) backoff(attempt int, cfg *Config) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return backoffDelay(attempt, cfg.BackoffCeiling, c.rng, cfg.TestMode)
}

func retryCause(outcome Outcome) error {
	if outcome.Err != nil {
		return outcome.Err
	}
	return fmt.Errorf("status %d", outcome.StatusCode)
}

// sleepContext waits for d, aborting early when ctx is done. In test mode
// the wait collapses to a cancellation check so retry tests run instantly.
func sleepContext(ctx context.Context, d time.Duration, testMode bool) error {
	if testMode || d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
