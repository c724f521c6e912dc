package httpclient

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	nethttp "net/http"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finwire/weblib/logger"
	weblibtrace "github.com/finwire/weblib/trace"
)

func testLogger() logger.Logger {
	return logger.NewFromZerolog(zerolog.Nop())
}

// testClient builds a client in test mode so retry loops run without real
// backoff waits.
func testClient(t *testing.T, cfg *Config) Client {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.TestMode = true
	return New(testLogger(), cfg)
}

// TestRecoversAfterTransientFailures exercises the canonical flaky-endpoint
// sequence: two 503s followed by a 200 must produce a success on the third
// attempt.
func TestRecoversAfterTransientFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(nethttp.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := testClient(t, nil)
	resp, err := client.Get(context.Background(), &Request{URL: server.URL})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, resp.Stats.Attempts)
	assert.Equal(t, int32(3), hits.Load())

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", data["status"])
}

// TestPermanentFailureDoesNotRetry verifies that a 404 terminates the call
// after exactly one attempt.
func TestPermanentFailureDoesNotRetry(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		hits.Add(1)
		nethttp.Error(w, "not here", nethttp.StatusNotFound)
	}))
	defer server.Close()

	client := testClient(t, nil)
	resp, err := client.Get(context.Background(), &Request{URL: server.URL})

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, IsErrorType(err, PermanentError))
	assert.True(t, IsHTTPStatusError(err, nethttp.StatusNotFound))
	assert.Equal(t, int32(1), hits.Load())

	var attempter Attempter
	require.ErrorAs(t, err, &attempter)
	assert.Equal(t, 1, attempter.Attempts())
}

// TestMalformedResponseIsTerminal verifies that a 200 carrying HTML where
// JSON was expected fails once, without retries, and preserves the body for
// diagnostics.
func TestMalformedResponseIsTerminal(t *testing.T) {
	const html = `<html><body>Service Maintenance</body></html>`
	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(html))
	}))
	defer server.Close()

	client := testClient(t, nil)
	_, err := client.Get(context.Background(), &Request{URL: server.URL})

	require.Error(t, err)
	assert.True(t, IsErrorType(err, MalformedError))
	assert.Equal(t, int32(1), hits.Load())

	var bodyErr interface{ Body() []byte }
	require.ErrorAs(t, err, &bodyErr)
	assert.Equal(t, []byte(html), bodyErr.Body())
}

func TestMalformedResponseRetriedWhenConfigured(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if hits.Add(1) == 1 {
			_, _ = w.Write([]byte(`<html>`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := testClient(t, &Config{RetryMalformed: true})
	resp, err := client.Get(context.Background(), &Request{URL: server.URL})

	require.NoError(t, err)
	assert.Equal(t, 2, resp.Stats.Attempts)
}

// TestExhaustedRetries verifies the attempt budget: a persistently failing
// endpoint consumes MaxAttempts attempts and surfaces an exhausted error
// carrying the last status.
func TestExhaustedRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		hits.Add(1)
		w.WriteHeader(nethttp.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := testClient(t, &Config{MaxAttempts: 3})
	_, err := client.Get(context.Background(), &Request{URL: server.URL})

	require.Error(t, err)
	assert.True(t, IsErrorType(err, ExhaustedError))
	assert.True(t, IsHTTPStatusError(err, nethttp.StatusServiceUnavailable))
	assert.Equal(t, int32(3), hits.Load())

	var attempter Attempter
	require.ErrorAs(t, err, &attempter)
	assert.Equal(t, 3, attempter.Attempts())
}

func TestMethodAllowlist(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	cfg := &Config{AllowedMethods: []string{nethttp.MethodGet}, TestMode: true}
	client := New(testLogger(), cfg)

	_, err := client.Post(context.Background(), &Request{URL: server.URL})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, PermanentError))
	assert.Contains(t, err.Error(), "not allowed")
	assert.Equal(t, int32(0), hits.Load(), "disallowed method must not touch the network")

	_, err = client.Get(context.Background(), &Request{URL: server.URL})
	assert.NoError(t, err)
}

func TestInvalidURLFailsFast(t *testing.T) {
	client := testClient(t, nil)
	_, err := client.Get(context.Background(), &Request{URL: "http://exa mple.com/%zz"})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, PermanentError))
}

// TestRetryAfterHint verifies a 429 with Retry-After still re-enters the
// attempt loop and recovers.
func TestRetryAfterHint(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(nethttp.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := testClient(t, nil)
	resp, err := client.Get(context.Background(), &Request{URL: server.URL})

	require.NoError(t, err)
	assert.Equal(t, 2, resp.Stats.Attempts)
}

// TestPerAttemptTimeout verifies that a slow endpoint trips the attempt
// deadline and that the failure is retried by default.
func TestPerAttemptTimeout(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		hits.Add(1)
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	cfg := &Config{MaxAttempts: 2, PerAttemptTimeout: 50 * time.Millisecond}
	client := testClient(t, cfg)
	_, err := client.Get(context.Background(), &Request{URL: server.URL})

	require.Error(t, err)
	assert.True(t, IsErrorType(err, ExhaustedError))
	assert.Equal(t, int32(2), hits.Load())
}

func TestPerAttemptTimeoutTerminalWhenDisabled(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		hits.Add(1)
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	cfg := &Config{PerAttemptTimeout: 50 * time.Millisecond, DisableTimeoutRetry: true}
	client := testClient(t, cfg)
	_, err := client.Get(context.Background(), &Request{URL: server.URL})

	require.Error(t, err)
	assert.True(t, IsErrorType(err, TimeoutError))
	assert.Equal(t, int32(1), hits.Load())
}

// TestCallerCancellation verifies a cancelled parent context interrupts the
// call and is reported as cancellation, not as a timeout or network failure.
func TestCallerCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	client := testClient(t, nil)
	_, err := client.Get(ctx, &Request{URL: server.URL})

	require.Error(t, err)
	assert.True(t, IsErrorType(err, CancelledError))
}

// TestRateLimitDeadlineCarriesCause verifies that when the rate limiter
// rejects a wait the deadline cannot accommodate, the returned error wraps
// the limiter's reason rather than a nil context error.
func TestRateLimitDeadlineCarriesCause(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := testClient(t, &Config{RequestsPerSecond: 0.01, Burst: 1})

	// First call drains the burst token.
	_, err := client.Get(context.Background(), &Request{URL: server.URL})
	require.NoError(t, err)

	// The next token is ~100s away, so a short deadline is rejected by the
	// limiter up front, while the context itself is still live.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Get(ctx, &Request{URL: server.URL})

	require.Error(t, err)
	assert.True(t, IsErrorType(err, CancelledError))
	require.NotNil(t, errors.Unwrap(err))
	assert.Contains(t, errors.Unwrap(err).Error(), "rate")
}

// TestPerCallOverridesDoNotMutateClient verifies option merging is
// copy-on-write: a one-attempt override must not stick to the client.
func TestPerCallOverridesDoNotMutateClient(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		hits.Add(1)
		w.WriteHeader(nethttp.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := testClient(t, &Config{MaxAttempts: 3})

	one := 1
	_, err := client.Get(context.Background(), &Request{
		URL:     server.URL,
		Options: &Options{MaxAttempts: &one},
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load(), "override must cap the call at one attempt")

	hits.Store(0)
	_, err = client.Get(context.Background(), &Request{URL: server.URL})
	require.Error(t, err)
	assert.Equal(t, int32(3), hits.Load(), "client defaults must survive the previous override")
}

// TestHeaderPrecedence verifies default headers, per-call option headers and
// per-request headers are applied lowest-to-highest, and that the request ID
// and JSON content type are stamped.
func TestHeaderPrecedence(t *testing.T) {
	var mu sync.Mutex
	var got nethttp.Header
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		mu.Lock()
		got = r.Header.Clone()
		mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := testClient(t, &Config{
		DefaultHeaders: map[string]string{"X-Tier": "default", "X-Base": "base"},
	})

	_, err := client.Post(context.Background(), &Request{
		URL:     server.URL,
		Body:    []byte(`{"q":1}`),
		Headers: map[string]string{"X-Tier": "request"},
		Options: &Options{Headers: map[string]string{"X-Tier": "option", "X-Opt": "opt"}},
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "request", got.Get("X-Tier"))
	assert.Equal(t, "base", got.Get("X-Base"))
	assert.Equal(t, "opt", got.Get("X-Opt"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.NotEmpty(t, got.Get(HeaderXRequestID))
}

// TestRequestIDStableAcrossAttempts verifies one logical call carries a
// single request ID: a caller-supplied ID is stamped on every physical
// attempt, and a minted ID does not change between retries.
func TestRequestIDStableAcrossAttempts(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get(HeaderXRequestID))
		mu.Unlock()
		if hits.Add(1) <= 2 {
			w.WriteHeader(nethttp.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := testClient(t, nil)

	ctx := weblibtrace.WithRequestID(context.Background(), "call-one")
	_, err := client.Get(ctx, &Request{URL: server.URL})
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, seen, 3)
	assert.Equal(t, []string{"call-one", "call-one", "call-one"}, seen)
	seen = nil
	hits.Store(0)
	mu.Unlock()

	_, err = client.Get(context.Background(), &Request{URL: server.URL})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.NotEmpty(t, seen[0])
	assert.Equal(t, seen[0], seen[1])
	assert.Equal(t, seen[0], seen[2])
}

// TestConcurrencyLimit verifies the permit pool bounds in-flight calls and
// that permits are returned on completion.
func TestConcurrencyLimit(t *testing.T) {
	const calls = 6

	var inFlight atomic.Int32
	var peak atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := testClient(t, &Config{MaxConcurrentRequests: 2})

	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Get(context.Background(), &Request{URL: server.URL})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

// TestSharedLimiter verifies two clients built on one limiter share its
// permit pool.
func TestSharedLimiter(t *testing.T) {
	var inFlight atomic.Int32
	var peak atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	shared := NewLimiter(1)
	a := NewBuilder(testLogger()).WithSharedLimiter(shared).WithTestMode().Build()
	b := NewBuilder(testLogger()).WithSharedLimiter(shared).WithTestMode().Build()

	var wg sync.WaitGroup
	for _, c := range []Client{a, b, a, b} {
		wg.Add(1)
		go func(c Client) {
			defer wg.Done()
			_, err := c.Get(context.Background(), &Request{URL: server.URL})
			assert.NoError(t, err)
		}(c)
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load(), "shared pool must serialize both clients")
}

func TestRetryPredicateVeto(t *testing.T) {
	cfg := &Config{
		MaxAttempts: 5,
		ShouldRetry: func(attempt int, err error) bool { return false },
	}
	client := testClient(t, cfg)

	// Closed port: a transport-level failure on the first attempt.
	_, err := client.Get(context.Background(), &Request{URL: "http://127.0.0.1:1"})
	require.Error(t, err)
	assert.True(t, IsErrorType(err, NetworkError))
}

func TestDoWithNilContext(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := testClient(t, nil)
	//nolint:staticcheck // exercising the nil-context guard
	resp, err := client.Do(nil, nethttp.MethodGet, &Request{URL: server.URL})
	require.NoError(t, err)
	assert.True(t, resp.Success)
}
