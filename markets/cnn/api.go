// Package cnn provides adapters for CNN Business data services, including
// the Fear & Greed index. It mirrors the nasdaq package design: a thin API
// caller over the resilient HTTP client plus typed domain services.
package cnn

import (
	"context"
	"maps"
	"sync"

	"github.com/finwire/weblib/httpclient"
	"github.com/finwire/weblib/logger"
)

// defaultHeaders mimic a desktop browser so the CDN does not flag the
// requests as automated traffic.
var defaultHeaders = map[string]string{
	"accept":             "application/json, text/plain, */*",
	"accept-language":    "en-US,en;q=0.9",
	"cache-control":      "no-cache",
	"dnt":                "1",
	"origin":             "https://www.cnn.com",
	"pragma":             "no-cache",
	"referer":            "https://www.cnn.com/",
	"sec-ch-ua":          `"Google Chrome";v="135", "Not-A.Brand";v="8", "Chromium";v="135"`,
	"sec-ch-ua-mobile":   "?0",
	"sec-ch-ua-platform": `"Windows"`,
	"sec-fetch-dest":     "empty",
	"sec-fetch-mode":     "cors",
	"sec-fetch-site":     "same-site",
	"user-agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36",
}

// API is the low-level CNN caller. Unlike the Nasdaq API there is no
// business status envelope; a parsed 2xx JSON body is the whole contract.
type API struct {
	client httpclient.Client
	logger logger.Logger

	mu      sync.RWMutex
	headers map[string]string
}

// New creates an API with its own HTTP client using default resilience
// settings and browser-mimicry headers.
func New(log logger.Logger) *API {
	return NewWithClient(log, httpclient.NewBuilder(log).Build())
}

// NewWithClient creates an API on top of an existing client.
func NewWithClient(log logger.Logger, client httpclient.Client) *API {
	api := &API{client: client, logger: log, headers: map[string]string{}}
	maps.Copy(api.headers, defaultHeaders)
	return api
}

// SetHeader updates or adds a header applied to every subsequent call.
func (a *API) SetHeader(key, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.headers[key] = value
}

// Headers returns a snapshot of the current header set.
func (a *API) Headers() map[string]string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]string, len(a.headers))
	maps.Copy(out, a.headers)
	return out
}

// Call executes a GET against the given CNN endpoint and returns the
// decoded payload. A nil opts uses the client defaults.
func (a *API) Call(ctx context.Context, endpoint string, opts *httpclient.Options) (map[string]any, error) {
	merged := httpclient.Options{}
	if opts != nil {
		merged = *opts
	}
	// Per-call headers overlay the instance set instead of replacing it.
	headers := a.Headers()
	maps.Copy(headers, merged.Headers)
	merged.Headers = headers

	var payload map[string]any
	if _, err := a.client.Get(ctx, &httpclient.Request{
		URL:     endpoint,
		Out:     &payload,
		Options: &merged,
	}); err != nil {
		return nil, err
	}
	return payload, nil
}
