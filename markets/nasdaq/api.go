// Package nasdaq provides adapters for the public Nasdaq data API: a thin
// API caller that enforces the business-level status contract, and a market
// status service built on top of it.
package nasdaq

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/finwire/weblib/httpclient"
	"github.com/finwire/weblib/logger"
)

const baseURL = "https://api.nasdaq.com/api/"

// defaultHeaders mimic a desktop browser; the Nasdaq CDN rejects requests
// that look automated.
var defaultHeaders = map[string]string{
	"authority":          "api.nasdaq.com",
	"accept":             "application/json, text/plain, */*",
	"accept-language":    "en-US,en;q=0.9",
	"cache-control":      "no-cache",
	"dnt":                "1",
	"origin":             "https://www.nasdaq.com",
	"pragma":             "no-cache",
	"referer":            "https://www.nasdaq.com/",
	"sec-ch-ua":          `"Google Chrome";v="135", "Not-A.Brand";v="8", "Chromium";v="135"`,
	"sec-ch-ua-mobile":   "?0",
	"sec-ch-ua-platform": `"Windows"`,
	"sec-fetch-dest":     "empty",
	"sec-fetch-mode":     "cors",
	"sec-fetch-site":     "same-site",
	"user-agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36",
}

// BusinessError reports a payload whose HTTP status was 200 but whose
// embedded status block carried a non-200 rCode.
type BusinessError struct {
	RCode    int
	Endpoint string
}

func (e *BusinessError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("nasdaq business error: rCode %d", e.RCode)
	}
	return fmt.Sprintf("nasdaq business error: rCode %d from %s", e.RCode, e.Endpoint)
}

// API is the low-level Nasdaq caller. All requests go through the resilient
// HTTP client; responses are additionally validated against the business
// status contract (status.rCode == 200).
type API struct {
	client httpclient.Client
	logger logger.Logger
}

// New creates an API with its own HTTP client using default resilience
// settings and the business status validator.
func New(log logger.Logger) *API {
	client := httpclient.NewBuilder(log).
		WithValidator(ValidateBusinessStatus).
		WithDefaultHeaders(defaultHeaders).
		Build()
	return NewWithClient(log, client)
}

// NewWithClient creates an API on top of an existing client. The business
// status validator is applied per call, so the client's own validator (if
// any) is replaced for Nasdaq requests.
func NewWithClient(log logger.Logger, client httpclient.Client) *API {
	return &API{client: client, logger: log}
}

// Call executes a GET against a Nasdaq endpoint and returns the decoded
// payload. Relative endpoints are resolved against the api.nasdaq.com base;
// absolute URLs pass through unchanged. A nil opts uses the client defaults.
func (a *API) Call(ctx context.Context, endpoint string, opts *httpclient.Options) (map[string]any, error) {
	url := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		url = baseURL + strings.TrimPrefix(endpoint, "/")
	}

	merged := httpclient.Options{Validator: ValidateBusinessStatus}
	if opts != nil {
		merged = *opts
		if merged.Validator == nil {
			merged.Validator = ValidateBusinessStatus
		}
	}
	// Per-call headers overlay the browser set instead of replacing it; a
	// request without the full set gets rejected by the CDN.
	headers := make(map[string]string, len(defaultHeaders)+len(merged.Headers))
	maps.Copy(headers, defaultHeaders)
	maps.Copy(headers, merged.Headers)
	merged.Headers = headers

	var payload map[string]any
	if _, err := a.client.Get(ctx, &httpclient.Request{
		URL:     url,
		Out:     &payload,
		Options: &merged,
	}); err != nil {
		var be *BusinessError
		if errors.As(err, &be) {
			be.Endpoint = url
			a.logger.Warn().
				Int("rCode", be.RCode).
				Str("url", url).
				Msg("Nasdaq business level error")
		}
		return nil, err
	}
	return payload, nil
}

// ValidateBusinessStatus checks the Nasdaq response envelope: a payload is
// acceptable only when status.rCode is 200. A missing or non-numeric rCode
// means the response does not follow the expected shape.
func ValidateBusinessStatus(payload any) error {
	body, ok := decodedObject(payload)
	if !ok {
		return fmt.Errorf("unexpected payload shape %T", payload)
	}

	status, ok := body["status"].(map[string]any)
	if !ok {
		return fmt.Errorf("missing status block in response")
	}

	rCode, ok := asInt(status["rCode"])
	if !ok {
		return fmt.Errorf("missing rCode in response status block")
	}
	if rCode != 200 {
		return &BusinessError{RCode: rCode}
	}
	return nil
}

// decodedObject unwraps the two shapes the executor hands to validators:
// the caller's typed destination pointer or a generic decoded value.
func decodedObject(payload any) (map[string]any, bool) {
	switch v := payload.(type) {
	case *map[string]any:
		return *v, true
	case map[string]any:
		return v, true
	default:
		return nil, false
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		var code int
		if _, err := fmt.Sscanf(n, "%d", &code); err == nil {
			return code, true
		}
	}
	return 0, false
}
