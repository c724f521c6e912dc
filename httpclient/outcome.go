package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"time"
)

// OutcomeKind is the executor's decision about one physical attempt.
type OutcomeKind int

const (
	// OutcomeSuccess terminates the call with a populated envelope.
	OutcomeSuccess OutcomeKind = iota + 1
	// OutcomeRetryable re-enters the attempt loop while budget remains.
	OutcomeRetryable
	// OutcomePermanent terminates the call immediately; retrying cannot help.
	OutcomePermanent
	// OutcomeMalformed is terminal unless RetryMalformed is set.
	OutcomeMalformed
	// OutcomeCancelled terminates the call because the caller's context was
	// cancelled. Distinct from a per-attempt timeout.
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomePermanent:
		return "permanent"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Classification reasons.
const (
	reasonTransport   = "transport_error"
	reasonTimeout     = "attempt_timeout"
	reasonStatus      = "retryable_status"
	reasonClientError = "client_error_status"
	reasonUnexpected  = "unexpected_status"
	reasonInvalidJSON = "invalid_json"
	reasonValidator   = "validator_rejected"
	reasonCancelled   = "context_cancelled"
)

// Outcome is the classified result of one physical attempt.
type Outcome struct {
	Kind       OutcomeKind
	Reason     string
	StatusCode int
	Headers    nethttp.Header
	Body       []byte
	// Data is the decoded payload, set only on success.
	Data any
	// RetryAfter overrides the computed backoff when the server supplied a
	// usable Retry-After header on a status configured to honor it.
	RetryAfter time.Duration
	// Err carries the underlying failure for terminal outcomes.
	Err error
}

// transportResult is the raw product of one physical attempt: either an error
// or a fully read response. The body is read exactly once.
type transportResult struct {
	statusCode int
	headers    nethttp.Header
	body       []byte
	err        error
}

// classify maps a raw transport result to a tagged outcome, in priority
// order: transport errors, retryable statuses, client errors, payload shape,
// domain validation, success.
func classify(tr *transportResult, cfg *Config, req *Request, now time.Time) Outcome {
	if tr.err != nil {
		return classifyTransportError(tr.err)
	}

	status := tr.statusCode

	if cfg.statusRetryable(status) {
		out := Outcome{
			Kind:       OutcomeRetryable,
			Reason:     reasonStatus,
			StatusCode: status,
			Headers:    tr.headers,
			Body:       tr.body,
		}
		if cfg.statusHonorsRetryAfter(status) {
			if wait, ok := parseRetryAfter(tr.headers.Get("Retry-After"), now); ok {
				out.RetryAfter = capRetryAfter(wait, cfg)
			}
		}
		return out
	}

	if status >= 400 && status <= 499 {
		return Outcome{
			Kind:       OutcomePermanent,
			Reason:     reasonClientError,
			StatusCode: status,
			Headers:    tr.headers,
			Body:       tr.body,
		}
	}

	if !IsSuccessStatus(status) {
		// 1xx/3xx leaking through the transport: deterministic, not worth
		// retrying.
		return Outcome{
			Kind:       OutcomePermanent,
			Reason:     reasonUnexpected,
			StatusCode: status,
			Headers:    tr.headers,
			Body:       tr.body,
		}
	}

	return classifyPayload(tr, cfg, req)
}

func classifyTransportError(err error) Outcome {
	if errors.Is(err, context.Canceled) {
		return Outcome{Kind: OutcomeCancelled, Reason: reasonCancelled, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: OutcomeRetryable, Reason: reasonTimeout, Err: err}
	}
	return Outcome{Kind: OutcomeRetryable, Reason: reasonTransport, Err: err}
}

// classifyPayload handles 2xx responses: decode the expected JSON shape and
// run the domain validator on the decoded value.
func classifyPayload(tr *transportResult, cfg *Config, req *Request) Outcome {
	out := Outcome{
		Kind:       OutcomeSuccess,
		Reason:     "success",
		StatusCode: tr.statusCode,
		Headers:    tr.headers,
		Body:       tr.body,
	}

	if req.Raw || len(tr.body) == 0 {
		return out
	}

	var data any
	if req.Out != nil {
		if err := json.Unmarshal(tr.body, req.Out); err != nil {
			return malformedOutcome(tr, reasonInvalidJSON, err)
		}
		data = req.Out
	} else {
		if err := json.Unmarshal(tr.body, &data); err != nil {
			return malformedOutcome(tr, reasonInvalidJSON, err)
		}
	}

	if cfg.Validator != nil {
		if err := cfg.Validator(data); err != nil {
			return malformedOutcome(tr, reasonValidator, err)
		}
	}

	out.Data = data
	return out
}

func malformedOutcome(tr *transportResult, reason string, err error) Outcome {
	return Outcome{
		Kind:       OutcomeMalformed,
		Reason:     reason,
		StatusCode: tr.statusCode,
		Headers:    tr.headers,
		Body:       tr.body,
		Err:        err,
	}
}

func capRetryAfter(wait time.Duration, cfg *Config) time.Duration {
	if cfg.MaxRetryAfter > 0 && wait > cfg.MaxRetryAfter {
		wait = cfg.MaxRetryAfter
	}
	if wait > cfg.BackoffCeiling {
		wait = cfg.BackoffCeiling
	}
	return wait
}
