package httpclient

import (
	"time"

	"github.com/finwire/weblib/logger"
)

// Log messages follow the request/response pair used across the library so
// outbound traffic can be grepped uniformly.
const (
	msgClientRequest  = "REST client request"
	msgClientResponse = "REST client response"
	msgAttemptFailed  = "Request attempt failed"
	msgCallExhausted  = "Request failed after exhausting retries"
)

// logRequest emits one info event per logical call, plus a debug event with
// payload preview when payload logging is enabled.
func (c *client) logRequest(method string, req *Request, requestID string, cfg *Config) {
	ev := c.logger.Info().
		Str("direction", "outbound").
		Str("method", method).
		Str("url", req.URL).
		Str("request_id", requestID)
	if len(req.Headers) > 0 {
		ev = ev.Int("header_count", len(req.Headers))
	}
	if len(req.Body) > 0 {
		ev = ev.Int("body_size", len(req.Body))
	}
	ev.Msg(msgClientRequest)

	if cfg.LogPayloads && len(req.Body) > 0 {
		preview, truncated := previewPayload(req.Body, cfg.MaxPayloadLogBytes)
		c.logger.Debug().
			Str("direction", "outbound").
			Str("method", method).
			Str("url", req.URL).
			Str("request_id", requestID).
			Interface("headers", req.Headers).
			Int("body_size", len(req.Body)).
			Str("body_truncated", boolString(truncated)).
			Bytes("body_preview", preview).
			Msg(msgClientRequest)
	}
}

// logAttempt emits one event per physical attempt: debug for success, warn
// for any failure, with attempt index, classified reason and elapsed time.
func (c *client) logAttempt(requestID, method, url string, attempt int, outcome Outcome, elapsed time.Duration) {
	var ev logger.LogEvent
	if outcome.Kind == OutcomeSuccess {
		ev = c.logger.Debug()
	} else {
		ev = c.logger.Warn()
	}
	ev = ev.
		Str("method", method).
		Str("url", url).
		Str("request_id", requestID).
		Int("attempt", attempt).
		Str("outcome", outcome.Kind.String()).
		Str("reason", outcome.Reason).
		Dur("elapsed", elapsed)
	if outcome.StatusCode > 0 {
		ev = ev.Int("status", outcome.StatusCode)
	}
	if outcome.Err != nil {
		ev = ev.Err(outcome.Err)
	}
	if outcome.Kind == OutcomeSuccess {
		ev.Msg(msgClientResponse)
	} else {
		ev.Msg(msgAttemptFailed)
	}
}

// logResponse emits the per-call summary for a successful call.
func (c *client) logResponse(resp *Response, requestID string, cfg *Config) {
	ev := c.logger.Info().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Str("request_id", requestID).
		Int("attempts", resp.Stats.Attempts).
		Dur("elapsed", resp.Stats.ElapsedTime)
	if len(resp.Body) > 0 {
		ev = ev.Int("body_size", len(resp.Body))
	}
	ev.Msg(msgClientResponse)

	if cfg.LogPayloads && len(resp.Body) > 0 {
		preview, truncated := previewPayload(resp.Body, cfg.MaxPayloadLogBytes)
		c.logger.Debug().
			Str("direction", "inbound").
			Int("status", resp.StatusCode).
			Str("request_id", requestID).
			Interface("headers", resp.Headers).
			Int("body_size", len(resp.Body)).
			Str("body_truncated", boolString(truncated)).
			Bytes("body_preview", preview).
			Msg(msgClientResponse)
	}
}

// logExhausted emits the final error summary for a call that used its whole
// attempt budget.
func (c *client) logExhausted(requestID, method, url string, attempts int, elapsed time.Duration, err error) {
	c.logger.Error().
		Str("method", method).
		Str("url", url).
		Str("request_id", requestID).
		Int("attempts", attempts).
		Dur("elapsed", elapsed).
		Err(err).
		Msg(msgCallExhausted)
}

func previewPayload(body []byte, limit int) (preview []byte, truncated bool) {
	if limit <= 0 {
		limit = DefaultPayloadLogBytes
	}
	if len(body) > limit {
		return body[:limit], true
	}
	return body, false
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
