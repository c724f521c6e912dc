package httpclient

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// baseBackoff is the wait before the second attempt; each further attempt
// doubles it until the ceiling is reached.
const baseBackoff = 300 * time.Millisecond

// backoffDelay computes the wait after a failed attempt (1-based). The delay
// grows exponentially, is capped at ceiling, and carries additive jitter of
// up to one tenth of the base value so concurrent callers do not retry in
// lockstep. The final value never exceeds ceiling.
func backoffDelay(attempt int, ceiling time.Duration, rng *rand.Rand, disableJitter bool) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := baseBackoff
	for i := 1; i < attempt; i++ {
		base *= 2
		if base >= ceiling {
			base = ceiling
			break
		}
	}
	if base > ceiling {
		base = ceiling
	}

	delay := base
	if !disableJitter && rng != nil {
		jitterMax := base / 10
		if jitterMax > 0 {
			delay += time.Duration(rng.Int63n(int64(jitterMax) + 1))
		}
	}
	if delay > ceiling {
		delay = ceiling
	}
	return delay
}

// parseRetryAfter parses a Retry-After header value: integer seconds or an
// HTTP-date (RFC 1123, RFC 850, ANSI C, RFC 3339). A zero-second hint is
// rounded up to one second. Returns false for absent or unparseable values.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
		d := time.Duration(math.Ceil(secs)) * time.Second
		if d == 0 {
			d = time.Second
		}
		return d, true
	}

	for _, layout := range []string{
		time.RFC1123,
		time.RFC850,
		time.ANSIC,
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, value); err == nil {
			d := t.Sub(now)
			if d < time.Second {
				d = time.Second
			}
			return d, true
		}
	}
	return 0, false
}
