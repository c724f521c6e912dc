package httpclient

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayDoublesUntilCeiling(t *testing.T) {
	ceiling := 30 * time.Second

	// Jitter disabled: the sequence is deterministic.
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 300 * time.Millisecond},
		{2, 600 * time.Millisecond},
		{3, 1200 * time.Millisecond},
		{4, 2400 * time.Millisecond},
		{8, ceiling}, // 38.4s uncapped
		{20, ceiling},
	}

	for _, tt := range tests {
		got := backoffDelay(tt.attempt, ceiling, nil, true)
		assert.Equal(t, tt.expected, got, "attempt %d", tt.attempt)
	}
}

func TestBackoffDelayJitterBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ceiling := 30 * time.Second

	for attempt := 1; attempt <= 10; attempt++ {
		base := backoffDelay(attempt, ceiling, nil, true)
		for i := 0; i < 100; i++ {
			got := backoffDelay(attempt, ceiling, rng, false)
			assert.GreaterOrEqual(t, got, base, "jitter must only add")
			assert.LessOrEqual(t, got, base+base/10, "jitter exceeds one tenth of base")
			assert.LessOrEqual(t, got, ceiling, "jittered delay exceeds ceiling")
		}
	}
}

func TestBackoffDelayClampsAttempt(t *testing.T) {
	got := backoffDelay(0, 30*time.Second, nil, true)
	assert.Equal(t, 300*time.Millisecond, got)

	got = backoffDelay(-5, 30*time.Second, nil, true)
	assert.Equal(t, 300*time.Millisecond, got)
}

func TestBackoffDelayLowCeiling(t *testing.T) {
	// Ceiling below the base: every delay is the ceiling.
	got := backoffDelay(1, 100*time.Millisecond, nil, true)
	assert.Equal(t, 100*time.Millisecond, got)
}

func TestParseRetryAfterSeconds(t *testing.T) {
	now := time.Date(2026, time.February, 24, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		value    string
		expected time.Duration
		ok       bool
	}{
		{"integer seconds", "7", 7 * time.Second, true},
		{"fractional seconds round up", "1.2", 2 * time.Second, true},
		{"zero rounds up to one second", "0", time.Second, true},
		{"negative rejected", "-3", 0, false},
		{"empty", "", 0, false},
		{"garbage", "soon", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRetryAfter(tt.value, now)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	now := time.Date(2026, time.February, 24, 12, 0, 0, 0, time.UTC)
	future := now.Add(90 * time.Second)

	got, ok := parseRetryAfter(future.Format(time.RFC1123), now)
	assert.True(t, ok)
	assert.Equal(t, 90*time.Second, got)

	// Past dates collapse to the one-second floor.
	got, ok = parseRetryAfter(now.Add(-time.Hour).Format(time.RFC1123), now)
	assert.True(t, ok)
	assert.Equal(t, time.Second, got)
}
