package logger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordedEntry is one log record captured by the recorder sink.
type recordedEntry struct {
	level  string
	msg    string
	err    error
	fields map[string]any
}

// recorderSink is a Logger that captures records for assertions. Messages
// equal to blockMsg wait on the block channel, simulating a slow output.
type recorderSink struct {
	mu       sync.Mutex
	entries  []recordedEntry
	blockMsg string
	block    chan struct{}
}

func (r *recorderSink) entry(level string) LogEvent {
	return &recorderEvent{sink: r, level: level, fields: map[string]any{}}
}

func (r *recorderSink) Trace() LogEvent { return r.entry("trace") }
func (r *recorderSink) Debug() LogEvent { return r.entry("debug") }
func (r *recorderSink) Info() LogEvent  { return r.entry("info") }
func (r *recorderSink) Warn() LogEvent  { return r.entry("warn") }
func (r *recorderSink) Error() LogEvent { return r.entry("error") }
func (r *recorderSink) Fatal() LogEvent { return r.entry("fatal") }

func (r *recorderSink) WithContext(_ any) Logger           { return r }
func (r *recorderSink) WithFields(_ map[string]any) Logger { return r }

func (r *recorderSink) recorded() []recordedEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

type recorderEvent struct {
	sink   *recorderSink
	level  string
	err    error
	fields map[string]any
}

func (e *recorderEvent) Msg(msg string) {
	if e.sink.block != nil && msg == e.sink.blockMsg {
		<-e.sink.block
	}
	e.sink.mu.Lock()
	defer e.sink.mu.Unlock()
	e.sink.entries = append(e.sink.entries, recordedEntry{
		level:  e.level,
		msg:    msg,
		err:    e.err,
		fields: e.fields,
	})
}

func (e *recorderEvent) Msgf(format string, args ...any)        { e.Msg(format) }
func (e *recorderEvent) Err(err error) LogEvent                 { e.err = err; return e }
func (e *recorderEvent) Str(k, v string) LogEvent               { e.fields[k] = v; return e }
func (e *recorderEvent) Int(k string, v int) LogEvent           { e.fields[k] = v; return e }
func (e *recorderEvent) Int64(k string, v int64) LogEvent       { e.fields[k] = v; return e }
func (e *recorderEvent) Uint64(k string, v uint64) LogEvent     { e.fields[k] = v; return e }
func (e *recorderEvent) Float64(k string, v float64) LogEvent   { e.fields[k] = v; return e }
func (e *recorderEvent) Dur(k string, d time.Duration) LogEvent { e.fields[k] = d; return e }
func (e *recorderEvent) Interface(k string, i any) LogEvent     { e.fields[k] = i; return e }
func (e *recorderEvent) Bytes(k string, v []byte) LogEvent      { e.fields[k] = v; return e }

func TestAsyncDeliversRecords(t *testing.T) {
	sink := &recorderSink{}
	async := NewAsync(sink, 16)

	async.Info().Str("key", "value").Int("n", 7).Msg("first")
	async.Warn().Err(errors.New("boom")).Msg("second")
	async.Close()

	entries := sink.recorded()
	require.Len(t, entries, 2)

	assert.Equal(t, "info", entries[0].level)
	assert.Equal(t, "first", entries[0].msg)
	assert.Equal(t, "value", entries[0].fields["key"])
	assert.Equal(t, 7, entries[0].fields["n"])

	assert.Equal(t, "warn", entries[1].level)
	assert.EqualError(t, entries[1].err, "boom")
}

func TestAsyncCloseDrainsQueue(t *testing.T) {
	sink := &recorderSink{}
	async := NewAsync(sink, 128)

	const records = 100
	for i := 0; i < records; i++ {
		async.Info().Int("i", i).Msg("queued")
	}
	async.Close()

	assert.Len(t, sink.recorded(), records)
	assert.Equal(t, uint64(0), async.Dropped())
}

// TestAsyncNeverBlocksProducers fills the queue against a wedged sink and
// verifies producers return immediately, with overflow counted as drops.
func TestAsyncNeverBlocksProducers(t *testing.T) {
	release := make(chan struct{})
	sink := &recorderSink{block: release, blockMsg: "flood"}
	async := NewAsync(sink, 1)

	const records = 50
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < records; i++ {
			async.Info().Msg("flood")
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer blocked on a full log queue")
	}

	assert.Greater(t, async.Dropped(), uint64(0))

	close(release)
	async.Close()

	// Everything that was accepted must eventually reach the sink. The drop
	// warning itself is also recorded.
	delivered := uint64(0)
	for _, e := range sink.recorded() {
		if e.msg == "flood" {
			delivered++
		}
	}
	assert.Equal(t, uint64(records), delivered+async.Dropped())
}

func TestAsyncDropWarningIsRateLimited(t *testing.T) {
	release := make(chan struct{})
	sink := &recorderSink{block: release, blockMsg: "flood"}
	async := NewAsync(sink, 1)

	for i := 0; i < 20; i++ {
		async.Info().Msg("flood")
	}
	close(release)
	async.Close()

	warnings := 0
	for _, e := range sink.recorded() {
		if e.msg == "Log queue full, dropping records" {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings, "drop warning must be emitted at most once per second")
}

func TestAsyncCloseIsIdempotent(t *testing.T) {
	async := NewAsync(&recorderSink{}, 4)
	async.Close()
	async.Close()

	// Records after Close are counted as dropped, not delivered.
	async.Info().Msg("late")
	assert.Equal(t, uint64(1), async.Dropped())
}

func TestAsyncWithFields(t *testing.T) {
	sink := &recorderSink{}
	async := NewAsync(sink, 4)

	scoped := async.WithFields(map[string]any{"component": "httpclient"})
	scoped.Info().Str("key", "value").Msg("tagged")
	async.Close()

	entries := sink.recorded()
	require.Len(t, entries, 1)
	assert.Equal(t, "httpclient", entries[0].fields["component"])
	assert.Equal(t, "value", entries[0].fields["key"])
}
