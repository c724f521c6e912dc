package logger

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultAsyncBuffer is the channel capacity used when NewAsync is given
	// a non-positive buffer size.
	DefaultAsyncBuffer = 1024

	levelTrace = iota
	levelDebug
	levelInfo
	levelWarn
	levelError
	levelFatal
)

// Async decorates a Logger with a bounded queue and a single consumer
// goroutine. Producers never block: when the queue is full the record is
// dropped, a drop counter is incremented and a rate-limited warning is
// emitted directly to the sink. This keeps logging off the request path of
// the HTTP executor.
type Async struct {
	core *asyncCore
	base map[string]any
}

var _ Logger = (*Async)(nil)

type asyncCore struct {
	sink     Logger
	ch       chan asyncRecord
	done     chan struct{}
	dropped  atomic.Uint64
	dropWarn *rate.Limiter

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

type asyncRecord struct {
	level  int
	msg    string
	err    error
	fields map[string]any
}

// NewAsync wraps sink with an asynchronous dispatcher using the given buffer
// size. Close must be called to drain pending records and stop the worker.
func NewAsync(sink Logger, buffer int) *Async {
	if buffer <= 0 {
		buffer = DefaultAsyncBuffer
	}
	core := &asyncCore{
		sink:     sink,
		ch:       make(chan asyncRecord, buffer),
		done:     make(chan struct{}),
		dropWarn: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	go core.run()
	return &Async{core: core}
}

// Close stops accepting new records, drains the queue and waits for the
// worker to finish. It is safe to call more than once.
func (a *Async) Close() {
	a.core.closeOnce.Do(func() {
		a.core.mu.Lock()
		a.core.closed = true
		close(a.core.ch)
		a.core.mu.Unlock()
		<-a.core.done
	})
}

// Dropped reports how many records have been discarded because the queue was
// full or the dispatcher was closed.
func (a *Async) Dropped() uint64 {
	return a.core.dropped.Load()
}

// WithContext returns the receiver; context binding is delegated to the sink
// at emit time.
func (a *Async) WithContext(_ any) Logger { return a }

// WithFields returns a logger whose records carry the given fields in
// addition to any fields attached to individual events.
func (a *Async) WithFields(fields map[string]any) Logger {
	merged := make(map[string]any, len(a.base)+len(fields))
	for k, v := range a.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Async{core: a.core, base: merged}
}

func (a *Async) Trace() LogEvent { return a.newEvent(levelTrace) }
func (a *Async) Debug() LogEvent { return a.newEvent(levelDebug) }
func (a *Async) Info() LogEvent  { return a.newEvent(levelInfo) }
func (a *Async) Warn() LogEvent  { return a.newEvent(levelWarn) }
func (a *Async) Error() LogEvent { return a.newEvent(levelError) }

// Fatal bypasses the queue: fatal events terminate the process in the sink,
// so they must not race with queued records.
func (a *Async) Fatal() LogEvent { return a.core.sink.Fatal() }

func (a *Async) newEvent(level int) LogEvent {
	fields := make(map[string]any, len(a.base)+4)
	for k, v := range a.base {
		fields[k] = v
	}
	return &asyncEvent{core: a.core, level: level, fields: fields}
}

func (c *asyncCore) run() {
	defer close(c.done)
	for rec := range c.ch {
		c.emit(rec)
	}
}

func (c *asyncCore) emit(rec asyncRecord) {
	var ev LogEvent
	switch rec.level {
	case levelTrace:
		ev = c.sink.Trace()
	case levelDebug:
		ev = c.sink.Debug()
	case levelWarn:
		ev = c.sink.Warn()
	case levelError:
		ev = c.sink.Error()
	default:
		ev = c.sink.Info()
	}
	if rec.err != nil {
		ev = ev.Err(rec.err)
	}
	for k, v := range rec.fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(rec.msg)
}

// enqueue performs a non-blocking send. A full queue drops the record; the
// drop is counted and reported through the sink at most once per second.
func (c *asyncCore) enqueue(rec asyncRecord) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.ch <- rec:
	default:
		total := c.dropped.Add(1)
		if c.dropWarn.Allow() {
			c.sink.Warn().Uint64("dropped_total", total).Msg("Log queue full, dropping records")
		}
	}
}

// asyncEvent accumulates fields producer-side and hands the finished record
// to the dispatcher on Msg.
type asyncEvent struct {
	core   *asyncCore
	level  int
	err    error
	fields map[string]any
}

func (e *asyncEvent) Msg(msg string) {
	e.core.enqueue(asyncRecord{level: e.level, msg: msg, err: e.err, fields: e.fields})
}

func (e *asyncEvent) Msgf(format string, args ...any) {
	e.Msg(fmt.Sprintf(format, args...))
}

func (e *asyncEvent) Err(err error) LogEvent {
	e.err = err
	return e
}

func (e *asyncEvent) Str(key, value string) LogEvent {
	e.fields[key] = value
	return e
}

func (e *asyncEvent) Int(key string, value int) LogEvent {
	e.fields[key] = value
	return e
}

func (e *asyncEvent) Int64(key string, value int64) LogEvent {
	e.fields[key] = value
	return e
}

func (e *asyncEvent) Uint64(key string, value uint64) LogEvent {
	e.fields[key] = value
	return e
}

func (e *asyncEvent) Float64(key string, value float64) LogEvent {
	e.fields[key] = value
	return e
}

func (e *asyncEvent) Dur(key string, d time.Duration) LogEvent {
	e.fields[key] = d
	return e
}

func (e *asyncEvent) Interface(key string, i any) LogEvent {
	e.fields[key] = i
	return e
}

func (e *asyncEvent) Bytes(key string, val []byte) LogEvent {
	e.fields[key] = val
	return e
}
