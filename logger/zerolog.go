package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZeroLogger wraps zerolog.Logger to implement the Logger interface.
type ZeroLogger struct {
	zlog *zerolog.Logger
}

// Ensure ZeroLogger implements the interface
var _ Logger = (*ZeroLogger)(nil)

// New creates a new ZeroLogger with the specified level. If pretty is true,
// output is formatted for human readability instead of JSON.
func New(level string, pretty bool) *ZeroLogger {
	var l zerolog.Logger

	if pretty {
		l = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	} else {
		l = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	zLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zLevel = zerolog.InfoLevel
	}
	l = l.Level(zLevel)

	return &ZeroLogger{zlog: &l}
}

// NewFromZerolog wraps an existing zerolog.Logger. Useful for tests and for
// callers that already carry a configured zerolog instance.
func NewFromZerolog(zl zerolog.Logger) *ZeroLogger {
	return &ZeroLogger{zlog: &zl}
}

// WithContext returns a logger bound to the zerolog instance carried by ctx,
// or the receiver when none is present.
func (l *ZeroLogger) WithContext(ctx any) Logger {
	if c, ok := ctx.(context.Context); ok {
		zl := zerolog.Ctx(c)
		if zl == nil || zl.GetLevel() == zerolog.Disabled {
			return l
		}
		return &ZeroLogger{zlog: zl}
	}
	return l
}

// WithFields returns a logger with additional fields attached to all log entries.
func (l *ZeroLogger) WithFields(fields map[string]any) Logger {
	log := l.zlog.With().Fields(fields).Logger()
	return &ZeroLogger{zlog: &log}
}

// Trace creates a trace-level log event
func (l *ZeroLogger) Trace() LogEvent { return &zeroEvent{event: l.zlog.Trace()} }

// Debug creates a debug-level log event
func (l *ZeroLogger) Debug() LogEvent { return &zeroEvent{event: l.zlog.Debug()} }

// Info creates an info-level log event
func (l *ZeroLogger) Info() LogEvent { return &zeroEvent{event: l.zlog.Info()} }

// Warn creates a warning-level log event
func (l *ZeroLogger) Warn() LogEvent { return &zeroEvent{event: l.zlog.Warn()} }

// Error creates an error-level log event
func (l *ZeroLogger) Error() LogEvent { return &zeroEvent{event: l.zlog.Error()} }

// Fatal creates a fatal-level log event
func (l *ZeroLogger) Fatal() LogEvent { return &zeroEvent{event: l.zlog.Fatal()} }

// zeroEvent adapts zerolog events to the LogEvent interface.
type zeroEvent struct {
	event *zerolog.Event
}

func (e *zeroEvent) Msg(msg string) { e.event.Msg(msg) }

func (e *zeroEvent) Msgf(format string, args ...any) { e.event.Msgf(format, args...) }

func (e *zeroEvent) Err(err error) LogEvent {
	return &zeroEvent{event: e.event.Err(err)}
}

func (e *zeroEvent) Str(key, value string) LogEvent {
	return &zeroEvent{event: e.event.Str(key, value)}
}

func (e *zeroEvent) Int(key string, value int) LogEvent {
	return &zeroEvent{event: e.event.Int(key, value)}
}

func (e *zeroEvent) Int64(key string, value int64) LogEvent {
	return &zeroEvent{event: e.event.Int64(key, value)}
}

func (e *zeroEvent) Uint64(key string, value uint64) LogEvent {
	return &zeroEvent{event: e.event.Uint64(key, value)}
}

func (e *zeroEvent) Float64(key string, value float64) LogEvent {
	return &zeroEvent{event: e.event.Float64(key, value)}
}

func (e *zeroEvent) Dur(key string, d time.Duration) LogEvent {
	return &zeroEvent{event: e.event.Dur(key, d)}
}

func (e *zeroEvent) Interface(key string, i any) LogEvent {
	return &zeroEvent{event: e.event.Interface(key, i)}
}

func (e *zeroEvent) Bytes(key string, val []byte) LogEvent {
	return &zeroEvent{event: e.event.Bytes(key, val)}
}
