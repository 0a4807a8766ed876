// Package progress defines the event sink the core emits to. Sinks are
// observational only: no core behavior may depend on what a sink does,
// and a nil or Noop sink is always valid.
package progress

import "go.uber.org/zap"

// Level classifies a progress event for display purposes.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Event is one progress notification. Index and Total are 1-based batch
// positions; both are zero for events outside a batch.
type Event struct {
	Index   int
	Total   int
	Message string
	Level   Level
}

// Sink receives progress events.
type Sink interface {
	Emit(ev Event)
}

// Noop discards every event.
type Noop struct{}

func (Noop) Emit(Event) {}

// Func adapts a plain function to a Sink.
type Func func(ev Event)

func (f Func) Emit(ev Event) { f(ev) }

// NewZapSink returns a Sink that writes events to a zap logger.
func NewZapSink(log *zap.Logger) Sink {
	return &zapSink{log: log}
}

type zapSink struct {
	log *zap.Logger
}

func (s *zapSink) Emit(ev Event) {
	fields := []zap.Field{}
	if ev.Total > 0 {
		fields = append(fields, zap.Int("index", ev.Index), zap.Int("total", ev.Total))
	}
	switch ev.Level {
	case LevelError:
		s.log.Error(ev.Message, fields...)
	case LevelWarning:
		s.log.Warn(ev.Message, fields...)
	default:
		s.log.Info(ev.Message, fields...)
	}
}

// OrNoop returns sink, or a Noop when sink is nil, so callers never have
// to nil-check before emitting.
func OrNoop(sink Sink) Sink {
	if sink == nil {
		return Noop{}
	}
	return sink
}
