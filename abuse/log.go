package abuse

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Log is the append-only abuse signal log. Record never fails from the
// caller's point of view.
type Log struct {
	sink       Sink
	dispatcher *Dispatcher
	log        *zap.Logger
	now        func() time.Time
}

// Option customizes a Log.
type Option func(*Log)

// WithDispatcher routes events through d instead of calling the sink inline.
func WithDispatcher(d *Dispatcher) Option {
	return func(l *Log) {
		l.dispatcher = d
	}
}

// WithClock replaces the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLog returns a log writing to sink. A nil sink drops events.
func NewLog(sink Sink, log *zap.Logger, opts ...Option) *Log {
	if sink == nil {
		sink = NoOpSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	l := &Log{
		sink: sink,
		log:  log,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends one event. Sink errors and panics are logged and
// swallowed.
func (l *Log) Record(ctx context.Context, category Category, detail, ip string, metadata map[string]string) {
	if l == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	defer func() {
		if r := recover(); r != nil {
			l.log.Error("abuse log panicked", zap.Any("panic", r), zap.String("category", string(category)))
		}
	}()

	now := l.now()
	event := Event{
		ID:        newID(now),
		Timestamp: now.UTC(),
		IP:        ip,
		Category:  category,
		Detail:    detail,
		Metadata:  metadata,
	}

	var err error
	if l.dispatcher != nil {
		err = l.dispatcher.Emit(ctx, event)
	} else {
		err = l.sink.Emit(ctx, event)
	}
	if err != nil {
		l.log.Warn("abuse event not recorded",
			zap.String("category", string(category)),
			zap.String("ip", ip),
			zap.Error(err),
		)
	}
}

// Dropped reports events lost by the asynchronous dispatcher.
func (l *Log) Dropped() uint64 {
	if l == nil {
		return 0
	}
	return l.dispatcher.Dropped()
}

// Close drains the dispatcher, if any.
func (l *Log) Close() {
	if l == nil {
		return
	}
	l.dispatcher.Close()
}
