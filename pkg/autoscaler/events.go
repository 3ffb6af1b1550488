package autoscaler

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"tierscale/pkg/logger"
)

// EventSink receives scaling events. Emit must not block for long and must
// be safe for concurrent use.
type EventSink interface {
	Emit(ctx context.Context, event ScalingEvent)
}

// EventSinkFunc adapts a function into an EventSink
type EventSinkFunc func(ctx context.Context, event ScalingEvent)

// Emit calls f
func (f EventSinkFunc) Emit(ctx context.Context, event ScalingEvent) {
	f(ctx, event)
}

// LogSink writes events as structured log lines
type LogSink struct{}

// Emit logs event at info level, provider failures at warn
func (LogSink) Emit(ctx context.Context, event ScalingEvent) {
	fields := []zap.Field{
		zap.String("trace_id", logger.TraceID(ctx)),
		zap.String("event_id", event.ID),
		zap.String("event", string(event.Type)),
		zap.String("queue_type", string(event.QueueType)),
		zap.Int("before", event.Before),
		zap.Int("after", event.After),
	}
	if event.Source != "" {
		fields = append(fields, zap.String("source", string(event.Source)))
	}
	if event.Type == EventProviderFailure {
		logger.Log.Warn(event.Message, fields...)
		return
	}
	logger.Log.Info(event.Message, fields...)
}

// MultiSink fans events out to every sink in order
type MultiSink []EventSink

// Emit forwards event to each sink
func (m MultiSink) Emit(ctx context.Context, event ScalingEvent) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}

// Recorder keeps the most recent events in memory for the status API
type Recorder struct {
	mu     sync.RWMutex
	events []ScalingEvent
	next   int
	full   bool
}

const defaultRecorderSize = 50

// NewRecorder creates a ring of size events
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = defaultRecorderSize
	}
	return &Recorder{events: make([]ScalingEvent, size)}
}

// Emit stores event, overwriting the oldest once the ring is full
func (r *Recorder) Emit(_ context.Context, event ScalingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.next] = event
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to limit events, newest first. limit <= 0 returns all.
func (r *Recorder) Recent(limit int) []ScalingEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := r.next
	if r.full {
		count = len(r.events)
	}
	if limit <= 0 || limit > count {
		limit = count
	}

	out := make([]ScalingEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.events)) % len(r.events)
		out = append(out, r.events[idx])
	}
	return out
}
