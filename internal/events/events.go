// Package events delivers ClaimEvent and CancelEvent records to external
// consumers: the structured log, a per-counter audit history, Prometheus,
// and live websocket subscribers.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Shivanand-hulikatti/limited-claim/internal/model"
)

// Sink receives committed events. Publish must not block for long; it runs
// on the request path.
type Sink interface {
	Publish(ctx context.Context, ev model.Event)
}

// Bus fans each event out to every sink in order.
type Bus struct {
	sinks []Sink
}

// NewBus constructs a Bus over sinks.
func NewBus(sinks ...Sink) *Bus {
	return &Bus{sinks: sinks}
}

func (b *Bus) Publish(ctx context.Context, ev model.Event) {
	for _, s := range b.sinks {
		s.Publish(ctx, ev)
	}
}

// New builds an event stamped at at with a fresh ULID.
func New(kind model.EventKind, claimer, counterID string, remaining uint64, at time.Time) model.Event {
	return model.Event{
		ID:         ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		Kind:       kind,
		Claimer:    claimer,
		Counter:    counterID,
		Remaining:  remaining,
		OccurredAt: at,
	}
}

// LogSink writes every event to a structured logger.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(ctx context.Context, ev model.Event) {
	s.log.InfoContext(ctx, "event."+string(ev.Kind),
		"event_id", ev.ID,
		"claimer", ev.Claimer,
		"counter", ev.Counter,
		"remaining", ev.Remaining,
	)
}
