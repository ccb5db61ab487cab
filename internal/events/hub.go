package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Shivanand-hulikatti/limited-claim/internal/model"
)

// Hub fans events out to live subscribers of a counter. A subscriber that
// falls behind by more than its queue size misses events instead of stalling
// the publisher.
type Hub struct {
	log   *slog.Logger
	queue int

	mu   sync.Mutex
	subs map[string]map[chan model.Event]struct{}
}

// NewHub constructs a Hub whose subscribers buffer up to queue events.
func NewHub(log *slog.Logger, queue int) *Hub {
	if queue <= 0 {
		queue = 16
	}
	return &Hub{
		log:   log,
		queue: queue,
		subs:  make(map[string]map[chan model.Event]struct{}),
	}
}

// Subscribe registers for events of counterID. The returned func removes the
// subscription and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(counterID string) (<-chan model.Event, func()) {
	ch := make(chan model.Event, h.queue)

	h.mu.Lock()
	set := h.subs[counterID]
	if set == nil {
		set = make(map[chan model.Event]struct{})
		h.subs[counterID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, counterID)
			}
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions on counterID.
func (h *Hub) Subscribers(counterID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[counterID])
}

func (h *Hub) Publish(ctx context.Context, ev model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[ev.Counter] {
		select {
		case ch <- ev:
		default:
			h.log.WarnContext(ctx, "hub.drop", "counter", ev.Counter, "event_id", ev.ID)
		}
	}
}
