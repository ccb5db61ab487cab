package events

import (
	"context"
	"sync"

	"github.com/Shivanand-hulikatti/limited-claim/internal/model"
)

// Recorder keeps the most recent events of each counter for the audit feed.
type Recorder struct {
	limit int

	mu        sync.RWMutex
	byCounter map[string][]model.Event
}

// NewRecorder keeps up to limit events per counter. A limit of zero records
// nothing.
func NewRecorder(limit int) *Recorder {
	return &Recorder{
		limit:     limit,
		byCounter: make(map[string][]model.Event),
	}
}

func (r *Recorder) Publish(_ context.Context, ev model.Event) {
	if r.limit <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	evs := append(r.byCounter[ev.Counter], ev)
	if len(evs) > r.limit {
		evs = append([]model.Event(nil), evs[len(evs)-r.limit:]...)
	}
	r.byCounter[ev.Counter] = evs
}

// Recent returns the recorded events of counterID, oldest first.
func (r *Recorder) Recent(counterID string) []model.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	evs := r.byCounter[counterID]
	out := make([]model.Event, len(evs))
	copy(out, evs)
	return out
}
