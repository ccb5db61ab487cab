package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Shivanand-hulikatti/limited-claim/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent(counter string, remaining uint64) model.Event {
	return New(model.EventClaim, "alice", counter, remaining, time.Unix(1_700_000_000, 0).UTC())
}

func TestNewAssignsSortableIDs(t *testing.T) {
	at := time.Unix(1_700_000_000, 0).UTC()
	a := New(model.EventClaim, "alice", "c", 1, at)
	b := New(model.EventCancel, "alice", "c", 2, at.Add(time.Second))
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("ids %q and %q should be distinct and non-empty", a.ID, b.ID)
	}
	if a.ID >= b.ID {
		t.Fatalf("later event id %q should sort after %q", b.ID, a.ID)
	}
}

func TestRecorderKeepsMostRecent(t *testing.T) {
	r := NewRecorder(2)
	ctx := context.Background()
	r.Publish(ctx, testEvent("c1", 3))
	r.Publish(ctx, testEvent("c1", 2))
	r.Publish(ctx, testEvent("c1", 1))
	r.Publish(ctx, testEvent("c2", 9))

	got := r.Recent("c1")
	if len(got) != 2 {
		t.Fatalf("Recent(c1) len = %d, want 2", len(got))
	}
	if got[0].Remaining != 2 || got[1].Remaining != 1 {
		t.Fatalf("Recent(c1) = %+v, want remaining 2 then 1", got)
	}
	if len(r.Recent("c2")) != 1 {
		t.Fatal("events for c2 leaked across counters")
	}
	if len(r.Recent("missing")) != 0 {
		t.Fatal("unknown counter should have no events")
	}
}

func TestRecorderDisabled(t *testing.T) {
	r := NewRecorder(0)
	r.Publish(context.Background(), testEvent("c1", 1))
	if len(r.Recent("c1")) != 0 {
		t.Fatal("zero-limit recorder stored an event")
	}
}

func TestBusFansOut(t *testing.T) {
	a, b := NewRecorder(10), NewRecorder(10)
	bus := NewBus(a, b, NewLogSink(discardLogger()))
	bus.Publish(context.Background(), testEvent("c1", 4))

	if len(a.Recent("c1")) != 1 || len(b.Recent("c1")) != 1 {
		t.Fatal("every sink should receive the event exactly once")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.RecordResult(OpClaim, nil)
	m.RecordResult(OpClaim, model.ErrSoldOut)
	m.RecordResult(OpClaim, errors.New("driver exploded"))
	m.Publish(context.Background(), testEvent("c1", 7))

	if got := testutil.ToFloat64(m.operations.WithLabelValues(OpClaim, "ok")); got != 1 {
		t.Errorf("ok count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues(OpClaim, string(model.CodeSoldOut))); got != 1 {
		t.Errorf("sold_out count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues(OpClaim, string(model.CodeInternal))); got != 1 {
		t.Errorf("internal count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.remaining.WithLabelValues("c1")); got != 7 {
		t.Errorf("remaining gauge = %v, want 7", got)
	}

	if _, err := NewMetrics(reg); err == nil {
		t.Fatal("registering twice on one registry should fail")
	}
}

func TestHubDelivers(t *testing.T) {
	h := NewHub(discardLogger(), 1)
	ch, unsubscribe := h.Subscribe("c1")
	other, unsubOther := h.Subscribe("c2")
	defer unsubOther()

	h.Publish(context.Background(), testEvent("c1", 5))
	select {
	case ev := <-ch:
		if ev.Remaining != 5 {
			t.Fatalf("remaining = %d, want 5", ev.Remaining)
		}
	default:
		t.Fatal("subscriber did not receive event")
	}
	select {
	case ev := <-other:
		t.Fatalf("c2 subscriber received c1 event %+v", ev)
	default:
	}

	// Queue of one: the second publish is dropped, not blocked on.
	h.Publish(context.Background(), testEvent("c1", 4))
	h.Publish(context.Background(), testEvent("c1", 3))
	if ev := <-ch; ev.Remaining != 4 {
		t.Fatalf("remaining = %d, want 4", ev.Remaining)
	}

	unsubscribe()
	unsubscribe()
	if _, open := <-ch; open {
		t.Fatal("channel should be closed after unsubscribe")
	}
	if n := h.Subscribers("c1"); n != 0 {
		t.Fatalf("Subscribers(c1) = %d, want 0", n)
	}
	h.Publish(context.Background(), testEvent("c1", 2))
}
