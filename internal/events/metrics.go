package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Shivanand-hulikatti/limited-claim/internal/model"
)

// Metrics counts operation outcomes and tracks the remaining slots of every
// counter initialized or touched by an event.
type Metrics struct {
	operations *prometheus.CounterVec
	remaining  *prometheus.GaugeVec
}

// Operation names used as the "op" label.
const (
	OpInitialize = "initialize"
	OpClaim      = "claim"
	OpCancel     = "cancel"
)

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "limited_claim",
			Name:      "operations_total",
			Help:      "Initialize, claim and cancel calls by result code.",
		}, []string{"op", "code"}),
		remaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "limited_claim",
			Name:      "remaining",
			Help:      "Unclaimed slots per counter after the latest committed event.",
		}, []string{"counter"}),
	}
	for _, c := range []prometheus.Collector{m.operations, m.remaining} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	// Pre-create series so dashboards see zeros instead of gaps.
	for _, op := range []string{OpInitialize, OpClaim, OpCancel} {
		m.operations.WithLabelValues(op, "ok")
		for _, code := range model.Codes() {
			m.operations.WithLabelValues(op, string(code))
		}
	}
	return m, nil
}

// RecordResult counts one call of op. A nil err is counted as "ok".
func (m *Metrics) RecordResult(op string, err error) {
	code := "ok"
	if err != nil {
		code = string(model.CodeOf(err))
	}
	m.operations.WithLabelValues(op, code).Inc()
}

// SetRemaining records the remaining slots of a counter outside of an event.
// The service calls it right after a counter is initialized.
func (m *Metrics) SetRemaining(counterID string, remaining uint64) {
	m.remaining.WithLabelValues(counterID).Set(float64(remaining))
}

func (m *Metrics) Publish(_ context.Context, ev model.Event) {
	m.SetRemaining(ev.Counter, ev.Remaining)
}
