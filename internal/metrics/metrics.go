// Package metrics exports engine events as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/petrijr/flowgate/pkg/api"
)

// Subscriber is the part of api.Engine the collector listens on.
type Subscriber interface {
	SubscribeAll(h api.Handler) api.SubscriptionID
}

// Collector turns bus events into counters, a gauge of held locks and a
// histogram of retries per finished operation.
type Collector struct {
	events      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	operations  *prometheus.CounterVec
	retries     prometheus.Histogram
	locks       prometheus.Gauge
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowgate",
				Name:      "events_total",
				Help:      "Events published on the engine bus.",
			},
			[]string{"event"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowgate",
				Name:      "stage_transitions_total",
				Help:      "Committed stage transitions.",
			},
			[]string{"from", "to"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowgate",
				Name:      "operations_finished_total",
				Help:      "Operations that reached a terminal status.",
			},
			[]string{"type", "status"},
		),
		retries: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "flowgate",
				Name:      "operation_retries",
				Help:      "Failed attempts per finished operation.",
				Buckets:   []float64{0, 1, 2, 3, 5, 10},
			},
		),
		locks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "flowgate",
				Name:      "locks_held",
				Help:      "Locks currently held.",
			},
		),
	}

	for _, col := range []prometheus.Collector{c.events, c.transitions, c.operations, c.retries, c.locks} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// lockLister is implemented by api.Engine.
type lockLister interface {
	ListLocks(ctx context.Context) ([]api.Lock, error)
}

// Attach subscribes the collector to every event of s. When s can list its
// locks, the held-locks gauge starts from that count, so locks restored at
// startup are included.
func (c *Collector) Attach(s Subscriber) api.SubscriptionID {
	id := s.SubscribeAll(c.Handle)
	if l, ok := s.(lockLister); ok {
		if locks, err := l.ListLocks(context.Background()); err == nil {
			c.locks.Set(float64(len(locks)))
		}
	}
	return id
}

// Handle records one event.
func (c *Collector) Handle(ev api.Event) {
	c.events.WithLabelValues(string(ev.Type)).Inc()

	switch ev.Type {
	case api.EventWorkflowAdvanced:
		if ev.Workflow != nil && len(ev.Workflow.Transitions) > 0 {
			t := ev.Workflow.Transitions[len(ev.Workflow.Transitions)-1]
			c.transitions.WithLabelValues(t.FromStage, t.ToStage).Inc()
		}
	case api.EventOperationCompleted, api.EventOperationFailed:
		if ev.Operation != nil {
			c.operations.WithLabelValues(string(ev.Operation.OperationType), string(ev.Operation.Status)).Inc()
			c.retries.Observe(float64(ev.Operation.RetryCount))
		}
	case api.EventLockAcquired:
		c.locks.Inc()
	case api.EventLockReleased, api.EventLockExpired:
		c.locks.Dec()
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
