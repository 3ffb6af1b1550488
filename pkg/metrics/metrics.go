package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"tierscale/pkg/autoscaler"
)

const namespace = "tierscale"

const (
	labelQueueType = "queue_type"
	labelDirection = "direction"
	labelSource    = "source"
)

// Emitter turns scaling events into Prometheus metrics. It is an
// autoscaler.EventSink.
type Emitter struct {
	scalingTotal     *prometheus.CounterVec
	requestedWorkers *prometheus.GaugeVec
	cascadeTotal     *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
}

var _ autoscaler.EventSink = (*Emitter)(nil)

// NewEmitter registers the scaling metrics with registry
func NewEmitter(registry prometheus.Registerer) (*Emitter, error) {
	e := &Emitter{
		scalingTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scaling_operations_total",
				Help:      "Total number of accepted worker scaling requests",
			},
			[]string{labelQueueType, labelDirection},
		),
		requestedWorkers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requested_workers",
				Help:      "Worker count last requested from the fleet for each queue type",
			},
			[]string{labelQueueType},
		),
		cascadeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cascade_activations_total",
				Help:      "Lower tier queue types activated after a higher tier drained",
			},
			[]string{labelQueueType, labelSource},
		),
		providerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_failures_total",
				Help:      "Evaluations skipped because a metrics or fleet provider failed",
			},
			[]string{labelQueueType},
		),
	}

	collectors := map[string]prometheus.Collector{
		"scaling_operations_total":  e.scalingTotal,
		"requested_workers":         e.requestedWorkers,
		"cascade_activations_total": e.cascadeTotal,
		"provider_failures_total":   e.providerFailures,
	}
	for name, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register %s metric: %w", name, err)
		}
	}
	return e, nil
}

// Emit updates the metrics for event
func (e *Emitter) Emit(_ context.Context, event autoscaler.ScalingEvent) {
	queueType := string(event.QueueType)

	switch event.Type {
	case autoscaler.EventHire, autoscaler.EventFire:
		e.scalingTotal.WithLabelValues(queueType, string(event.Type)).Inc()
		e.requestedWorkers.WithLabelValues(queueType).Set(float64(event.After))
	case autoscaler.EventCascade:
		e.cascadeTotal.WithLabelValues(queueType, string(event.Source)).Inc()
	case autoscaler.EventProviderFailure:
		e.providerFailures.WithLabelValues(queueType).Inc()
	}
}
