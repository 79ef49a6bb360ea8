package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"crosslock/core/events"
)

// SwapMetrics tracks escrow lifecycle activity across both chains.
type SwapMetrics struct {
	escrowEvents  *prometheus.CounterVec
	resolverCalls *prometheus.CounterVec
}

var (
	swapOnce     sync.Once
	swapRegistry *SwapMetrics
)

// Swap returns the process-wide swap metrics registry.
func Swap() *SwapMetrics {
	swapOnce.Do(func() {
		swapRegistry = &SwapMetrics{
			escrowEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslock",
				Subsystem: "escrow",
				Name:      "events_total",
				Help:      "Count of escrow lifecycle events by type.",
			}, []string{"type"}),
			resolverCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "crosslock",
				Subsystem: "resolver",
				Name:      "calls_total",
				Help:      "Count of resolver operations by method and outcome.",
			}, []string{"method", "outcome"}),
		}
		prometheus.MustRegister(swapRegistry.escrowEvents, swapRegistry.resolverCalls)
	})
	return swapRegistry
}

// RecordEvent increments the lifecycle counter for the given event type.
func (m *SwapMetrics) RecordEvent(eventType string) {
	if m == nil || eventType == "" {
		return
	}
	m.escrowEvents.WithLabelValues(eventType).Inc()
}

// RecordResolverCall increments the resolver operation counter.
func (m *SwapMetrics) RecordResolverCall(method, outcome string) {
	if m == nil {
		return
	}
	m.resolverCalls.WithLabelValues(method, outcome).Inc()
}

// EventCounter is an events.Emitter that counts emissions by type. Wrap it
// around the real emitter chain to get lifecycle metrics for free.
type EventCounter struct {
	Next events.Emitter
}

// Emit implements the events.Emitter interface.
func (c EventCounter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	Swap().RecordEvent(evt.EventType())
	if c.Next != nil {
		c.Next.Emit(evt)
	}
}
