package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/foundry/core/events"
	"github.com/kilianp07/foundry/internal/eventbus"
)

// EventCollector counts bus events by type and outcome.
type EventCollector struct {
	events *prometheus.CounterVec
}

// NewEventCollector registers the bus event counter on reg, or on the
// default registerer when reg is nil.
func NewEventCollector(reg prometheus.Registerer) (*EventCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	vec, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_events_total",
		Help: "Scheduling events seen on the event bus",
	}, []string{"event", "outcome"}))
	if err != nil {
		return nil, err
	}
	return &EventCollector{events: vec}, nil
}

// Observe classifies one bus event. Unknown event types are ignored.
func (c *EventCollector) Observe(ev any) {
	switch e := ev.(type) {
	case events.DispatchEvent:
		outcome := "ok"
		if e.Errors > 0 {
			outcome = "with_errors"
		}
		c.events.WithLabelValues("dispatch", outcome).Inc()
	case events.QueueEvent:
		outcome := "ok"
		if e.Err != nil {
			outcome = "failed"
		}
		c.events.WithLabelValues("queue", outcome).Inc()
	case events.PlanEvent:
		c.events.WithLabelValues("plan", string(e.Status)).Inc()
	case events.PinEvent:
		c.events.WithLabelValues("pin", e.Action).Inc()
	}
}

// Start subscribes to the event bus and counts events until ctx is canceled.
func (c *EventCollector) Start(ctx context.Context, bus eventbus.EventBus) {
	if bus == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				c.Observe(ev)
			}
		}
	}()
}
