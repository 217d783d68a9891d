package metrics

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDispatchRun forwards the run to all sinks, returning the first error encountered.
func (m *MultiSink) RecordDispatchRun(run DispatchRun) error {
	for _, s := range m.Sinks {
		if err := s.RecordDispatchRun(run); err != nil {
			return err
		}
	}
	return nil
}

// RecordPlanRun forwards planner runs to sinks supporting them.
func (m *MultiSink) RecordPlanRun(run PlanRun) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(PlanRunRecorder); ok {
			if err := rec.RecordPlanRun(run); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordQueuePublish forwards queue deliveries.
func (m *MultiSink) RecordQueuePublish(ev QueuePublishEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(QueuePublishRecorder); ok {
			if err := rec.RecordQueuePublish(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordPinChange forwards pin changes.
func (m *MultiSink) RecordPinChange(ev PinChangeEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(PinChangeRecorder); ok {
			if err := rec.RecordPinChange(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
