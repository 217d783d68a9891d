package metrics

import "time"

// DispatchRun summarises one dispatch run.
type DispatchRun struct {
	RunID     string
	Process   string
	Jobs      int
	Assigned  int
	Pinned    int
	Errors    map[string]int // by error kind
	LineLoads map[string]int
	Duration  time.Duration
	Time      time.Time
}

// MetricsSink records scheduling results for observability purposes.
type MetricsSink interface {
	RecordDispatchRun(run DispatchRun) error
}

// PlanRun summarises one capacity planning run.
type PlanRun struct {
	RunID           string
	Scenario        string
	Solver          string
	Orders          int
	Completed       int
	Skipped         int
	Errors          int
	TotalLateDays   int
	Objective       int
	MoldsPlanned    int
	HorizonExceeded bool
	TimedOut        bool
	Duration        time.Duration
	Time            time.Time
}

// PlanRunRecorder is implemented by sinks able to record planner runs.
type PlanRunRecorder interface {
	RecordPlanRun(run PlanRun) error
}

// QueuePublishEvent records the delivery of a line queue to its terminal.
type QueuePublishEvent struct {
	LineID  string
	Process string
	Size    int
	Latency time.Duration
	Error   string
	Time    time.Time
}

// QueuePublishRecorder records queue deliveries.
type QueuePublishRecorder interface {
	RecordQueuePublish(ev QueuePublishEvent) error
}

// PinChangeEvent records an operator change to pinned work.
type PinChangeEvent struct {
	Action  string
	Key     string
	SplitID int
	LineID  string
	Time    time.Time
}

// PinChangeRecorder records pin registry changes.
type PinChangeRecorder interface {
	RecordPinChange(ev PinChangeEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDispatchRun(DispatchRun) error        { return nil }
func (NopSink) RecordPlanRun(PlanRun) error                { return nil }
func (NopSink) RecordQueuePublish(QueuePublishEvent) error { return nil }
func (NopSink) RecordPinChange(PinChangeEvent) error       { return nil }
