package events

import (
	"time"

	"github.com/kilianp07/foundry/core/model"
)

// DispatchEvent is published once a dispatch run completes.
type DispatchEvent struct {
	RunID    string
	Process  string
	Assigned int
	Errors   int
	Duration time.Duration
}

// QueueEvent is published for each line queue handed to the publisher.
type QueueEvent struct {
	LineID string
	Size   int
	Err    error
}

// PlanStatus is the lifecycle state of a planner run.
type PlanStatus string

const (
	PlanQueued    PlanStatus = "queued"
	PlanRunning   PlanStatus = "running"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
)

// PlanEvent is published when a planner run changes status.
type PlanEvent struct {
	RunID    string
	Scenario string
	Status   PlanStatus
	Err      error
}

// PinEvent is emitted when pinned work changes. Action is one of "mark",
// "unmark", "move", "split" or "sync_lots".
type PinEvent struct {
	Action  string
	Key     model.PinKey
	SplitID int
	LineID  string
}
