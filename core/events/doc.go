// Package events defines the scheduling events emitted on the event bus.
//
// Available event types:
//   - DispatchEvent: a dispatch run finished
//   - QueueEvent: a line queue was published, or failed to be
//   - PlanEvent: a planner run changed status
//   - PinEvent: pinned work was marked, moved, split or released
package events
