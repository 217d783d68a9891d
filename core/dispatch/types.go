package dispatch

import (
	"fmt"
	"time"
)

// ErrorKind classifies a per-job dispatch failure.
type ErrorKind string

const (
	ErrMissingMasterData ErrorKind = "missing_master_data"
	ErrNoCompatibleLine  ErrorKind = "no_compatible_line"
	ErrCapacityExhausted ErrorKind = "capacity_exhausted"
	ErrInvalidQuantity   ErrorKind = "invalid_quantity"
	ErrPinnedUnknownLine ErrorKind = "pinned_unknown_line"
)

// JobError is a soft failure for a single job. The batch always completes.
type JobError struct {
	JobID    string    `json:"job_id"`
	OrderID  string    `json:"order_id"`
	Position string    `json:"position"`
	Kind     ErrorKind `json:"kind"`
	Detail   string    `json:"detail,omitempty"`
}

func (e JobError) Error() string {
	return fmt.Sprintf("job %s (%s/%s): %s %s", e.JobID, e.OrderID, e.Position, e.Kind, e.Detail)
}

// Assignment places a job, or a pinned split of one, on a line.
type Assignment struct {
	JobID      string     `json:"job_id"`
	OrderID    string     `json:"order_id"`
	Position   string     `json:"position"`
	MaterialID string     `json:"material_id"`
	LineID     string     `json:"line_id"`
	Quantity   int        `json:"quantity"`
	Priority   int        `json:"priority"`
	IsTest     bool       `json:"is_test"`
	StartBy    time.Time  `json:"start_by"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Pinned     bool       `json:"pinned"`
	SplitID    int        `json:"split_id,omitempty"`
	// LoadAfter is the line load once this assignment is queued.
	LoadAfter int `json:"load_after"`
}

// Queue is the ordered work of one line.
type Queue struct {
	LineID      string       `json:"line_id"`
	Process     string       `json:"process"`
	Assignments []Assignment `json:"assignments"`
	Load        int          `json:"load"`
	Capacity    int          `json:"capacity,omitempty"`
}

// Result is the output of a dispatch run. Queues follow the order of the lines
// given to Schedule.
type Result struct {
	Queues []Queue    `json:"queues"`
	Errors []JobError `json:"errors"`
}

// Queue returns the queue of a line.
func (r Result) Queue(lineID string) (Queue, bool) {
	for _, q := range r.Queues {
		if q.LineID == lineID {
			return q, true
		}
	}
	return Queue{}, false
}

// Assigned counts assignments over all queues.
func (r Result) Assigned() int {
	n := 0
	for _, q := range r.Queues {
		n += len(q.Assignments)
	}
	return n
}

// ErrorsByKind groups error counts by kind.
func (r Result) ErrorsByKind() map[ErrorKind]int {
	out := make(map[ErrorKind]int)
	for _, e := range r.Errors {
		out[e.Kind]++
	}
	return out
}
