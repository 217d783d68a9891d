package dispatch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kilianp07/foundry/core/constraint"
	"github.com/kilianp07/foundry/core/model"
)

// NoStartBy is used for jobs without any date information so they sort last.
var NoStartBy = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// StartBy returns the date work on the job must begin. An explicit override
// wins; otherwise the due date is backed off by the part's downstream lead
// times. part may be nil when the master data is missing.
func StartBy(job model.Job, part *model.Part) time.Time {
	if job.StartBy != nil {
		return *job.StartBy
	}
	if job.DueDate == nil {
		return NoStartBy
	}
	if part == nil {
		return *job.DueDate
	}
	return job.DueDate.AddDate(0, 0, -part.LeadTimeDays())
}

type pending struct {
	job     model.Job
	startBy time.Time
}

// less orders jobs by priority, start-by and due date, then by identifiers so
// that identical inputs always produce the same order.
func less(a, b pending) bool {
	if a.job.Priority != b.job.Priority {
		return a.job.Priority < b.job.Priority
	}
	if !a.startBy.Equal(b.startBy) {
		return a.startBy.Before(b.startBy)
	}
	if c := compareDue(a.job.DueDate, b.job.DueDate); c != 0 {
		return c < 0
	}
	if a.job.OrderID != b.job.OrderID {
		return a.job.OrderID < b.job.OrderID
	}
	if a.job.Position != b.job.Position {
		return a.job.Position < b.job.Position
	}
	if a.job.IsTest != b.job.IsTest {
		return !a.job.IsTest
	}
	return a.job.ID < b.job.ID
}

// compareDue sorts missing due dates last.
func compareDue(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case b.Before(*a):
		return 1
	}
	return 0
}

// Schedule assigns pending jobs to lines. Pinned rows are queued first, as
// given, and count toward line load; jobs whose pin key is pinned are left to
// their pins. Each remaining job goes to the least loaded compatible line,
// lowest line id on ties. Schedule performs no I/O.
//
//gocyclo:ignore
func Schedule(lines []model.Line, jobs []model.Job, parts map[string]model.Part, pinned []model.PinnedRow) Result {
	res := Result{Queues: make([]Queue, len(lines)), Errors: []JobError{}}
	index := make(map[string]int, len(lines))
	for i, l := range lines {
		index[l.ID] = i
		res.Queues[i] = Queue{LineID: l.ID, Process: l.Process, Capacity: l.Capacity, Assignments: []Assignment{}}
	}

	pinnedKeys := make(map[model.PinKey]bool, len(pinned))
	for _, row := range pinned {
		pinnedKeys[row.Job.PinKey()] = true
		i, ok := index[row.LineID]
		if !ok {
			res.Errors = append(res.Errors, jobError(row.Job, ErrPinnedUnknownLine,
				fmt.Sprintf("split %d pinned to line %q", row.SplitID, row.LineID)))
			continue
		}
		var part *model.Part
		if p, ok := parts[row.Job.MaterialID]; ok {
			part = &p
		}
		q := &res.Queues[i]
		q.Load += row.Quantity
		a := assignment(row.Job, row.LineID, row.Quantity, StartBy(row.Job, part), q.Load)
		a.Pinned = true
		a.SplitID = row.SplitID
		q.Assignments = append(q.Assignments, a)
	}

	queue := make([]pending, 0, len(jobs))
	for _, j := range jobs {
		if pinnedKeys[j.PinKey()] {
			continue
		}
		var part *model.Part
		if p, ok := parts[j.MaterialID]; ok {
			part = &p
		}
		queue = append(queue, pending{job: j, startBy: StartBy(j, part)})
	}
	sort.SliceStable(queue, func(a, b int) bool { return less(queue[a], queue[b]) })

	for _, p := range queue {
		j := p.job
		if j.Quantity < 0 {
			res.Errors = append(res.Errors, jobError(j, ErrInvalidQuantity, fmt.Sprintf("quantity %d", j.Quantity)))
			continue
		}
		part, ok := parts[j.MaterialID]
		if !ok {
			res.Errors = append(res.Errors, jobError(j, ErrMissingMasterData, fmt.Sprintf("material %q", j.MaterialID)))
			continue
		}
		eligible := constraint.Eligible(lines, part)
		if len(eligible) == 0 {
			res.Errors = append(res.Errors, jobError(j, ErrNoCompatibleLine, rejections(lines, part)))
			continue
		}
		best := -1
		for _, l := range eligible {
			i := index[l.ID]
			q := res.Queues[i]
			if q.Capacity > 0 && q.Load+j.Quantity > q.Capacity {
				continue
			}
			if best < 0 || q.Load < res.Queues[best].Load ||
				(q.Load == res.Queues[best].Load && q.LineID < res.Queues[best].LineID) {
				best = i
			}
		}
		if best < 0 {
			res.Errors = append(res.Errors, jobError(j, ErrCapacityExhausted,
				fmt.Sprintf("%d compatible lines full", len(eligible))))
			continue
		}
		q := &res.Queues[best]
		q.Load += j.Quantity
		q.Assignments = append(q.Assignments, assignment(j, q.LineID, j.Quantity, p.startBy, q.Load))
	}
	return res
}

// rejections names, per line, the attribute that turned the part away.
func rejections(lines []model.Line, part model.Part) string {
	if len(lines) == 0 {
		return "no lines configured"
	}
	reasons := make([]string, 0, len(lines))
	for _, l := range lines {
		if ok, attr := constraint.Explain(l, part); !ok {
			reasons = append(reasons, fmt.Sprintf("%s rejects %s", l.ID, attr))
		}
	}
	return strings.Join(reasons, "; ")
}

func assignment(j model.Job, lineID string, qty int, startBy time.Time, load int) Assignment {
	return Assignment{
		JobID:      j.ID,
		OrderID:    j.OrderID,
		Position:   j.Position,
		MaterialID: j.MaterialID,
		LineID:     lineID,
		Quantity:   qty,
		Priority:   j.Priority,
		IsTest:     j.IsTest,
		StartBy:    startBy,
		DueDate:    j.DueDate,
		Notes:      j.Notes,
		LoadAfter:  load,
	}
}

func jobError(j model.Job, kind ErrorKind, detail string) JobError {
	return JobError{JobID: j.ID, OrderID: j.OrderID, Position: j.Position, Kind: kind, Detail: detail}
}
