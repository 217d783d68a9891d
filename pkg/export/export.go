// Package export renders line queues and mold plans for operators and
// downstream spreadsheets.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/kilianp07/foundry/core/dispatch"
	"github.com/kilianp07/foundry/core/model"
	"github.com/kilianp07/foundry/core/planner"
)

// WriteJSON writes v to w as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var queueHeader = []string{
	"line_id", "rank", "job_id", "order_id", "position", "material_id",
	"quantity", "priority", "start_by", "due_date", "pinned", "split_id", "load_after",
}

// WriteQueuesCSV writes one row per assignment, queues in the given order.
func WriteQueuesCSV(w io.Writer, queues []dispatch.Queue) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(queueHeader); err != nil {
		return err
	}
	for _, q := range queues {
		for i, a := range q.Assignments {
			due := ""
			if a.DueDate != nil {
				due = a.DueDate.Format(time.DateOnly)
			}
			rec := []string{
				q.LineID,
				strconv.Itoa(i + 1),
				a.JobID,
				a.OrderID,
				a.Position,
				a.MaterialID,
				strconv.Itoa(a.Quantity),
				strconv.Itoa(a.Priority),
				a.StartBy.Format(time.DateOnly),
				due,
				strconv.FormatBool(a.Pinned),
				strconv.Itoa(a.SplitID),
				strconv.Itoa(a.LoadAfter),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

var planHeader = []string{
	"order_id", "mold_day", "mold_date", "molds", "shakeout_day", "completion_day", "completion_date", "late_days",
}

// WritePlanCSV writes one row per order and molding day, ordered by order id
// then day. Dates come from cal and are left empty past its end.
func WritePlanCSV(w io.Writer, s *planner.Schedule, cal model.Calendar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(planHeader); err != nil {
		return err
	}
	date := func(i int) string {
		if d, ok := cal.Date(i); ok {
			return d.Format(time.DateOnly)
		}
		return ""
	}
	orders := make([]string, 0, len(s.MoldsSchedule))
	for id := range s.MoldsSchedule {
		orders = append(orders, id)
	}
	sort.Strings(orders)
	for _, id := range orders {
		days := make([]int, 0, len(s.MoldsSchedule[id]))
		for d := range s.MoldsSchedule[id] {
			days = append(days, d)
		}
		sort.Ints(days)
		completion, completed := s.CompletionDays[id]
		cool := coolingOffset(days, s.ShakeoutDays[id])
		for _, d := range days {
			rec := []string{
				id,
				strconv.Itoa(d),
				date(d),
				strconv.Itoa(s.MoldsSchedule[id][d]),
				strconv.Itoa(d + cool),
				"",
				"",
				"",
			}
			if completed {
				rec[5] = strconv.Itoa(completion)
				rec[6] = date(completion)
				rec[7] = strconv.Itoa(s.LateDays[id])
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// coolingOffset recovers the per-order cooling in workdays. Shakeout days
// are the mold days shifted by a constant, so the earliest of each match.
func coolingOffset(moldDays []int, shakeout map[int]int) int {
	if len(moldDays) == 0 || len(shakeout) == 0 {
		return 0
	}
	first := -1
	for d := range shakeout {
		if first < 0 || d < first {
			first = d
		}
	}
	return first - moldDays[0]
}
