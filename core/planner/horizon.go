package planner

import "github.com/kilianp07/foundry/core/model"

// SuggestHorizon returns a planning horizon, as a workday index, covering the
// latest due date plus ten percent slack (at least one workday). The boolean is
// false when no order has a due date or the calendar is empty, meaning the
// whole calendar should be used.
func SuggestHorizon(orders []model.PlannerOrder, workdays model.Calendar) (int, bool) {
	if len(workdays) == 0 {
		return 0, false
	}
	var latest *model.PlannerOrder
	for i := range orders {
		o := &orders[i]
		if o.DueDate == nil {
			continue
		}
		if latest == nil || o.DueDate.After(*latest.DueDate) {
			latest = o
		}
	}
	if latest == nil {
		return 0, false
	}
	idx := workdays.IndexOnOrAfter(*latest.DueDate)
	slack := max(1, (idx+9)/10)
	return min(idx+slack, len(workdays)-1), true
}
