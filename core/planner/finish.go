package planner

import "sort"

// finishWindow returns the finishing duration in workdays and in hours for an
// order whose molds shake out on day shakeout. When the nominal duration would
// make the order late it is shortened by whole days, never below the minimum.
func finishWindow(o *orderState, shakeout int) (days int, hours float64) {
	nominal := hoursToDays(o.part.FinishHours)
	if !o.hasDue || shakeout+nominal <= o.dueIdx {
		return nominal, o.part.FinishHours
	}
	days = max(hoursToDays(o.part.MinFinishHours), o.dueIdx-shakeout)
	if days >= nominal {
		return nominal, o.part.FinishHours
	}
	return days, float64(days * hoursPerDay)
}

// finalize turns the ledger bookings into the output schedule.
func (r *run) finalize() *Schedule {
	s := r.sched
	for _, o := range r.orders {
		id := o.order.OrderID
		if len(o.molds) > 0 {
			molds := make(map[int]int, len(o.molds))
			pour := make(map[int]int, len(o.molds))
			shake := make(map[int]int, len(o.molds))
			for d, q := range o.molds {
				molds[d] = q
				pour[d] = q
				shake[d+o.cool] += q
			}
			s.MoldsSchedule[id] = molds
			s.PourDays[id] = pour
			s.ShakeoutDays[id] = shake
		}
		if o.remaining > 0 {
			s.SkippedOrders++
			s.UnfinishedOrders = append(s.UnfinishedOrders, id)
			s.Objective += o.remaining
			continue
		}
		last := 0
		for d := range o.molds {
			last = max(last, d)
		}
		shakeout := last + o.cool
		days, hours := finishWindow(o, shakeout)
		completion := shakeout + days
		late := 0
		if o.hasDue && completion > o.dueIdx {
			late = completion - o.dueIdx
		}
		s.CompletionDays[id] = completion
		s.FinishHoursReal[id] = hours
		s.LateDays[id] = late
		s.Objective += late
	}
	s.HorizonExceeded = s.SkippedOrders > 0 && !s.TimedOut
	sort.SliceStable(s.Errors, func(i, j int) bool { return s.Errors[i].OrderID < s.Errors[j].OrderID })
	return s
}
