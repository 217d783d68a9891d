package model

import (
	"fmt"
	"sort"
	"time"
)

// Workday is one production day. Weekends and holidays are absent from the
// calendar rather than flagged.
type Workday struct {
	Index int       `json:"index" yaml:"index"`
	Date  time.Time `json:"date" yaml:"date"`
}

// Calendar is an ordered list of workdays addressed by index.
type Calendar []Workday

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Validate requires indexes to match positions and dates to strictly increase.
func (c Calendar) Validate() error {
	for i, w := range c {
		if w.Index != i {
			return fmt.Errorf("workday %d has index %d", i, w.Index)
		}
		if i > 0 && !Day(w.Date).After(Day(c[i-1].Date)) {
			return fmt.Errorf("workday %d (%s) not after %s", i,
				w.Date.Format(time.DateOnly), c[i-1].Date.Format(time.DateOnly))
		}
	}
	return nil
}

// IndexOnOrAfter returns the first workday index on or after t. Dates past the
// end of the calendar map to len(c).
func (c Calendar) IndexOnOrAfter(t time.Time) int {
	target := Day(t)
	return sort.Search(len(c), func(i int) bool {
		return !Day(c[i].Date).Before(target)
	})
}

// Date returns the date of workday i, or false when i is out of range.
func (c Calendar) Date(i int) (time.Time, bool) {
	if i < 0 || i >= len(c) {
		return time.Time{}, false
	}
	return c[i].Date, true
}

// NewCalendar builds a calendar from dates, skipping weekends and the given
// holidays.
func NewCalendar(from time.Time, days int, holidays ...time.Time) Calendar {
	skip := make(map[time.Time]bool, len(holidays))
	for _, h := range holidays {
		skip[Day(h)] = true
	}
	var cal Calendar
	for d := Day(from); len(cal) < days; d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday || skip[d] {
			continue
		}
		cal = append(cal, Workday{Index: len(cal), Date: d})
	}
	return cal
}
