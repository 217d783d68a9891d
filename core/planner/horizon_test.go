package planner

import (
	"testing"

	"github.com/kilianp07/foundry/core/model"
)

func TestSuggestHorizon(t *testing.T) {
	cal := workdays(30)
	tests := []struct {
		name   string
		orders []model.PlannerOrder
		cal    model.Calendar
		want   int
		ok     bool
	}{
		{"no due dates", []model.PlannerOrder{{OrderID: "a"}}, cal, 0, false},
		{"empty calendar", []model.PlannerOrder{{OrderID: "a", DueDate: datePtr("2024-01-15")}}, nil, 0, false},
		{"minimum slack", []model.PlannerOrder{{OrderID: "a", DueDate: datePtr("2024-01-01")}}, cal, 1, true},
		{"latest due wins", []model.PlannerOrder{
			{OrderID: "a", DueDate: datePtr("2024-01-03")},
			{OrderID: "b", DueDate: datePtr("2024-01-15")},
			{OrderID: "c"},
		}, cal, 11, true},
		// 2024-01-31 is workday 22; ten percent slack rounds up to 3.
		{"ten percent", []model.PlannerOrder{{OrderID: "a", DueDate: datePtr("2024-01-31")}}, cal, 25, true},
		// A Saturday maps to the following Monday.
		{"weekend due", []model.PlannerOrder{{OrderID: "a", DueDate: datePtr("2024-01-13")}}, cal, 11, true},
		{"past calendar end", []model.PlannerOrder{{OrderID: "a", DueDate: datePtr("2024-03-01")}}, cal, 29, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SuggestHorizon(tt.orders, tt.cal)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("got (%d, %v) want (%d, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}
