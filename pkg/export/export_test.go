package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kilianp07/foundry/core/dispatch"
	"github.com/kilianp07/foundry/core/model"
	"github.com/kilianp07/foundry/core/planner"
)

func TestWriteQueuesCSV(t *testing.T) {
	due := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	start := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	queues := []dispatch.Queue{
		{LineID: "L1", Assignments: []dispatch.Assignment{
			{JobID: "J1", OrderID: "100", Position: "10", MaterialID: "M1", LineID: "L1", Quantity: 5, Priority: 1, StartBy: start, DueDate: &due, Pinned: true, SplitID: 2, LoadAfter: 5},
			{JobID: "J2", OrderID: "101", Position: "10", MaterialID: "M2", LineID: "L1", Quantity: 3, Priority: 2, StartBy: start, LoadAfter: 8},
		}},
		{LineID: "L2"},
	}
	var buf bytes.Buffer
	if err := WriteQueuesCSV(&buf, queues); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(rows))
	}
	want := []string{"L1", "1", "J1", "100", "10", "M1", "5", "1", "2024-01-20", "2024-02-01", "true", "2", "5"}
	if strings.Join(rows[1], ",") != strings.Join(want, ",") {
		t.Errorf("row 1: %v", rows[1])
	}
	if rows[2][1] != "2" || rows[2][9] != "" || rows[2][12] != "8" {
		t.Errorf("row 2: %v", rows[2])
	}
}

func TestWritePlanCSV(t *testing.T) {
	cal := model.NewCalendar(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 5)
	s := &planner.Schedule{
		MoldsSchedule:  map[string]map[int]int{"O2": {0: 4}, "O1": {1: 20, 0: 20}, "O3": {4: 2}},
		ShakeoutDays:   map[string]map[int]int{"O2": {2: 4}, "O1": {2: 20, 3: 20}, "O3": {6: 2}},
		CompletionDays: map[string]int{"O1": 4, "O2": 7},
		LateDays:       map[string]int{"O1": 0, "O2": 2},
	}
	var buf bytes.Buffer
	if err := WritePlanCSV(&buf, s, cal); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got := make([]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		got = append(got, strings.Join(r, ","))
	}
	want := []string{
		"O1,0,2024-01-01,20,2,4,2024-01-05,0",
		"O1,1,2024-01-02,20,3,4,2024-01-05,0",
		"O2,0,2024-01-01,4,2,7,,2",
		"O3,4,2024-01-05,2,6,,,",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("unexpected rows:\n%s", strings.Join(got, "\n"))
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, dispatch.Queue{LineID: "L1", Load: 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var q dispatch.Queue
	if err := json.Unmarshal(buf.Bytes(), &q); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if q.LineID != "L1" || q.Load != 3 {
		t.Errorf("unexpected %+v", q)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Errorf("expected indented output: %s", buf.String())
	}
}
