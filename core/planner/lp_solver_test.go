package planner

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/foundry/core/model"
)

func TestSolveLP(t *testing.T) {
	// maximise 2x + y with x + y <= 4, x <= 3, x, y >= 0
	g := mat.NewDense(4, 2, []float64{
		1, 1,
		1, 0,
		-1, 0,
		0, -1,
	})
	x, err := solveLP([]float64{-2, -1}, g, []float64{4, 3, 0, 0}, 1e-9)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if d := x[0] - 3; d > 1e-6 || d < -1e-6 {
		t.Fatalf("x = %v", x)
	}
	if d := x[1] - 1; d > 1e-6 || d < -1e-6 {
		t.Fatalf("y = %v", x)
	}
}

func TestLPSolverMatchesContract(t *testing.T) {
	snap := baseSnapshot()
	snap.Orders = []model.PlannerOrder{{OrderID: "O1", PartID: "P1", RemainingMolds: 60}}

	s, err := NewLPSolver(LPConfig{}).Solve(context.Background(), snap, Options{})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if s.Solver != "lp" {
		t.Fatalf("solver %q", s.Solver)
	}
	if !reflect.DeepEqual(s.MoldsSchedule["O1"], map[int]int{0: 20, 1: 20, 2: 20}) {
		t.Fatalf("molds %v", s.MoldsSchedule["O1"])
	}
	if s.CompletionDays["O1"] != 6 {
		t.Fatalf("completion %d", s.CompletionDays["O1"])
	}
}

func TestLPSolverPrefersUrgentOrders(t *testing.T) {
	snap := baseSnapshot()
	snap.Resources.MoldsPerDay = 6
	snap.Parts["P2"] = model.PlannerPart{PartID: "P2", FlaskType: "A", CoolingHours: 24, PiecesPerMold: 1}
	snap.Orders = []model.PlannerOrder{
		{OrderID: "later", PartID: "P2", RemainingMolds: 6, Priority: 2},
		{OrderID: "first", PartID: "P1", RemainingMolds: 4, Priority: 1},
	}
	s, err := NewLPSolver(LPConfig{}).Solve(context.Background(), snap, Options{})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if got := s.MoldsSchedule["first"][0]; got != 4 {
		t.Fatalf("urgent order got %d molds on day 0", got)
	}
	if got := s.MoldsSchedule["later"][0]; got != 2 {
		t.Fatalf("later order got %d molds on day 0", got)
	}
}

func TestLPSolverFallsBackToGreedy(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	orig := lpSolve
	lpSolve = func([]float64, *mat.Dense, []float64, float64) ([]float64, error) {
		return nil, errors.New("singular")
	}
	defer func() { lpSolve = orig }()

	snap := baseSnapshot()
	snap.Orders = []model.PlannerOrder{{OrderID: "O1", PartID: "P1", RemainingMolds: 60}}

	lp, err := NewLPSolver(LPConfig{}).Solve(context.Background(), snap, Options{})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	greedy := mustPlan(t, snap)
	if !reflect.DeepEqual(lp.MoldsSchedule, greedy.MoldsSchedule) || !reflect.DeepEqual(lp.CompletionDays, greedy.CompletionDays) {
		t.Fatalf("fallback schedule %v differs from greedy %v", lp.MoldsSchedule, greedy.MoldsSchedule)
	}
	if v := testutil.ToFloat64(lpFallbacks); v != 3 {
		t.Fatalf("fallbacks = %v want 3", v)
	}
}
