package planner

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// LPConfig tunes the LP solver.
type LPConfig struct {
	// Tolerance is passed to the simplex method.
	Tolerance float64 `json:"tolerance"`
}

// LPSolver solves, for each workday, the linear relaxation of that day's
// allocation, weighting molds by order urgency. The relaxed quantities are
// floored and booked through the same ledger as the greedy solver, then any
// capacity left is topped up greedily. Days the LP cannot solve fall back to
// the greedy allocation.
type LPSolver struct {
	tol float64
}

// NewLPSolver returns an LP solver. A zero tolerance selects 1e-7.
func NewLPSolver(cfg LPConfig) *LPSolver {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 1e-7
	}
	return &LPSolver{tol: cfg.Tolerance}
}

func (*LPSolver) Name() string { return "lp" }

// solveLP minimises c·x subject to G·x ≤ h and returns x.
func solveLP(c []float64, g *mat.Dense, h []float64, tol float64) ([]float64, error) {
	cStd, aStd, bStd := lp.Convert(c, g, h, nil, nil)
	_, sol, err := lp.Simplex(cStd, aStd, bStd, tol, nil)
	if err != nil {
		return nil, err
	}
	// Convert splits each free variable into a positive and a negative part.
	n := len(c)
	x := make([]float64, n)
	for i := range x {
		x[i] = sol[i] - sol[n+i]
	}
	return x, nil
}

// lpSolve points to the function used to solve the LP. It can be overridden in
// tests to simulate solver failures.
var lpSolve = solveLP

func (s *LPSolver) Solve(ctx context.Context, snap Snapshot, opts Options) (*Schedule, error) {
	r, err := prepare(ctx, snap, opts, s.Name())
	if err != nil {
		return nil, err
	}
	for d := 0; d < r.horizon && len(r.active()) > 0; d++ {
		if !r.budget.tick() {
			r.sched.TimedOut = true
			break
		}
		if err := s.lpDay(r, d); err != nil {
			lpFallbacks.Inc()
		}
		if !r.greedyDay(d) {
			r.sched.TimedOut = true
			break
		}
	}
	return r.finalize(), nil
}

// lpDay books the floored LP optimum for day d. On error nothing is booked.
func (s *LPSolver) lpDay(r *run, d int) error {
	var cands []*orderState
	var bound []int
	for _, o := range r.orders {
		if o.remaining == 0 {
			continue
		}
		if a := r.led.available(o, d); a > 0 {
			cands = append(cands, o)
			bound = append(bound, a)
		}
	}
	if len(cands) == 0 {
		return nil
	}
	g, h := s.constraints(r, d, cands, bound)
	c := make([]float64, len(cands))
	for i, o := range cands {
		c[i] = -float64(len(r.orders) - o.rank)
	}
	x, err := lpSolve(c, g, h, s.tol)
	if err != nil {
		return err
	}
	for i, o := range cands {
		q := int(math.Floor(x[i] + 1e-6))
		r.led.commit(o, d, min(q, r.led.available(o, d)))
	}
	return nil
}

// constraints builds G·x ≤ h for day d: the molding cap, one row per part,
// one row per flask type and cooling day, the tonnage cap, and 0 ≤ x ≤ bound.
func (s *LPSolver) constraints(r *run, d int, cands []*orderState, bound []int) (*mat.Dense, []float64) {
	n := len(cands)
	var rows [][]float64
	var h []float64
	add := func(row []float64, limit float64) {
		rows = append(rows, row)
		h = append(h, limit)
	}

	all := make([]float64, n)
	for i := range all {
		all[i] = 1
	}
	add(all, float64(r.led.moldsLeft(d)))

	parts := map[string][]float64{}
	var partOrder []string
	for i, o := range cands {
		row, ok := parts[o.part.PartID]
		if !ok {
			row = make([]float64, n)
			parts[o.part.PartID] = row
			partOrder = append(partOrder, o.part.PartID)
		}
		row[i] = 1
	}
	for _, p := range partOrder {
		add(parts[p], float64(r.led.partLeft(p, d)))
	}

	types := map[string]int{}
	var typeOrder []string
	for _, o := range cands {
		if c, ok := types[o.part.FlaskType]; !ok || o.cool > c {
			if !ok {
				typeOrder = append(typeOrder, o.part.FlaskType)
			}
			types[o.part.FlaskType] = o.cool
		}
	}
	for _, typ := range typeOrder {
		occ := r.led.flaskOcc[typ]
		for e := d; e < d+types[typ] && e < len(occ); e++ {
			row := make([]float64, n)
			for i, o := range cands {
				if o.part.FlaskType == typ && e < d+o.cool {
					row[i] = 1
				}
			}
			add(row, float64(r.led.flaskCap[typ]-occ[e]))
		}
	}

	tons := make([]float64, n)
	for i, o := range cands {
		tons[i] = o.tons.InexactFloat64()
	}
	add(tons, r.led.tonsLeft(d).InexactFloat64())

	for i := range cands {
		up := make([]float64, n)
		up[i] = 1
		add(up, float64(bound[i]))
		lo := make([]float64, n)
		lo[i] = -1
		add(lo, 0)
	}

	g := mat.NewDense(len(rows), n, nil)
	for i, row := range rows {
		g.SetRow(i, row)
	}
	return g, h
}
