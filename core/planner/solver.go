package planner

import (
	"context"
	"fmt"

	"github.com/kilianp07/foundry/core/factory"
)

// Solver allocates molds for a snapshot. Every implementation returns the same
// Schedule contract and honours the same capacity limits.
type Solver interface {
	Name() string
	Solve(ctx context.Context, snap Snapshot, opts Options) (*Schedule, error)
}

// Greedy molds as much as possible each day, most urgent order first.
type Greedy struct{}

func (Greedy) Name() string { return "greedy" }

// Solve walks the horizon day by day. Running out of budget stops the walk and
// marks the schedule as timed out.
func (g Greedy) Solve(ctx context.Context, snap Snapshot, opts Options) (*Schedule, error) {
	r, err := prepare(ctx, snap, opts, g.Name())
	if err != nil {
		return nil, err
	}
	for d := 0; d < r.horizon && len(r.active()) > 0; d++ {
		if !r.greedyDay(d) {
			r.sched.TimedOut = true
			break
		}
	}
	return r.finalize(), nil
}

// Plan runs the greedy solver.
func Plan(ctx context.Context, snap Snapshot, opts Options) (*Schedule, error) {
	return Greedy{}.Solve(ctx, snap, opts)
}

// Solvers lists the solver implementations available to configuration.
var Solvers = factory.NewRegistry[Solver]()

func init() {
	_ = Solvers.Register("greedy", func(map[string]any) (Solver, error) { return Greedy{}, nil })
	_ = Solvers.Register("lp", func(conf map[string]any) (Solver, error) {
		var c LPConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewLPSolver(c), nil
	})
}

// NewSolver returns the named solver. An empty name selects greedy.
func NewSolver(name string, conf map[string]any) (Solver, error) {
	if name == "" {
		name = "greedy"
	}
	s, err := Solvers.Create(factory.ModuleConfig{Type: name, Conf: conf})
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	return s, nil
}
