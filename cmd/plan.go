package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/kilianp07/foundry/core/planner"
	"github.com/kilianp07/foundry/core/snapshot"
	"github.com/kilianp07/foundry/pkg/export"
)

var solverName string

var planCmd = &cobra.Command{
	Use:   "plan <snapshot>",
	Short: "Plan molding for a scenario snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func init() {
	addOutputFlags(planCmd)
	planCmd.Flags().StringVar(&solverName, "solver", "", "solver to use (default from config)")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	snap, err := snapshot.ReadPlanner(args[0])
	if err != nil {
		return err
	}
	name := cfg.Planner.Solver
	if solverName != "" {
		name = solverName
	}
	solver, err := planner.NewSolver(name, cfg.Planner.SolverConf)
	if err != nil {
		return err
	}
	if cfg.Planner.AutoHorizon && snap.MaxHorizonDays == 0 {
		if idx, ok := planner.SuggestHorizon(snap.Orders, snap.Workdays); ok {
			snap.MaxHorizonDays = idx + 1
		}
	}
	sched, err := solver.Solve(context.Background(), snap, cfg.Planner.Options())
	if err != nil {
		return err
	}
	if format == "csv" {
		return output(cmd, func(w io.Writer) error { return export.WritePlanCSV(w, sched, snap.Workdays) })
	}
	return writeJSON(cmd, sched)
}
