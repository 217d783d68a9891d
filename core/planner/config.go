package planner

import (
	"fmt"
	"time"
)

// Config defines planner runner settings.
type Config struct {
	// Solver selects a registered solver, "greedy" or "lp".
	Solver     string         `json:"solver"`
	SolverConf map[string]any `json:"solver_conf"`
	// Workers is the number of concurrent planning runs.
	Workers int `json:"workers"`
	// QueueSize bounds submitted runs waiting for a worker.
	QueueSize      int `json:"queue_size"`
	TimeoutSeconds int `json:"timeout_seconds"`
	MaxIterations  int `json:"max_iterations"`
	// AutoHorizon limits runs without an explicit horizon to SuggestHorizon.
	AutoHorizon bool `json:"auto_horizon"`
	// KeepRuns is how many finished run statuses stay queryable.
	KeepRuns int `json:"keep_runs"`
	// Scenarios are re-planned on Cron, a robfig/cron spec.
	Scenarios []string `json:"scenarios"`
	Cron      string   `json:"cron"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Solver == "" {
		c.Solver = "greedy"
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 300
	}
	if c.KeepRuns <= 0 {
		c.KeepRuns = 100
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if _, err := NewSolver(c.Solver, c.SolverConf); err != nil {
		return err
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("planner: negative max iterations")
	}
	if len(c.Scenarios) > 0 && c.Cron == "" {
		return fmt.Errorf("planner: scenarios listed without a cron schedule")
	}
	return nil
}

// Options returns the run budget configured by c.
func (c Config) Options() Options {
	return Options{MaxIterations: c.MaxIterations, Timeout: time.Duration(c.TimeoutSeconds) * time.Second}
}
