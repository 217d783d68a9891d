package planner

import (
	"time"

	"github.com/kilianp07/foundry/core/model"
)

// FlaskRelease describes flasks still busy with molds cast before the
// snapshot date. They are occupied from day 0 until ReleaseDay, exclusive.
type FlaskRelease struct {
	FlaskType  string `json:"flask_type" yaml:"flask_type"`
	ReleaseDay int    `json:"release_day" yaml:"release_day"`
	Count      int    `json:"count" yaml:"count"`
}

// InitialConditions is the shop floor state as of the snapshot date.
type InitialConditions struct {
	FlaskInUse []FlaskRelease `json:"flask_in_use,omitempty" yaml:"flask_in_use,omitempty"`
	// PourLoadTons is tonnage already committed per workday index.
	PourLoadTons map[int]float64 `json:"pour_load_tons,omitempty" yaml:"pour_load_tons,omitempty"`
	// PatternsLoaded lists parts whose pattern is mounted on the molding line.
	PatternsLoaded []string `json:"patterns_loaded,omitempty" yaml:"patterns_loaded,omitempty"`
}

// Snapshot is the immutable input of a planning run.
type Snapshot struct {
	Scenario  string                       `json:"scenario" yaml:"scenario"`
	AsOf      time.Time                    `json:"as_of" yaml:"as_of"`
	Orders    []model.PlannerOrder         `json:"orders" yaml:"orders"`
	Parts     map[string]model.PlannerPart `json:"parts" yaml:"parts"`
	Resources *model.PlannerResource       `json:"resources" yaml:"resources"`
	Workdays  model.Calendar               `json:"workdays" yaml:"workdays"`
	Initial   InitialConditions            `json:"initial" yaml:"initial"`
	// MaxHorizonDays limits allocation to the first workdays. Zero means the
	// whole calendar.
	MaxHorizonDays int `json:"max_horizon_days,omitempty" yaml:"max_horizon_days,omitempty"`
}

// Options bounds a planning run. Zero values mean no limit.
type Options struct {
	// MaxIterations caps the number of order evaluations.
	MaxIterations int
	Timeout       time.Duration
}

// ErrorKind classifies a per-order planning failure.
type ErrorKind string

const (
	ErrUnknownPart          ErrorKind = "unknown_part"
	ErrInvalidPart          ErrorKind = "invalid_part"
	ErrMissingFlaskCapacity ErrorKind = "missing_flask_capacity"
	ErrNegativeQuantity     ErrorKind = "negative_quantity"
	ErrDueBeforeAsOf        ErrorKind = "due_before_as_of"
	ErrDuplicateOrder       ErrorKind = "duplicate_order"
)

// OrderError is a per-order failure. The order is left out of the run.
type OrderError struct {
	OrderID string    `json:"order_id"`
	Kind    ErrorKind `json:"kind"`
	Detail  string    `json:"detail,omitempty"`
}

// Schedule is the output contract shared by every solver. Day keys are
// workday indexes.
type Schedule struct {
	MoldsSchedule    map[string]map[int]int `json:"molds_schedule"`
	PourDays         map[string]map[int]int `json:"pour_days"`
	ShakeoutDays     map[string]map[int]int `json:"shakeout_days"`
	CompletionDays   map[string]int         `json:"completion_days"`
	FinishHoursReal  map[string]float64     `json:"finish_hours_real"`
	LateDays         map[string]int         `json:"late_days"`
	Errors           []OrderError           `json:"errors"`
	SkippedOrders    int                    `json:"skipped_orders"`
	HorizonExceeded  bool                   `json:"horizon_exceeded"`
	Objective        int                    `json:"objective"`
	UnfinishedOrders []string               `json:"unfinished_orders"`
	TimedOut         bool                   `json:"timed_out"`
	Solver           string                 `json:"solver"`
	HorizonDays      int                    `json:"horizon_days"`
}

func newSchedule(solver string, horizon int) *Schedule {
	return &Schedule{
		MoldsSchedule:    map[string]map[int]int{},
		PourDays:         map[string]map[int]int{},
		ShakeoutDays:     map[string]map[int]int{},
		CompletionDays:   map[string]int{},
		FinishHoursReal:  map[string]float64{},
		LateDays:         map[string]int{},
		Errors:           []OrderError{},
		UnfinishedOrders: []string{},
		Solver:           solver,
		HorizonDays:      horizon,
	}
}

// MoldsPlanned is the total number of molds allocated.
func (s *Schedule) MoldsPlanned() int {
	n := 0
	for _, days := range s.MoldsSchedule {
		for _, q := range days {
			n += q
		}
	}
	return n
}

// TotalLateDays sums lateness over completed orders.
func (s *Schedule) TotalLateDays() int {
	n := 0
	for _, l := range s.LateDays {
		n += l
	}
	return n
}
