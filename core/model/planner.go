package model

import (
	"errors"
	"fmt"
	"time"
)

// PlannerOrder is an order backlog entry expressed in molds.
type PlannerOrder struct {
	OrderID        string     `json:"order_id" yaml:"order_id"`
	PartID         string     `json:"part_id" yaml:"part_id"`
	RemainingMolds int        `json:"remaining_molds" yaml:"remaining_molds"`
	DueDate        *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	Priority       int        `json:"priority" yaml:"priority"`
}

// PlannerPart is the molding master data of a part.
type PlannerPart struct {
	PartID         string  `json:"part_id" yaml:"part_id"`
	FlaskType      string  `json:"flask_type" yaml:"flask_type"`
	CoolingHours   float64 `json:"cooling_hours" yaml:"cooling_hours"`
	FinishHours    float64 `json:"finish_hours" yaml:"finish_hours"`
	MinFinishHours float64 `json:"min_finish_hours" yaml:"min_finish_hours"`
	PiecesPerMold  int     `json:"pieces_per_mold" yaml:"pieces_per_mold"`
	NetWeightKg    float64 `json:"net_weight_kg" yaml:"net_weight_kg"`
	Alloy          string  `json:"alloy,omitempty" yaml:"alloy,omitempty"`
}

// Validate checks the part master for values the planner cannot work with.
func (p PlannerPart) Validate() error {
	switch {
	case p.PartID == "":
		return errors.New("part id is required")
	case p.FlaskType == "":
		return fmt.Errorf("part %s: flask type is required", p.PartID)
	case p.PiecesPerMold <= 0:
		return fmt.Errorf("part %s: pieces per mold must be positive", p.PartID)
	case p.CoolingHours < 0, p.FinishHours < 0, p.MinFinishHours < 0:
		return fmt.Errorf("part %s: negative process hours", p.PartID)
	case p.MinFinishHours > p.FinishHours:
		return fmt.Errorf("part %s: min finish hours %v above nominal %v", p.PartID, p.MinFinishHours, p.FinishHours)
	case p.NetWeightKg < 0:
		return fmt.Errorf("part %s: negative net weight", p.PartID)
	}
	return nil
}

// PlannerResource is the capacity configuration of a planning scenario.
type PlannerResource struct {
	Scenario       string         `json:"scenario" yaml:"scenario"`
	FlaskCapacity  map[string]int `json:"flask_capacity" yaml:"flask_capacity"`
	MoldsPerDay    int            `json:"molds_per_day" yaml:"molds_per_day"`
	SamePartPerDay int            `json:"same_part_per_day" yaml:"same_part_per_day"`
	PourTonsPerDay float64        `json:"pour_tons_per_day" yaml:"pour_tons_per_day"`
}

// Validate requires every cap to be positive.
func (r PlannerResource) Validate() error {
	if r.MoldsPerDay <= 0 {
		return fmt.Errorf("molds per day must be positive, got %d", r.MoldsPerDay)
	}
	if r.SamePartPerDay <= 0 {
		return fmt.Errorf("same part per day must be positive, got %d", r.SamePartPerDay)
	}
	if r.PourTonsPerDay <= 0 {
		return fmt.Errorf("pour tons per day must be positive, got %v", r.PourTonsPerDay)
	}
	if len(r.FlaskCapacity) == 0 {
		return errors.New("flask capacity is empty")
	}
	for typ, n := range r.FlaskCapacity {
		if n <= 0 {
			return fmt.Errorf("flask type %s: capacity must be positive, got %d", typ, n)
		}
	}
	return nil
}
