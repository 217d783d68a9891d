package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/foundry/core/model"
)

// ResourceStore keeps planner capacity configuration per scenario.
type ResourceStore struct {
	pool *pgxpool.Pool
}

func NewResourceStore(pool *pgxpool.Pool) *ResourceStore {
	return &ResourceStore{pool: pool}
}

// Resources returns the configuration of scenario. A scenario without a row
// yields nil, which the planner rejects as missing configuration.
func (r *ResourceStore) Resources(ctx context.Context, scenario string) (*model.PlannerResource, error) {
	var (
		res   = model.PlannerResource{Scenario: scenario}
		flask []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT flask_capacity, molds_per_day, same_part_per_day, pour_tons_per_day
		FROM planner_resources WHERE scenario = $1`, scenario).
		Scan(&flask, &res.MoldsPerDay, &res.SamePartPerDay, &res.PourTonsPerDay)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get resources %s: %w", scenario, err)
	}
	if err := json.Unmarshal(flask, &res.FlaskCapacity); err != nil {
		return nil, fmt.Errorf("decode flask capacity %s: %w", scenario, err)
	}
	return &res, nil
}

// Put validates and upserts a scenario configuration.
func (r *ResourceStore) Put(ctx context.Context, res model.PlannerResource) error {
	if res.Scenario == "" {
		return fmt.Errorf("resources: scenario is required")
	}
	if err := res.Validate(); err != nil {
		return err
	}
	flask, err := json.Marshal(res.FlaskCapacity)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO planner_resources (scenario, flask_capacity, molds_per_day, same_part_per_day, pour_tons_per_day)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scenario) DO UPDATE SET
			flask_capacity = EXCLUDED.flask_capacity,
			molds_per_day = EXCLUDED.molds_per_day,
			same_part_per_day = EXCLUDED.same_part_per_day,
			pour_tons_per_day = EXCLUDED.pour_tons_per_day`,
		res.Scenario, flask, res.MoldsPerDay, res.SamePartPerDay, res.PourTonsPerDay)
	if err != nil {
		return fmt.Errorf("put resources %s: %w", res.Scenario, err)
	}
	return nil
}
