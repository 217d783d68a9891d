package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/foundry/core/model"
	"github.com/kilianp07/foundry/core/planner"
)

const plannerYAML = `scenario: north
as_of: 2024-01-01
orders:
  - order_id: O1
    part_id: P1
    remaining_molds: 60
    due_date: 2024-01-10
    priority: 1
parts:
  P1:
    flask_type: A
    cooling_hours: 30
    finish_hours: 48
    min_finish_hours: 24
    pieces_per_mold: 2
    net_weight_kg: 12.5
resources:
  flask_capacity:
    A: 100
  molds_per_day: 20
  same_part_per_day: 20
  pour_tons_per_day: 30
calendar:
  from: 2024-01-01
  days: 15
  holidays: [2024-01-03]
initial:
  flask_in_use:
    - flask_type: A
      release_day: 2
      count: 10
  pour_load_tons:
    0: 1.5
  patterns_loaded: [P1]
`

const dispatchYAML = `process: machining
lines:
  - id: L1
    rules:
      - attribute: family_id
        kind: one_of
        values: [F1, F2]
  - id: L2
    capacity: 50
    rules:
      - attribute: inclined_drilling
        kind: capability
        allowed: true
jobs:
  - id: J1
    order_id: "1001"
    position: "10"
    material_id: M1
    quantity: 5
    due_date: 2024-01-10T00:00:00Z
parts:
  M1:
    family_id: F1
    machining_days: 2
`

func write(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	return p
}

type fixedResources struct{ res *model.PlannerResource }

func (f fixedResources) Resources(context.Context, string) (*model.PlannerResource, error) {
	return f.res, nil
}

func TestFileSourceLoadsYAML(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "north.yaml", plannerYAML)
	src := NewFileSource(dir)

	snap, err := src.LoadSnapshot(context.Background(), "north")
	require.NoError(t, err)
	assert.Equal(t, "north", snap.Scenario)
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, 60, snap.Orders[0].RemainingMolds)
	assert.Equal(t, "P1", snap.Parts["P1"].PartID)
	assert.Equal(t, 12.5, snap.Parts["P1"].NetWeightKg)
	require.Len(t, snap.Workdays, 15)
	assert.Equal(t, "2024-01-04", snap.Workdays[2].Date.Format("2006-01-02"))
	assert.Equal(t, 1.5, snap.Initial.PourLoadTons[0])
	assert.Equal(t, []planner.FlaskRelease{{FlaskType: "A", ReleaseDay: 2, Count: 10}}, snap.Initial.FlaskInUse)

	s, err := planner.Plan(context.Background(), snap, planner.Options{})
	require.NoError(t, err)
	assert.Equal(t, 60, s.MoldsPlanned())

	names, err := src.Scenarios()
	require.NoError(t, err)
	assert.Equal(t, []string{"north"}, names)
}

func TestFileSourceResourceOverride(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "north.yml", plannerYAML)
	src := NewFileSource(dir)
	res := &model.PlannerResource{FlaskCapacity: map[string]int{"A": 5}, MoldsPerDay: 5, SamePartPerDay: 5, PourTonsPerDay: 5}
	src.SetResourceProvider(fixedResources{res: res})

	snap, err := src.LoadSnapshot(context.Background(), "north")
	require.NoError(t, err)
	assert.Same(t, res, snap.Resources)
}

func TestFileSourceErrors(t *testing.T) {
	dir := t.TempDir()
	src := NewFileSource(dir)

	_, err := src.LoadSnapshot(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = src.LoadSnapshot(context.Background(), "../etc")
	assert.Error(t, err)

	write(t, dir, "broken.yaml", "orders: [")
	_, err = src.LoadSnapshot(context.Background(), "broken")
	assert.Error(t, err)
}

func TestReadPlannerJSON(t *testing.T) {
	dir := t.TempDir()
	p := write(t, dir, "s.json", `{"scenario":"s","orders":[{"order_id":"O1","part_id":"P1","remaining_molds":3}],
"workdays":[{"index":0,"date":"2024-01-01T00:00:00Z"},{"index":1,"date":"2024-01-02T00:00:00Z"}],
"initial":{"pour_load_tons":{"1":2}}}`)
	snap, err := ReadPlanner(p)
	require.NoError(t, err)
	assert.Len(t, snap.Workdays, 2)
	assert.Equal(t, 2.0, snap.Initial.PourLoadTons[1])
}

func TestReadDispatch(t *testing.T) {
	dir := t.TempDir()
	in, err := ReadDispatch(write(t, dir, "in.yaml", dispatchYAML))
	require.NoError(t, err)
	assert.Equal(t, "machining", in.Process)
	require.Len(t, in.Lines, 2)
	assert.Equal(t, 50, in.Lines[1].Capacity)
	assert.Equal(t, "M1", in.Parts["M1"].MaterialID)
	require.NotNil(t, in.Jobs[0].DueDate)

	_, err = ReadDispatch(write(t, dir, "bad.yaml", "lines:\n  - id: L1\n    rules:\n      - attribute: x\n        kind: nope\n"))
	assert.Error(t, err)
	_, err = ReadDispatch(write(t, dir, "in.toml", ""))
	assert.Error(t, err)
}
