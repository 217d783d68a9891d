package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/foundry/core/model"
	"github.com/kilianp07/foundry/core/pins"
)

const planYAML = `as_of: 2024-01-01
orders:
  - order_id: O1
    part_id: P1
    remaining_molds: 30
    due_date: 2024-01-12
    priority: 1
parts:
  P1:
    flask_type: A
    cooling_hours: 20
    finish_hours: 24
    pieces_per_mold: 1
    net_weight_kg: 50
resources:
  flask_capacity:
    A: 100
  molds_per_day: 20
  same_part_per_day: 20
  pour_tons_per_day: 10
calendar:
  from: 2024-01-01
  days: 10
`

const dispatchYAML = `process: machining
lines:
  - id: L1
    rules:
      - attribute: family_id
        kind: equals
        value: F1
jobs:
  - id: J1
    order_id: "1001"
    position: "10"
    material_id: M1
    quantity: 5
parts:
  M1:
    family_id: F1
`

func setup(t *testing.T) (dir, cfg string) {
	t.Helper()
	dir = t.TempDir()
	cfg = filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("pins:\n  backend: sqlite\n  path: %s\nlogging:\n  path: %s\n",
		filepath.Join(dir, "pins.db"), filepath.Join(dir, "runs.log"))
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o644))
	return dir, cfg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	format, outPath, solverName = "json", "", ""
	pinLine, pinQty, pinSplit, pinTotal, pinLots, pinExpect = "", 0, 1, 0, "", -1
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestPlanCommand(t *testing.T) {
	dir, cfg := setup(t)
	snap := filepath.Join(dir, "north.yaml")
	require.NoError(t, os.WriteFile(snap, []byte(planYAML), 0o644))

	out, err := execute(t, "plan", snap, "-c", cfg)
	require.NoError(t, err, out)
	var sched struct {
		MoldsSchedule map[string]map[int]int `json:"molds_schedule"`
		Solver        string                 `json:"solver"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &sched))
	assert.Equal(t, map[int]int{0: 20, 1: 10}, sched.MoldsSchedule["O1"])
	assert.Equal(t, "greedy", sched.Solver)

	csvPath := filepath.Join(dir, "plan.csv")
	_, err = execute(t, "plan", snap, "-c", cfg, "--solver", "lp", "-f", "csv", "-o", csvPath)
	require.NoError(t, err)
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "order_id,mold_day"), string(data))

	_, err = execute(t, "plan", snap, "-c", cfg, "-f", "xml")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestDispatchCommand(t *testing.T) {
	dir, cfg := setup(t)
	snap := filepath.Join(dir, "machining.yaml")
	require.NoError(t, os.WriteFile(snap, []byte(dispatchYAML), 0o644))

	out, err := execute(t, "dispatch", snap, "-c", cfg)
	require.NoError(t, err, out)
	assert.Contains(t, out, `"line_id": "L1"`)
	assert.Contains(t, out, `"J1"`)

	out, err = execute(t, "dispatch", snap, "-c", cfg, "-f", "csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "L1,1,J1,1001,10,M1,5"), lines[1])
	assert.Contains(t, lines[1], ",false,")

	// jobs inherit the snapshot process, so a pin on the key applies
	_, err = execute(t, "pin", "mark", "-c", cfg, "--process", "machining", "--order", "1001", "--position", "10", "--line", "L1")
	require.NoError(t, err)
	out, err = execute(t, "dispatch", snap, "-c", cfg)
	require.NoError(t, err, out)
	assert.Contains(t, out, `"pinned": true`)
}

func TestPinCommands(t *testing.T) {
	_, cfg := setup(t)
	key := []string{"--process", "machining", "--order", "1001", "--position", "10"}

	out, err := execute(t, append([]string{"pin", "mark", "-c", cfg, "--line", "L1", "--qty", "3"}, key...)...)
	require.NoError(t, err, out)

	out, err = execute(t, "pin", "ls", "-c", cfg, "--process", "machining")
	require.NoError(t, err, out)
	var splits []model.PinnedSplit
	require.NoError(t, json.Unmarshal([]byte(out), &splits))
	require.Len(t, splits, 1)
	assert.Equal(t, "L1", splits[0].LineID)
	assert.Equal(t, 3, splits[0].Quantity)

	_, err = execute(t, append([]string{"pin", "move", "-c", cfg, "--split", "1", "--line", "L2"}, key...)...)
	require.NoError(t, err)
	_, err = execute(t, append([]string{"pin", "mark", "-c", cfg, "--line", "L3"}, key...)...)
	assert.Error(t, err)

	_, err = execute(t, append([]string{"pin", "unmark", "-c", cfg}, key...)...)
	require.NoError(t, err)
	out, err = execute(t, "pin", "ls", "-c", cfg, "--process", "machining")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestPinExpectVersion(t *testing.T) {
	_, cfg := setup(t)
	key := []string{"--process", "machining", "--order", "1002", "--position", "20"}

	_, err := execute(t, append([]string{"pin", "get", "-c", cfg}, key...)...)
	assert.ErrorIs(t, err, pins.ErrNotFound)
	_, err = execute(t, append([]string{"pin", "mark", "-c", cfg, "--line", "L1", "--expect-version", "0"}, key...)...)
	require.NoError(t, err)

	out, err := execute(t, append([]string{"pin", "get", "-c", cfg}, key...)...)
	require.NoError(t, err, out)
	var view struct {
		Version int64               `json:"version"`
		Splits  []model.PinnedSplit `json:"splits"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Len(t, view.Splits, 1)
	seen := strconv.FormatInt(view.Version, 10)

	_, err = execute(t, append([]string{"pin", "move", "-c", cfg, "--line", "L2", "--expect-version", seen}, key...)...)
	require.NoError(t, err)
	_, err = execute(t, append([]string{"pin", "move", "-c", cfg, "--line", "L3", "--expect-version", seen}, key...)...)
	assert.ErrorIs(t, err, pins.ErrConflict)

	out, err = execute(t, append([]string{"pin", "get", "-c", cfg}, key...)...)
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "L2", view.Splits[0].LineID)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"100", "101", "102"}, splitList("100-102"))
	assert.Equal(t, []string{"T1", "T2"}, splitList("T1, T2"))
	assert.Nil(t, splitList(""))
}
