package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/foundry/core/planner"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []string
	busy  map[string]bool
}

func (f *fakeSubmitter) Submit(sc string) (planner.RunStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sc)
	if f.busy[sc] {
		return planner.RunStatus{}, fmt.Errorf("%w: %s", planner.ErrScenarioBusy, sc)
	}
	return planner.RunStatus{ID: "run-" + sc, Scenario: sc}, nil
}

func TestReplanner(t *testing.T) {
	sub := &fakeSubmitter{busy: map[string]bool{"south": true}}
	r, err := NewReplanner(planner.Config{Scenarios: []string{"north", "south"}, Cron: "0 5 * * 1-5"}, sub, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Entries())

	r.submitAll()
	assert.Equal(t, []string{"north", "south"}, sub.calls)

	r.Start()
	r.Stop()
}

func TestReplannerIdleAndInvalid(t *testing.T) {
	r, err := NewReplanner(planner.Config{}, &fakeSubmitter{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Entries())

	_, err = NewReplanner(planner.Config{Scenarios: []string{"north"}, Cron: "every monday"}, &fakeSubmitter{}, nil)
	assert.ErrorContains(t, err, "invalid cron expression")
}
