package pins

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/foundry/core/events"
	"github.com/kilianp07/foundry/core/model"
	"github.com/kilianp07/foundry/internal/eventbus"
)

var key = model.PinKey{Process: "machining", OrderID: "O1", Position: "10"}

func newService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc, err := NewService(store, nil, nil, nil)
	require.NoError(t, err)
	return svc, store
}

func TestBalancedQuantities(t *testing.T) {
	for total := 0; total < 50; total++ {
		a, b := BalancedQuantities(total)
		if a+b != total || a-b < 0 || a-b > 1 {
			t.Fatalf("total %d split into %d/%d", total, a, b)
		}
	}
}

func TestMarkMoveUnmark(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	sp, err := svc.Mark(ctx, key, "L1", 0)
	require.NoError(t, err)
	assert.True(t, sp.Auto())
	assert.Equal(t, 1, sp.SplitID)

	_, err = svc.Mark(ctx, key, "L2", 5)
	assert.ErrorIs(t, err, ErrAlreadyPinned)

	moved, err := svc.Move(ctx, key, 1, "L2")
	require.NoError(t, err)
	assert.Equal(t, "L2", moved.LineID)
	assert.Equal(t, int64(2), moved.Version)

	_, err = svc.Move(ctx, key, 7, "L2")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.Unmark(ctx, key))
	assert.ErrorIs(t, svc.Unmark(ctx, key), ErrNotFound)

	_, err = svc.Mark(ctx, key, "L1", -3)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.Mark(ctx, model.PinKey{OrderID: "O1"}, "L1", 0)
	assert.Error(t, err)
}

func TestCreateBalancedSplit(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t)
	_, err := svc.CreateBalancedSplit(ctx, key, 9)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Mark(ctx, key, "L1", 0)
	require.NoError(t, err)
	_, err = svc.SyncLots(ctx, key, []string{"101", "102", "103"})
	require.NoError(t, err)

	splits, err := svc.CreateBalancedSplit(ctx, key, 9)
	require.NoError(t, err)
	require.Len(t, splits, 2)
	assert.Equal(t, 5, splits[0].Quantity)
	assert.True(t, splits[1].Auto())
	assert.Equal(t, []string{"101", "102"}, splits[0].Lots)
	assert.Equal(t, []string{"103"}, splits[1].Lots)

	_, err = svc.CreateBalancedSplit(ctx, key, 9)
	assert.ErrorIs(t, err, ErrAlreadySplit)

	stored, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestSplitFollowsJobQuantity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.Mark(ctx, key, "L1", 0)
	require.NoError(t, err)
	_, err = svc.CreateBalancedSplit(ctx, key, 100)
	require.NoError(t, err)

	for _, qty := range []int{100, 120, 60, 30} {
		job := model.Job{ID: "J1", Process: "machining", OrderID: "O1", Position: "10", Quantity: qty}
		rows, err := svc.Rows(ctx, "machining", []model.Job{job})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		sum := rows[0].Quantity + rows[1].Quantity
		want := qty
		if qty < 50 {
			// the fixed half cannot shrink; the auto half bottoms out at zero
			want = 50
		}
		assert.Equal(t, want, sum, "job quantity %d", qty)
	}
}

func TestSplitStoredQuantity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	_, err := svc.Mark(ctx, key, "L1", 7)
	require.NoError(t, err)
	// total is ignored once the pin carries its own quantity
	splits, err := svc.CreateBalancedSplit(ctx, key, 100)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3}, []int{splits[0].Quantity, splits[1].Quantity})

	require.NoError(t, svc.Unmark(ctx, key))
	_, err = svc.Mark(ctx, key, "L1", 0)
	require.NoError(t, err)
	_, err = svc.CreateBalancedSplit(ctx, key, 1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestResolveAutoQuantity(t *testing.T) {
	jobs := []model.Job{
		{ID: "J1", Process: "machining", OrderID: "O1", Position: "10", Quantity: 30},
		{ID: "J2", Process: "machining", OrderID: "O2", Position: "20", Quantity: 4},
	}
	k2 := jobs[1].PinKey()
	gone := model.PinKey{Process: "machining", OrderID: "O9", Position: "10"}
	splits := []model.PinnedSplit{
		{Key: key, SplitID: 2, LineID: "L2", Quantity: 0},
		{Key: key, SplitID: 1, LineID: "L1", Quantity: 12},
		{Key: k2, SplitID: 1, LineID: "L1", Quantity: 10},
		{Key: k2, SplitID: 2, LineID: "L3", Quantity: 0},
		{Key: gone, SplitID: 1, LineID: "L1"},
	}
	rows, orphans := Resolve(splits, jobs)
	require.Len(t, orphans, 1)
	require.Len(t, rows, 4)
	got := fmt.Sprint(rows[0].SplitID, rows[0].Quantity, rows[1].SplitID, rows[1].Quantity)
	assert.Equal(t, "1 12 2 18", got)
	// explicit quantities larger than the job leave nothing for the auto split
	assert.Equal(t, 10, rows[2].Quantity)
	assert.Equal(t, 0, rows[3].Quantity)

	// upstream quantity change is picked up without touching the stored pin
	jobs[0].Quantity = 20
	rows, _ = Resolve(splits, jobs)
	assert.Equal(t, 8, rows[1].Quantity)
	assert.Equal(t, 0, splits[0].Quantity)
}

func TestReconcileLotsKeepsIdentity(t *testing.T) {
	splits := []model.PinnedSplit{
		{Key: key, SplitID: 1, Lots: []string{"1", "2", "3"}},
		{Key: key, SplitID: 2, Lots: []string{"4"}},
	}
	out := ReconcileLots(splits, []string{"1", "3", "4", "5", "6", "7"})
	// lot 2 vanished; new lots 5,6,7 go to the emptier split, ties to the lowest id
	assert.Equal(t, []string{"1", "3", "6"}, out[0].Lots)
	assert.Equal(t, []string{"4", "5", "7"}, out[1].Lots)
	// input untouched
	assert.Equal(t, []string{"1", "2", "3"}, splits[0].Lots)
}

func TestExpectVersionConflict(t *testing.T) {
	ctx := context.Background()
	_, store := newService(t)
	_, err := store.Apply(ctx, key, MarkOp(key, "L1", 0))
	require.NoError(t, err)
	_, err = store.Apply(ctx, key, ExpectVersion(1, MoveOp(1, "L2")))
	require.NoError(t, err)
	_, err = store.Apply(ctx, key, ExpectVersion(1, MoveOp(1, "L3")))
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestServiceExpectedVersion(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Get(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Mark(WithExpectedVersion(ctx, 0), key, "L1", 0)
	require.NoError(t, err)

	splits, err := svc.Get(ctx, key)
	require.NoError(t, err)
	seen := Version(splits)

	_, err = svc.Move(WithExpectedVersion(ctx, seen), key, 1, "L2")
	require.NoError(t, err)
	_, err = svc.Move(WithExpectedVersion(ctx, seen), key, 1, "L3")
	require.ErrorIs(t, err, ErrConflict)
	err = svc.Unmark(WithExpectedVersion(ctx, seen), key)
	require.ErrorIs(t, err, ErrConflict)

	splits, err = svc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "L2", splits[0].LineID)
	assert.Equal(t, seen+1, Version(splits))

	_, err = svc.Get(ctx, model.PinKey{Process: "machining"})
	require.Error(t, err)
}

func TestConcurrentMarkOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, pinned := 0, 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Mark(ctx, key, fmt.Sprintf("L%d", i), 0)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAlreadyPinned):
				pinned++
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 15, pinned)
}

func TestServicePublishesEvents(t *testing.T) {
	bus := eventbus.New()
	ch := bus.Subscribe()
	svc, err := NewService(NewMemoryStore(), nil, bus, nil)
	require.NoError(t, err)
	_, err = svc.Mark(context.Background(), key, "L1", 3)
	require.NoError(t, err)
	ev := (<-ch).(events.PinEvent)
	assert.Equal(t, "mark", ev.Action)
	assert.Equal(t, "L1", ev.LineID)
}
