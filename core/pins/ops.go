// Package pins manages operator-frozen work: order positions pinned to a
// line, optionally split across several lines.
package pins

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/foundry/core/model"
)

var (
	// ErrConflict is returned when a concurrent change to the same key won.
	ErrConflict = errors.New("pins: concurrent modification")
	// ErrAlreadyPinned is returned when marking a key that is already pinned.
	ErrAlreadyPinned = errors.New("pins: already pinned")
	// ErrNotFound is returned for unknown keys or splits.
	ErrNotFound = errors.New("pins: not found")
	// ErrAlreadySplit is returned when splitting a key that has several splits.
	ErrAlreadySplit = errors.New("pins: already split")
	// ErrInvalidQuantity is returned for negative quantities or totals too
	// small to split.
	ErrInvalidQuantity = errors.New("pins: invalid quantity")
	// ErrLineRequired is returned when a mark or move names no line.
	ErrLineRequired = errors.New("pins: line id is required")
)

// Op transforms the current splits of one key into the new ones. It runs
// inside the store's atomic read-modify-write; returning no splits releases
// the key.
type Op func(current []model.PinnedSplit, now time.Time) ([]model.PinnedSplit, error)

// MarkOp pins the key to a line as a single split. qty 0 means "whatever
// remains of the job" and is kept as 0.
func MarkOp(key model.PinKey, lineID string, qty int) Op {
	return func(cur []model.PinnedSplit, now time.Time) ([]model.PinnedSplit, error) {
		if len(cur) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyPinned, key)
		}
		if qty < 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
		}
		return []model.PinnedSplit{{Key: key, SplitID: 1, LineID: lineID, Quantity: qty, UpdatedAt: now, Version: 1}}, nil
	}
}

// UnmarkOp releases every split of the key.
func UnmarkOp() Op {
	return func(cur []model.PinnedSplit, _ time.Time) ([]model.PinnedSplit, error) {
		if len(cur) == 0 {
			return nil, ErrNotFound
		}
		return nil, nil
	}
}

// MoveOp moves one split to another line.
func MoveOp(splitID int, lineID string) Op {
	return func(cur []model.PinnedSplit, now time.Time) ([]model.PinnedSplit, error) {
		out := clone(cur)
		for i := range out {
			if out[i].SplitID == splitID {
				out[i].LineID = lineID
				out[i].UpdatedAt = now
				out[i].Version++
				return out, nil
			}
		}
		return nil, fmt.Errorf("%w: split %d", ErrNotFound, splitID)
	}
}

// SplitOp turns a single-split pin into two splits on the same line whose
// quantities differ by at most one unit. A pin with a stored quantity is
// halved from that quantity. An auto pin is halved from total, the job
// quantity the operator sees, but its second split stays auto so it keeps
// absorbing later changes to the job. Lots are shared out the same way.
func SplitOp(total int) Op {
	return func(cur []model.PinnedSplit, now time.Time) ([]model.PinnedSplit, error) {
		switch {
		case len(cur) == 0:
			return nil, ErrNotFound
		case len(cur) > 1:
			return nil, ErrAlreadySplit
		}
		first, second := cur[0], cur[0]
		base := first.Quantity
		if first.Auto() {
			base = total
		}
		if base < 2 {
			return nil, fmt.Errorf("%w: cannot split %d units", ErrInvalidQuantity, base)
		}
		a, b := BalancedQuantities(base)
		first.Quantity, second.Quantity = a, b
		if cur[0].Auto() {
			second.Quantity = 0
		}
		second.SplitID = first.SplitID + 1
		cut := (len(first.Lots) + 1) / 2
		lots := append([]string(nil), first.Lots...)
		first.Lots, second.Lots = lots[:cut:cut], lots[cut:]
		first.UpdatedAt, second.UpdatedAt = now, now
		first.Version++
		second.Version = first.Version
		return []model.PinnedSplit{first, second}, nil
	}
}

// SyncLotsOp reconciles split lots with the lots currently reported upstream.
func SyncLotsOp(lots []string) Op {
	return func(cur []model.PinnedSplit, now time.Time) ([]model.PinnedSplit, error) {
		if len(cur) == 0 {
			return nil, ErrNotFound
		}
		before := make(map[int][]string, len(cur))
		for _, s := range cur {
			before[s.SplitID] = s.Lots
		}
		out := ReconcileLots(cur, lots)
		for i := range out {
			if !sameLots(out[i].Lots, before[out[i].SplitID]) {
				out[i].UpdatedAt = now
				out[i].Version++
			}
		}
		return out, nil
	}
}

// ExpectVersion guards op with the highest split version the caller saw.
// A mismatch means someone else changed the key first.
func ExpectVersion(version int64, op Op) Op {
	return func(cur []model.PinnedSplit, now time.Time) ([]model.PinnedSplit, error) {
		if v := Version(cur); v != version {
			return nil, fmt.Errorf("%w: version %d, expected %d", ErrConflict, v, version)
		}
		return op(cur, now)
	}
}

// Version is the highest version among splits.
func Version(splits []model.PinnedSplit) int64 {
	var v int64
	for _, s := range splits {
		if s.Version > v {
			v = s.Version
		}
	}
	return v
}

// BalancedQuantities splits total into two integers differing by at most one,
// the larger first.
func BalancedQuantities(total int) (int, int) {
	return (total + 1) / 2, total / 2
}

// ReconcileLots keeps already-assigned lots with their split, drops lots no
// longer reported and routes new lots to the split holding the fewest lots,
// lowest split id on ties. Splits are returned sorted by split id.
func ReconcileLots(splits []model.PinnedSplit, current []string) []model.PinnedSplit {
	out := clone(splits)
	sort.Slice(out, func(i, j int) bool { return out[i].SplitID < out[j].SplitID })
	reported := make(map[string]bool, len(current))
	for _, l := range current {
		reported[l] = true
	}
	owned := make(map[string]bool)
	for i := range out {
		kept := out[i].Lots[:0:0]
		for _, l := range out[i].Lots {
			if reported[l] && !owned[l] {
				kept = append(kept, l)
				owned[l] = true
			}
		}
		out[i].Lots = kept
	}
	if len(out) == 0 {
		return out
	}
	for _, l := range current {
		if owned[l] {
			continue
		}
		owned[l] = true
		target := 0
		for i := range out {
			if len(out[i].Lots) < len(out[target].Lots) {
				target = i
			}
		}
		out[target].Lots = append(out[target].Lots, l)
	}
	return out
}

// Resolve joins splits with their jobs and turns auto quantities into the
// part of the job not claimed by explicit splits, never below zero. Several
// auto splits of one key share the remainder evenly. Splits whose job is gone
// are returned as orphans. Rows are ordered by key then split id.
func Resolve(splits []model.PinnedSplit, jobs []model.Job) (rows []model.PinnedRow, orphans []model.PinnedSplit) {
	byKey := make(map[model.PinKey]model.Job, len(jobs))
	for _, j := range jobs {
		if _, dup := byKey[j.PinKey()]; !dup {
			byKey[j.PinKey()] = j
		}
	}
	sorted := clone(splits)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Key != b.Key {
			return a.Key.String() < b.Key.String()
		}
		return a.SplitID < b.SplitID
	})
	for start := 0; start < len(sorted); {
		end := start
		for end < len(sorted) && sorted[end].Key == sorted[start].Key {
			end++
		}
		group := sorted[start:end]
		start = end
		job, ok := byKey[group[0].Key]
		if !ok {
			orphans = append(orphans, group...)
			continue
		}
		explicit, autos := 0, 0
		for _, s := range group {
			if s.Auto() {
				autos++
			} else {
				explicit += s.Quantity
			}
		}
		remaining := job.Quantity - explicit
		if remaining < 0 {
			remaining = 0
		}
		seen := 0
		for _, s := range group {
			qty := s.Quantity
			if s.Auto() {
				qty = remaining / autos
				if seen < remaining%autos {
					qty++
				}
				seen++
			}
			rows = append(rows, model.PinnedRow{Job: job, LineID: s.LineID, SplitID: s.SplitID, Quantity: qty})
		}
	}
	return rows, orphans
}

func clone(in []model.PinnedSplit) []model.PinnedSplit {
	out := make([]model.PinnedSplit, len(in))
	for i, s := range in {
		s.Lots = append([]string(nil), s.Lots...)
		out[i] = s
	}
	return out
}

func sameLots(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
