// Package runlog persists a record of every dispatch and planning run.
package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Kind distinguishes the scheduler that produced a record.
type Kind string

const (
	KindDispatch Kind = "dispatch"
	KindPlan     Kind = "plan"
)

// Record captures one scheduling run and its outcome.
type Record struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Scope     string    `json:"scope"` // process for dispatch runs, scenario for plans
	Timestamp time.Time `json:"timestamp"`
	Duration  int64     `json:"duration_ms"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	// Summary holds run counters such as assigned jobs or skipped orders.
	Summary map[string]int  `json:"summary,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Query defines filters for retrieving records. Zero fields match everything.
// Limit keeps the most recent records.
type Query struct {
	ID    string
	Kind  Kind
	Scope string
	Start time.Time
	End   time.Time
	Limit int
}

// Match reports whether r satisfies the query filters, ignoring Limit.
func (q Query) Match(r Record) bool {
	if q.ID != "" && r.ID != q.ID {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	if q.Scope != "" && r.Scope != q.Scope {
		return false
	}
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// finish orders records by time and applies the limit.
func finish(recs []Record, limit int) []Record {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs
}

// Options selects and configures a store backend.
type Options struct {
	// Backend is "jsonl", "rotating" or "sqlite".
	Backend    string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Open creates the store described by opts.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "jsonl", "":
		return NewJSONLStore(opts.Path)
	case "rotating":
		return NewRotatingJSONLStore(opts.Path, opts.MaxSizeMB, opts.MaxBackups, opts.MaxAgeDays)
	case "sqlite":
		return NewSQLiteStore(opts.Path)
	}
	return nil, fmt.Errorf("unknown run log backend %s", opts.Backend)
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }
