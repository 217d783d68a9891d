package runlog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func sample(base time.Time) []Record {
	return []Record{
		{ID: "d1", Kind: KindDispatch, Scope: "machining", Timestamp: base, Status: "completed", Summary: map[string]int{"assigned": 3}},
		{ID: "p1", Kind: KindPlan, Scope: "base", Timestamp: base.Add(time.Minute), Status: "completed"},
		{ID: "p2", Kind: KindPlan, Scope: "base", Timestamp: base.Add(2 * time.Minute), Status: "failed", Error: "missing resources"},
		{ID: "p3", Kind: KindPlan, Scope: "overtime", Timestamp: base.Add(3 * time.Minute), Status: "completed"},
	}
}

func exercise(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	for _, r := range sample(base) {
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("append %s: %v", r.ID, err)
		}
	}
	checks := []struct {
		q    Query
		want []string
	}{
		{Query{}, []string{"d1", "p1", "p2", "p3"}},
		{Query{Kind: KindPlan, Scope: "base"}, []string{"p1", "p2"}},
		{Query{Kind: KindPlan, Limit: 2}, []string{"p2", "p3"}},
		{Query{ID: "d1"}, []string{"d1"}},
		{Query{Start: base.Add(90 * time.Second), End: base.Add(150 * time.Second)}, []string{"p2"}},
	}
	for i, c := range checks {
		got, err := store.Query(ctx, c.q)
		if err != nil {
			t.Fatalf("check %d: query: %v", i, err)
		}
		if ids(got) != fmt.Sprint(c.want) {
			t.Fatalf("check %d: got %s want %v", i, ids(got), c.want)
		}
	}
	got, _ := store.Query(ctx, Query{ID: "d1"})
	if got[0].Summary["assigned"] != 3 {
		t.Fatalf("summary not persisted: %+v", got[0])
	}
}

func ids(recs []Record) string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return fmt.Sprint(out)
}

func TestJSONLStore(t *testing.T) {
	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "runs.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()
	exercise(t, store)
}

func TestRotatingJSONLStore(t *testing.T) {
	store, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "logs", "runs.jsonl"), 1, 2, 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()
	exercise(t, store)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()
	exercise(t, store)
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(Options{Backend: "parquet", Path: "x"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	s, err := Open(Options{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "r.db")})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	_ = s.Close()
}
