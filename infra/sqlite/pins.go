// Package sqlite persists pinned splits in a local SQLite file for
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/foundry/core/model"
	"github.com/kilianp07/foundry/core/pins"
)

// PinStore implements pins.Store. The database runs with a single
// connection, so Apply transactions are serialised within the process.
// Transactions begin IMMEDIATE: a writer in another process blocks Apply
// before it reads, and once the busy timeout expires the call fails with
// pins.ErrConflict without running its op.
type PinStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ pins.Store = (*PinStore)(nil)

const schema = `CREATE TABLE IF NOT EXISTS pin_splits (
	process    TEXT    NOT NULL,
	order_id   TEXT    NOT NULL,
	position   TEXT    NOT NULL,
	is_test    INTEGER NOT NULL,
	split_id   INTEGER NOT NULL,
	line_id    TEXT    NOT NULL,
	quantity   INTEGER NOT NULL,
	lots       TEXT    NOT NULL,
	updated_at INTEGER NOT NULL,
	version    INTEGER NOT NULL,
	PRIMARY KEY (process, order_id, position, is_test, split_id)
);`

// NewPinStore opens or creates the database at path and ensures the schema.
func NewPinStore(path string) (*PinStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_txlock=immediate")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &PinStore{db: db, now: time.Now}, nil
}

const selectSplits = `SELECT process, order_id, position, is_test, split_id, line_id, quantity, lots, updated_at, version
	FROM pin_splits`

const keyFilter = ` WHERE process = ? AND order_id = ? AND position = ? AND is_test = ?`

func keyArgs(k model.PinKey) []any {
	return []any{k.Process, k.OrderID, k.Position, k.IsTest}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func query(ctx context.Context, q querier, stmt string, args ...any) ([]model.PinnedSplit, error) {
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.PinnedSplit
	for rows.Next() {
		var (
			s    model.PinnedSplit
			lots string
			ts   int64
		)
		if err := rows.Scan(&s.Key.Process, &s.Key.OrderID, &s.Key.Position, &s.Key.IsTest,
			&s.SplitID, &s.LineID, &s.Quantity, &lots, &ts, &s.Version); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(lots), &s.Lots); err != nil {
			return nil, fmt.Errorf("decode lots of %s: %w", s.Key, err)
		}
		if len(s.Lots) == 0 {
			s.Lots = nil
		}
		s.UpdatedAt = time.Unix(0, ts).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (s *PinStore) Apply(ctx context.Context, key model.PinKey, op pins.Op) (out []model.PinnedSplit, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusy(err) {
			return nil, fmt.Errorf("%w: %s: %v", pins.ErrConflict, key, err)
		}
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			if isBusy(err) {
				err = fmt.Errorf("%w: %s: %v", pins.ErrConflict, key, err)
			}
		}
	}()

	current, err := query(ctx, tx, selectSplits+keyFilter+` ORDER BY split_id`, keyArgs(key)...)
	if err != nil {
		return nil, err
	}
	next, err := op(current, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM pin_splits`+keyFilter, keyArgs(key)...); err != nil {
		return nil, err
	}
	for _, sp := range next {
		lots, err := json.Marshal(sp.Lots)
		if err != nil {
			return nil, err
		}
		if sp.Lots == nil {
			lots = []byte("[]")
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO pin_splits
			(process, order_id, position, is_test, split_id, line_id, quantity, lots, updated_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			key.Process, key.OrderID, key.Position, key.IsTest,
			sp.SplitID, sp.LineID, sp.Quantity, string(lots), sp.UpdatedAt.UnixNano(), sp.Version); err != nil {
			return nil, err
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	if len(next) == 0 {
		return nil, nil
	}
	return next, nil
}

func (s *PinStore) Get(ctx context.Context, key model.PinKey) ([]model.PinnedSplit, error) {
	out, err := query(ctx, s.db, selectSplits+keyFilter+` ORDER BY split_id`, keyArgs(key)...)
	if err != nil {
		return nil, fmt.Errorf("get splits: %w", err)
	}
	if len(out) == 0 {
		return nil, pins.ErrNotFound
	}
	return out, nil
}

func (s *PinStore) List(ctx context.Context, process string) ([]model.PinnedSplit, error) {
	out, err := query(ctx, s.db, selectSplits+` WHERE ? = '' OR process = ?`, process, process)
	if err != nil {
		return nil, fmt.Errorf("list splits: %w", err)
	}
	pins.SortSplits(out)
	return out, nil
}

// Close closes the underlying database.
func (s *PinStore) Close() error {
	if s.db == nil {
		return errors.New("sqlite: store not open")
	}
	return s.db.Close()
}
