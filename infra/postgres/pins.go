package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/foundry/core/model"
	"github.com/kilianp07/foundry/core/pins"
)

// PinStore implements pins.Store. Apply locks the key's rows with
// FOR UPDATE NOWAIT so a concurrent operation fails with pins.ErrConflict
// instead of waiting and overwriting.
type PinStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ pins.Store = (*PinStore)(nil)

func NewPinStore(pool *pgxpool.Pool) *PinStore {
	return &PinStore{pool: pool, now: time.Now}
}

const selectSplits = `
	SELECT process, order_id, position, is_test, split_id, line_id, quantity, lots, updated_at, version
	FROM pin_splits`

func scanSplits(rows pgx.Rows) ([]model.PinnedSplit, error) {
	defer rows.Close()
	var out []model.PinnedSplit
	for rows.Next() {
		var s model.PinnedSplit
		if err := rows.Scan(&s.Key.Process, &s.Key.OrderID, &s.Key.Position, &s.Key.IsTest,
			&s.SplitID, &s.LineID, &s.Quantity, &s.Lots, &s.UpdatedAt, &s.Version); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		s.UpdatedAt = s.UpdatedAt.UTC()
		if len(s.Lots) == 0 {
			s.Lots = nil
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (s *PinStore) Apply(ctx context.Context, key model.PinKey, op pins.Op) (out []model.PinnedSplit, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			if isConflict(err) {
				err = fmt.Errorf("%w: %s: %v", pins.ErrConflict, key, err)
			}
		}
	}()

	rows, err := tx.Query(ctx, selectSplits+`
		WHERE process = $1 AND order_id = $2 AND position = $3 AND is_test = $4
		ORDER BY split_id
		FOR UPDATE NOWAIT`, key.Process, key.OrderID, key.Position, key.IsTest)
	if err != nil {
		return nil, err
	}
	current, err := scanSplits(rows)
	if err != nil {
		return nil, err
	}
	next, err := op(current, s.now().UTC())
	if err != nil {
		return nil, err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM pin_splits
		WHERE process = $1 AND order_id = $2 AND position = $3 AND is_test = $4`,
		key.Process, key.OrderID, key.Position, key.IsTest); err != nil {
		return nil, err
	}
	for _, sp := range next {
		lots := sp.Lots
		if lots == nil {
			lots = []string{}
		}
		if _, err = tx.Exec(ctx, `INSERT INTO pin_splits
			(process, order_id, position, is_test, split_id, line_id, quantity, lots, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			key.Process, key.OrderID, key.Position, key.IsTest,
			sp.SplitID, sp.LineID, sp.Quantity, lots, sp.UpdatedAt, sp.Version); err != nil {
			return nil, err
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	if len(next) == 0 {
		return nil, nil
	}
	return next, nil
}

func (s *PinStore) Get(ctx context.Context, key model.PinKey) ([]model.PinnedSplit, error) {
	rows, err := s.pool.Query(ctx, selectSplits+`
		WHERE process = $1 AND order_id = $2 AND position = $3 AND is_test = $4
		ORDER BY split_id`, key.Process, key.OrderID, key.Position, key.IsTest)
	if err != nil {
		return nil, fmt.Errorf("get splits: %w", err)
	}
	out, err := scanSplits(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, pins.ErrNotFound
	}
	return out, nil
}

func (s *PinStore) List(ctx context.Context, process string) ([]model.PinnedSplit, error) {
	rows, err := s.pool.Query(ctx, selectSplits+`
		WHERE $1 = '' OR process = $1`, process)
	if err != nil {
		return nil, fmt.Errorf("list splits: %w", err)
	}
	out, err := scanSplits(rows)
	if err != nil {
		return nil, err
	}
	pins.SortSplits(out)
	return out, nil
}
