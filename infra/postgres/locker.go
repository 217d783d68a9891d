package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/foundry/core/planner"
)

// Locker implements planner.Locker with session advisory locks, so runs of a
// scenario are serialised across every process sharing the database.
type Locker struct {
	pool *pgxpool.Pool
}

var _ planner.Locker = (*Locker)(nil)

func NewLocker(pool *pgxpool.Pool) *Locker { return &Locker{pool: pool} }

func (l *Locker) Lock(ctx context.Context, scenario string) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire: %w", err)
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, scenario).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock %s: %w", scenario, err)
	}
	if !ok {
		conn.Release()
		return nil, fmt.Errorf("%w: %s", planner.ErrScenarioBusy, scenario)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, scenario)
			conn.Release()
		})
	}, nil
}
