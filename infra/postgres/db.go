// Package postgres stores pins and planner resources in PostgreSQL and
// serialises planning runs across processes with advisory locks.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config defines the database connection.
type Config struct {
	DSN      string `json:"dsn"`
	MaxConns int32  `json:"max_conns"`
	// Migrate creates the tables on startup.
	Migrate bool `json:"migrate"`
}

// NewPool opens and pings a connection pool.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pcfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if cfg.Migrate {
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS pin_splits (
	process    TEXT        NOT NULL,
	order_id   TEXT        NOT NULL,
	position   TEXT        NOT NULL,
	is_test    BOOLEAN     NOT NULL,
	split_id   INTEGER     NOT NULL,
	line_id    TEXT        NOT NULL,
	quantity   INTEGER     NOT NULL,
	lots       TEXT[]      NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL,
	version    BIGINT      NOT NULL,
	PRIMARY KEY (process, order_id, position, is_test, split_id)
);
CREATE TABLE IF NOT EXISTS planner_resources (
	scenario          TEXT PRIMARY KEY,
	flask_capacity    JSONB            NOT NULL,
	molds_per_day     INTEGER          NOT NULL,
	same_part_per_day INTEGER          NOT NULL,
	pour_tons_per_day DOUBLE PRECISION NOT NULL
);`

// Migrate creates the tables used by this package.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const (
	codeLockNotAvailable = "55P03"
	codeUniqueViolation  = "23505"
	codeSerialization    = "40001"
)

// isConflict reports errors caused by a concurrent writer.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeLockNotAvailable, codeUniqueViolation, codeSerialization:
		return true
	}
	return false
}
