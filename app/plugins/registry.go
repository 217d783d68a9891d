// Package plugins maps configuration names to storage backends.
package plugins

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/foundry/config"
	"github.com/kilianp07/foundry/core/pins"
	"github.com/kilianp07/foundry/core/planner"
)

// Deps are the shared resources a backend may need. Pool is nil when no
// Postgres DSN is configured.
type Deps struct {
	Config *config.Config
	Pool   *pgxpool.Pool
}

// PinStoreFactory builds a pin store and the function releasing it.
type PinStoreFactory func(d Deps) (pins.Store, func() error, error)

// LockerFactory builds the lock serialising runs of a scenario.
type LockerFactory func(d Deps) (planner.Locker, error)

var (
	PinStores = map[string]PinStoreFactory{}
	Lockers   = map[string]LockerFactory{}
)

func RegisterPinStore(name string, f PinStoreFactory) { PinStores[name] = f }
func RegisterLocker(name string, f LockerFactory)     { Lockers[name] = f }
