package plugins

import (
	"errors"

	"github.com/kilianp07/foundry/core/pins"
	"github.com/kilianp07/foundry/core/planner"
	"github.com/kilianp07/foundry/infra/postgres"
	"github.com/kilianp07/foundry/infra/sqlite"
)

var errNoPool = errors.New("postgres backend selected without a postgres.dsn")

func noop() error { return nil }

func init() {
	RegisterPinStore("memory", func(Deps) (pins.Store, func() error, error) {
		return pins.NewMemoryStore(), noop, nil
	})
	RegisterPinStore("sqlite", func(d Deps) (pins.Store, func() error, error) {
		s, err := sqlite.NewPinStore(d.Config.Pins.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	})
	RegisterPinStore("postgres", func(d Deps) (pins.Store, func() error, error) {
		if d.Pool == nil {
			return nil, nil, errNoPool
		}
		return postgres.NewPinStore(d.Pool), noop, nil
	})

	RegisterLocker("memory", func(Deps) (planner.Locker, error) {
		return planner.NewMemoryLocker(), nil
	})
	RegisterLocker("postgres", func(d Deps) (planner.Locker, error) {
		if d.Pool == nil {
			return nil, errNoPool
		}
		return postgres.NewLocker(d.Pool), nil
	})
}
