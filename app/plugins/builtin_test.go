package plugins

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kilianp07/foundry/config"
	"github.com/kilianp07/foundry/core/model"
	"github.com/kilianp07/foundry/core/pins"
)

func TestBuiltinPinStores(t *testing.T) {
	cfg := &config.Config{Pins: config.PinsConfig{Path: filepath.Join(t.TempDir(), "pins.db")}}
	key := model.PinKey{Process: "machining", OrderID: "1", Position: "10"}
	for _, name := range []string{"memory", "sqlite"} {
		t.Run(name, func(t *testing.T) {
			f, ok := PinStores[name]
			if !ok {
				t.Fatalf("%s not registered", name)
			}
			store, closeFn, err := f(Deps{Config: cfg})
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			defer func() { _ = closeFn() }()
			if _, err := store.Apply(context.Background(), key, pins.MarkOp(key, "L1", 0)); err != nil {
				t.Fatalf("mark: %v", err)
			}
		})
	}
}

func TestPostgresBackendsNeedPool(t *testing.T) {
	if _, _, err := PinStores["postgres"](Deps{Config: &config.Config{}}); err == nil {
		t.Fatal("expected error without pool")
	}
	if _, err := Lockers["postgres"](Deps{}); err == nil {
		t.Fatal("expected error without pool")
	}
	l, err := Lockers["memory"](Deps{})
	if err != nil {
		t.Fatalf("memory locker: %v", err)
	}
	unlock, err := l.Lock(context.Background(), "north")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	unlock()
}
