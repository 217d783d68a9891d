package factory

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

type sinkConf struct {
	URL      string        `json:"url"`
	Batch    int           `json:"batch"`
	Interval time.Duration `json:"interval"`
}

func TestRegistryCreateDecodes(t *testing.T) {
	reg := NewRegistry[sinkConf]()
	if err := reg.Register("influx", func(conf map[string]any) (sinkConf, error) {
		var c sinkConf
		err := Decode(conf, &c)
		return c, err
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, err := reg.Create(ModuleConfig{Type: "influx", Conf: map[string]any{
		"url":      "http://influx:8086",
		"batch":    "50", // env overrides are strings
		"interval": "2s",
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := sinkConf{URL: "http://influx:8086", Batch: 50, Interval: 2 * time.Second}
	if got != want {
		t.Fatalf("decoded %+v, want %+v", got, want)
	}
}

func TestRegistryErrors(t *testing.T) {
	reg := NewRegistry[int]()
	for _, name := range []string{"lp", "greedy"} {
		if err := reg.Register(name, func(map[string]any) (int, error) { return 1, nil }); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if err := reg.Register("lp", func(map[string]any) (int, error) { return 2, nil }); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := reg.Register("nil", nil); err == nil {
		t.Fatal("expected nil factory error")
	}
	if _, err := reg.Create(ModuleConfig{Type: "cplex"}); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if names := reg.Names(); !reflect.DeepEqual(names, []string{"greedy", "lp"}) {
		t.Fatalf("names %v", names)
	}
}
