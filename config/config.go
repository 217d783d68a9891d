package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/foundry/core/dispatch"
	"github.com/kilianp07/foundry/core/metrics"
	"github.com/kilianp07/foundry/core/planner"
	"github.com/kilianp07/foundry/infra/amqp"
	"github.com/kilianp07/foundry/infra/mqtt"
	"github.com/kilianp07/foundry/infra/postgres"
)

type Config struct {
	LogLevel  string          `json:"log_level"`
	HTTP      HTTPConfig      `json:"http"`
	Snapshots SnapshotConfig  `json:"snapshots"`
	Pins      PinsConfig      `json:"pins"`
	Dispatch  dispatch.Config `json:"dispatch"`
	Planner   planner.Config  `json:"planner"`
	MQTT      mqtt.Config     `json:"mqtt"`
	AMQP      amqp.Config     `json:"amqp"`
	Postgres  postgres.Config `json:"postgres"`
	Metrics   metrics.Config  `json:"metrics"`
	Logging   LoggingConfig   `json:"logging"`
	Sentry    SentryConfig    `json:"sentry"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `json:"addr"`
	// Token, when set, is required as a bearer token on every request.
	Token string `json:"token"`
}

// SnapshotConfig points at the directory holding scenario snapshots.
type SnapshotConfig struct {
	Dir string `json:"dir"`
}

// PinsConfig selects where pinned work is stored: "memory", "sqlite" or
// "postgres".
type PinsConfig struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Snapshots.Dir == "" {
		c.Snapshots.Dir = "snapshots"
	}
	if c.Pins.Backend == "" {
		c.Pins.Backend = "memory"
	}
	if c.Pins.Backend == "sqlite" && c.Pins.Path == "" {
		c.Pins.Path = "pins.db"
	}
	c.Dispatch.SetDefaults()
	c.Planner.SetDefaults()
	c.MQTT.SetDefaults()
	c.AMQP.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section and cross-section requirement.
func (c Config) Validate() error {
	switch c.Pins.Backend {
	case "memory", "sqlite":
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("pins: postgres backend requires postgres.dsn")
		}
	default:
		return fmt.Errorf("pins: unknown backend %q", c.Pins.Backend)
	}
	if c.Dispatch.PublishQueues && c.MQTT.Broker == "" {
		return errors.New("dispatch: publish_queues requires mqtt.broker")
	}
	if err := c.Dispatch.Validate(); err != nil {
		return err
	}
	if err := c.Planner.Validate(); err != nil {
		return err
	}
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
