package metrics

import "github.com/kilianp07/foundry/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks          []factory.ModuleConfig `json:"sinks"`
	PrometheusPort int                    `json:"prometheus_port"`
}
