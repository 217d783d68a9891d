package dispatch

import "fmt"

// Config defines dispatch-related settings.
type Config struct {
	// Process is the finishing process dispatched when none is given.
	Process string `json:"process"`
	// PublishQueues sends each line queue to the configured publisher.
	PublishQueues bool `json:"publish_queues"`
	// PublishTimeoutSeconds bounds each queue publication.
	PublishTimeoutSeconds int `json:"publish_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Process == "" {
		c.Process = "machining"
	}
	if c.PublishTimeoutSeconds <= 0 {
		c.PublishTimeoutSeconds = 5
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.PublishTimeoutSeconds < 0 {
		return fmt.Errorf("dispatch: negative publish timeout")
	}
	return nil
}
