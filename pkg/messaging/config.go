package messaging

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Default values applied by WithDefaults.
const (
	DefaultMaxSubscriptions = 1024
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultDrainTimeout     = 30 * time.Second
)

// Config holds the broker configuration.
type Config struct {
	StrictRouting    bool           `env:"ALGOL_STRICT_ROUTING"    envDefault:"false"` // Fail on unknown exchanges/queues instead of creating them
	QueueCapacity    int            `env:"ALGOL_QUEUE_CAPACITY"    envDefault:"0"`     // Max pending messages per queue, 0 means unbounded
	MaxSubscriptions int64          `env:"ALGOL_MAX_SUBSCRIPTIONS" envDefault:"1024"`  // Max concurrently running subscription workers
	PollInterval     *time.Duration `env:"ALGOL_POLL_INTERVAL"     envDefault:"100ms"` // Upper bound on how long an idle worker sleeps between checks
	DrainTimeout     *time.Duration `env:"ALGOL_DRAIN_TIMEOUT"     envDefault:"30s"`   // How long Cleanup waits for workers to exit
}

// LoadConfig loads the broker configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse broker config: %w", err)
	}
	return cfg.WithDefaults(), nil
}

// DefaultConfig returns a lenient, unbounded configuration.
func DefaultConfig() Config {
	return Config{}.WithDefaults()
}

// WithDefaults returns a copy of the config with default values filled in for any unset fields.
// This method does not mutate the original config.
func (c Config) WithDefaults() Config {
	if c.MaxSubscriptions <= 0 {
		c.MaxSubscriptions = DefaultMaxSubscriptions
	}
	if c.PollInterval == nil || *c.PollInterval <= 0 {
		interval := DefaultPollInterval
		c.PollInterval = &interval
	}
	if c.DrainTimeout == nil {
		timeout := DefaultDrainTimeout
		c.DrainTimeout = &timeout
	}
	return c
}

// Validate reports configuration values that cannot be defaulted.
func (c Config) Validate() error {
	if c.QueueCapacity < 0 {
		return errors.New("invalid queue capacity: must not be negative")
	}
	if c.DrainTimeout != nil && *c.DrainTimeout < 0 {
		return errors.New("invalid drain timeout: must not be negative")
	}
	return nil
}
