package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/algol/pkg/messaging"
)

// Config holds all configuration for the algol commands
type Config struct {
	// Application settings
	Verbose    bool
	AppName    string
	Major      int
	Minor      int
	Patch      int
	InstanceID string

	Broker messaging.Config

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	Environment   string
	Region        string
	CloudProvider string

	// smoke and bench
	Exchange   string
	Queue      string
	Count      int
	Publishers int
	Window     time.Duration

	// serve
	Declare         []destination
	StatsInterval   time.Duration
	BacklogInterval time.Duration
	MaxBacklog      int
}

type destination struct {
	Exchange string
	Queue    string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// buildConfig builds a Config from CLI context flags. Broker settings start
// from the ALGOL_* environment and are overridden by flags set explicitly.
func buildConfig(c *cli.Context) (*Config, error) {
	major, minor, patch, err := parseVersion(c.String("app-version"))
	if err != nil {
		return nil, err
	}

	brokerCfg, err := buildBrokerConfig(c)
	if err != nil {
		return nil, fmt.Errorf("failed to build broker config: %w", err)
	}

	declare, err := parseDestinations(c.StringSlice("declare"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Verbose:         c.Bool("verbose"),
		AppName:         c.String("app-name"),
		Major:           major,
		Minor:           minor,
		Patch:           patch,
		InstanceID:      c.String("instance-id"),
		Broker:          brokerCfg,
		MetricsHost:     c.String("metrics-host"),
		MetricsPort:     c.Int("metrics-port"),
		Environment:     c.String("environment"),
		Region:          c.String("region"),
		CloudProvider:   c.String("cloud-provider"),
		Exchange:        c.String("exchange"),
		Queue:           c.String("queue"),
		Count:           c.Int("count"),
		Publishers:      c.Int("publishers"),
		Window:          c.Duration("window"),
		Declare:         declare,
		StatsInterval:   c.Duration("stats-interval"),
		BacklogInterval: c.Duration("backlog-interval"),
		MaxBacklog:      c.Int("max-backlog"),
	}
	if cfg.Count < 0 {
		return nil, fmt.Errorf("count must not be negative, got %d", cfg.Count)
	}
	if c.IsSet("publishers") && cfg.Publishers <= 0 {
		return nil, fmt.Errorf("publishers must be greater than 0, got %d", cfg.Publishers)
	}
	return cfg, nil
}

func buildBrokerConfig(c *cli.Context) (messaging.Config, error) {
	cfg, err := messaging.LoadConfig()
	if err != nil {
		return messaging.Config{}, err
	}
	if c.IsSet("strict") {
		cfg.StrictRouting = c.Bool("strict")
	}
	if c.IsSet("queue-capacity") {
		cfg.QueueCapacity = c.Int("queue-capacity")
	}
	if c.IsSet("max-subscriptions") {
		cfg.MaxSubscriptions = c.Int64("max-subscriptions")
	}
	if c.IsSet("poll-interval") {
		interval := c.Duration("poll-interval")
		cfg.PollInterval = &interval
	}
	if c.IsSet("drain-timeout") {
		timeout := c.Duration("drain-timeout")
		cfg.DrainTimeout = &timeout
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

// parseVersion parses "major.minor.patch". Missing trailing components are zero.
func parseVersion(v string) (major, minor, patch int, err error) {
	parts := strings.Split(v, ".")
	if v == "" || len(parts) > 3 {
		return 0, 0, 0, fmt.Errorf("invalid app version %q: want major.minor.patch", v)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, 0, 0, fmt.Errorf("invalid app version %q: want major.minor.patch", v)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}

// parseDestinations parses "exchange/queue" pairs. Values may also be comma-separated.
func parseDestinations(values []string) ([]destination, error) {
	var out []destination
	for _, value := range values {
		for _, raw := range strings.Split(value, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			exchange, queue, ok := strings.Cut(raw, "/")
			if !ok || exchange == "" || queue == "" {
				return nil, fmt.Errorf("invalid destination %q: want exchange/queue", raw)
			}
			out = append(out, destination{Exchange: exchange, Queue: queue})
		}
	}
	return out, nil
}
