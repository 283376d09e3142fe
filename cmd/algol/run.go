package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ava-labs/algol/pkg/messaging"
	"github.com/ava-labs/algol/pkg/metrics"
	"github.com/ava-labs/algol/pkg/utils"
)

// newLogger creates the command logger and logs the effective configuration.
func newLogger(cfg *Config) (*zap.SugaredLogger, error) {
	sugar, err := utils.NewSugaredLogger(cfg.AppName, cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"appName", cfg.AppName,
		"appVersion", fmt.Sprintf("%d.%d.%d", cfg.Major, cfg.Minor, cfg.Patch),
		"instanceID", cfg.InstanceID,
		"strictRouting", cfg.Broker.StrictRouting,
		"queueCapacity", cfg.Broker.QueueCapacity,
		"maxSubscriptions", cfg.Broker.MaxSubscriptions,
		"pollInterval", *cfg.Broker.PollInterval,
		"drainTimeout", *cfg.Broker.DrainTimeout,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)
	return sugar, nil
}

// startBroker creates and initializes a broker. m may be nil.
func startBroker(sugar *zap.SugaredLogger, cfg *Config, m *metrics.Metrics) (*messaging.Broker, error) {
	b, err := messaging.NewBroker(sugar, cfg.Broker, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create broker: %w", err)
	}
	if err := b.Init(cfg.AppName, cfg.Major, cfg.Minor, cfg.Patch, cfg.InstanceID); err != nil {
		return nil, fmt.Errorf("failed to initialize broker: %w", err)
	}
	return b, nil
}

// stopBroker cleans up the broker, logging instead of failing.
func stopBroker(sugar *zap.SugaredLogger, b *messaging.Broker) {
	if err := b.Cleanup(); err != nil {
		sugar.Warnw("broker cleanup error", "error", err)
	}
}
