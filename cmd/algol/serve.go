package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/algol/pkg/messaging"
	"github.com/ava-labs/algol/pkg/metrics"
	"github.com/ava-labs/algol/pkg/scheduler"
)

func serve(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}
	if cfg.StatsInterval <= 0 || cfg.BacklogInterval <= 0 {
		return errors.New("stats-interval and backlog-interval must be greater than 0")
	}

	sugar, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	// Initialize Prometheus metrics with labels for multi-instance filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		App:           cfg.AppName,
		Environment:   cfg.Environment,
		Region:        cfg.Region,
		CloudProvider: cfg.CloudProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	b, err := startBroker(sugar, cfg, m)
	if err != nil {
		return err
	}

	comm, err := declare(sugar, b, cfg.Declare)
	if err != nil {
		stopBroker(sugar, b)
		return err
	}

	// Start metrics server
	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, brokerHealth(b))
	metricsErrCh := metricsServer.Start()
	if cfg.MetricsHost == "" {
		sugar.Infof("metrics server listening on http://0.0.0.0:%d/metrics", cfg.MetricsPort)
	} else {
		sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := scheduler.Start(gctx, b, m, cfg.StatsInterval); err != nil {
			return fmt.Errorf("stats sampler error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		scheduler.StartBacklogWatchdog(gctx, sugar, b, m, cfg.BacklogInterval, cfg.MaxBacklog)
		return nil
	})

	// Metrics server error monitoring goroutine
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		}
	})

	sugar.Info("broker running")

	// Wait for first error or completion from any goroutine
	err = g.Wait()

	sugar.Info("stopping subscriptions")
	closeCtx, cancelClose := context.WithTimeout(context.Background(), *cfg.Broker.DrainTimeout)
	defer cancelClose()
	if closeErr := comm.Close(closeCtx); closeErr != nil {
		sugar.Warnw("communicator close error", "error", closeErr)
	}
	stopBroker(sugar, b)

	// Gracefully shutdown metrics server
	sugar.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
		sugar.Warnw("metrics server shutdown error", "error", shutdownErr)
	}

	sugar.Info("shutdown complete")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// brokerHealth reports unhealthy once the broker has been cleaned up.
func brokerHealth(b *messaging.Broker) metrics.HealthCheck {
	return func() error {
		if !b.Initialized() {
			return messaging.ErrNotInitialized
		}
		return nil
	}
}

// declare creates every destination and subscribes a logging consumer to it.
func declare(sugar *zap.SugaredLogger, b *messaging.Broker, dests []destination) (*messaging.Communicator, error) {
	logHandler := messaging.HandlerFunc(func(_ context.Context, msg messaging.Message) error {
		sugar.Debugw("message received",
			"exchange", msg.Exchange(),
			"queue", msg.Queue(),
			"seq", msg.Seq(),
			"bytes", msg.Len(),
		)
		sugar.Debug(msg.DumpStr())
		return nil
	})

	comm, err := messaging.NewCommunicator(b, "serve", logHandler)
	if err != nil {
		return nil, err
	}

	for _, d := range dests {
		if _, err := b.ResolveQueue(d.Exchange, d.Queue, true); err != nil {
			return nil, fmt.Errorf("failed to declare %s/%s: %w", d.Exchange, d.Queue, err)
		}
		if err := comm.Subscribe(d.Exchange, d.Queue); err != nil {
			return nil, fmt.Errorf("failed to subscribe to %s/%s: %w", d.Exchange, d.Queue, err)
		}
		sugar.Infow("declared", "exchange", d.Exchange, "queue", d.Queue)
	}
	return comm, nil
}
