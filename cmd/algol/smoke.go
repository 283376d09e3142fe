package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ava-labs/algol/pkg/messaging"
)

const quitBody = "quit"

func smoke(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := startBroker(sugar, cfg, nil)
	if err != nil {
		return err
	}
	defer stopBroker(sugar, b)

	res, err := runSmoke(ctx, sugar, b, cfg.Exchange, cfg.Queue, cfg.Count, cfg.Window)
	sugar.Infow("smoke test finished",
		"exchange", cfg.Exchange,
		"queue", cfg.Queue,
		"expected", cfg.Count,
		"delivered", res.Delivered,
		"elapsed", res.Elapsed,
	)
	return err
}

type smokeResult struct {
	Delivered int
	Elapsed   time.Duration
}

// runSmoke publishes count payloads followed by the quit sentinel, subscribes,
// and waits until the consumer sees quit or window passes. Every payload must
// arrive exactly once and in publish order.
func runSmoke(
	ctx context.Context,
	log *zap.SugaredLogger,
	b *messaging.Broker,
	exchange, queue string,
	count int,
	window time.Duration,
) (smokeResult, error) {
	var (
		mu       sync.Mutex
		received int
		orderErr error
		comm     *messaging.Communicator
	)
	quit := make(chan struct{})

	handler := messaging.HandlerFunc(func(_ context.Context, msg messaging.Message) error {
		if msg.BodyString() == quitBody {
			close(quit)
			return comm.Unsubscribe(exchange, queue)
		}
		mu.Lock()
		defer mu.Unlock()
		if want := fmt.Sprintf("payload-%d", received); msg.BodyString() != want && orderErr == nil {
			orderErr = fmt.Errorf("message %d out of order: got %q, want %q", received, msg.BodyString(), want)
		}
		received++
		return nil
	})

	comm, err := messaging.NewCommunicator(b, "smoke", handler)
	if err != nil {
		return smokeResult{}, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := comm.Close(closeCtx); err != nil {
			log.Warnw("communicator close error", "error", err)
		}
	}()

	start := time.Now()
	for i := range count {
		if _, err := comm.Publish(messaging.NewTextMessage(fmt.Sprintf("payload-%d", i)), exchange, queue); err != nil {
			return smokeResult{}, fmt.Errorf("failed to publish payload %d: %w", i, err)
		}
	}
	if _, err := comm.Publish(messaging.NewTextMessage(quitBody), exchange, queue); err != nil {
		return smokeResult{}, fmt.Errorf("failed to publish quit: %w", err)
	}
	log.Infow("published", "exchange", exchange, "queue", queue, "count", count)

	if err := comm.Subscribe(exchange, queue); err != nil {
		return smokeResult{}, fmt.Errorf("failed to subscribe: %w", err)
	}

	timer := time.NewTimer(window)
	defer timer.Stop()
	var waitErr error
	select {
	case <-quit:
	case <-timer.C:
		waitErr = fmt.Errorf("quit not received within %s", window)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	mu.Lock()
	res := smokeResult{Delivered: received, Elapsed: time.Since(start)}
	err = orderErr
	mu.Unlock()

	if waitErr != nil {
		return res, errors.Join(waitErr, err)
	}
	if err != nil {
		return res, err
	}
	if res.Delivered != count {
		return res, fmt.Errorf("delivered %d of %d messages", res.Delivered, count)
	}
	return res, nil
}
