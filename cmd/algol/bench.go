package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/algol/pkg/messaging"
	"github.com/ava-labs/algol/pkg/queue"
)

const publisherHeader = "publisher"

func bench(c *cli.Context) error {
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

	res, err := runBench(ctx, sugar, b, cfg.Exchange, cfg.Queue, cfg.Publishers, cfg.Count, cfg.Window)
	if err != nil {
		return err
	}

	rate := float64(res.Delivered) / res.Elapsed.Seconds()
	sugar.Infow("bench finished",
		"publishers", cfg.Publishers,
		"perPublisher", cfg.Count,
		"delivered", res.Delivered,
		"elapsed", res.Elapsed,
		"msgPerSec", strconv.FormatFloat(rate, 'f', 0, 64),
	)
	return nil
}

type benchResult struct {
	Delivered int
	Elapsed   time.Duration
}

// benchConsumer checks that every publisher's messages arrive in the order
// they were published.
type benchConsumer struct {
	mu        sync.Mutex
	next      map[string]int
	delivered int
	err       error
	done      chan struct{}
	total     int
}

func (bc *benchConsumer) OnMessageReceived(_ context.Context, msg messaging.Message) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	pub, _ := msg.Header(publisherHeader)
	if want := strconv.Itoa(bc.next[pub]); msg.BodyString() != want && bc.err == nil {
		bc.err = fmt.Errorf("publisher %s out of order: got %s, want %s", pub, msg.BodyString(), want)
	}
	bc.next[pub]++
	bc.delivered++
	if bc.delivered == bc.total {
		close(bc.done)
	}
	return nil
}

func runBench(
	ctx context.Context,
	log *zap.SugaredLogger,
	b *messaging.Broker,
	exchange, queueName string,
	publishers, perPublisher int,
	window time.Duration,
) (benchResult, error) {
	total := publishers * perPublisher
	consumer := &benchConsumer{next: make(map[string]int), done: make(chan struct{}), total: total}
	if total == 0 {
		close(consumer.done)
	}

	comm, err := messaging.NewCommunicator(b, "bench-consumer", consumer)
	if err != nil {
		return benchResult{}, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := comm.Close(closeCtx); err != nil {
			log.Warnw("communicator close error", "error", err)
		}
	}()
	if err := comm.Subscribe(exchange, queueName); err != nil {
		return benchResult{}, fmt.Errorf("failed to subscribe: %w", err)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for p := range publishers {
		g.Go(func() error {
			id := strconv.Itoa(p)
			pc, err := messaging.NewCommunicator(b, "bench-publisher-"+id, nil)
			if err != nil {
				return err
			}
			pub, err := queue.NewBrokerPublisher(pc, log.With("publisher", id))
			if err != nil {
				return err
			}
			defer pub.Close(gctx)

			for i := range perPublisher {
				err := pub.Publish(gctx, queue.Msg{
					Exchange:   exchange,
					RoutingKey: queueName,
					Value:      []byte(strconv.Itoa(i)),
					Headers:    map[string]string{publisherHeader: id},
				})
				if err != nil {
					return fmt.Errorf("publisher %s: %w", id, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return benchResult{}, err
	}
	log.Infow("all publishers finished", "published", total, "elapsed", time.Since(start))

	timer := time.NewTimer(window)
	defer timer.Stop()
	var waitErr error
	select {
	case <-consumer.done:
	case <-timer.C:
		waitErr = fmt.Errorf("not every message was delivered within %s", window)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	consumer.mu.Lock()
	defer consumer.mu.Unlock()
	res := benchResult{Delivered: consumer.delivered, Elapsed: time.Since(start)}
	if waitErr != nil {
		return res, fmt.Errorf("delivered %d of %d: %w", res.Delivered, total, waitErr)
	}
	return res, consumer.err
}
