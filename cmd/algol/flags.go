package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

// commonFlags returns the flags shared by every command
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
		},
		&cli.StringFlag{
			Name:    "app-name",
			Usage:   "Application name passed to the broker on init",
			EnvVars: []string{"ALGOL_APP_NAME"},
			Value:   "algol",
		},
		&cli.StringFlag{
			Name:    "app-version",
			Usage:   "Application version as major.minor.patch",
			EnvVars: []string{"ALGOL_APP_VERSION"},
			Value:   "1.0.0",
		},
		&cli.StringFlag{
			Name:    "instance-id",
			Usage:   "Instance identifier appended to the application version",
			EnvVars: []string{"ALGOL_INSTANCE_ID"},
		},
		// Broker configuration flags
		&cli.BoolFlag{
			Name:    "strict",
			Usage:   "Fail on unknown exchanges and queues instead of creating them",
			EnvVars: []string{"ALGOL_STRICT_ROUTING"},
		},
		&cli.IntFlag{
			Name:    "queue-capacity",
			Usage:   "Maximum pending messages per queue (0 means unbounded)",
			EnvVars: []string{"ALGOL_QUEUE_CAPACITY"},
		},
		&cli.Int64Flag{
			Name:    "max-subscriptions",
			Usage:   "Maximum number of concurrently running subscription workers",
			EnvVars: []string{"ALGOL_MAX_SUBSCRIPTIONS"},
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "Upper bound on how long an idle subscription worker sleeps between checks",
			EnvVars: []string{"ALGOL_POLL_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "drain-timeout",
			Usage:   "How long cleanup waits for subscription workers to exit",
			EnvVars: []string{"ALGOL_DRAIN_TIMEOUT"},
		},
		// Metrics configuration flags
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment for metrics labels (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Cloud region for metrics labels (e.g., 'us-east-1')",
			EnvVars: []string{"REGION"},
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider for metrics labels (e.g., 'aws', 'oci', 'gcp')",
			EnvVars: []string{"CLOUD_PROVIDER"},
		},
	}
}

// smokeFlags returns all CLI flags for the smoke command
func smokeFlags() []cli.Flag {
	return append(commonFlags(),
		&cli.StringFlag{
			Name:    "exchange",
			Aliases: []string{"e"},
			Usage:   "Exchange to publish to",
			Value:   "test_exchange",
		},
		&cli.StringFlag{
			Name:    "queue",
			Aliases: []string{"q"},
			Usage:   "Queue to publish to and consume from",
			Value:   "test_queue",
		},
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"n"},
			Usage:   "Number of payloads to publish before the quit message",
			Value:   1000,
		},
		&cli.DurationFlag{
			Name:    "window",
			Aliases: []string{"w"},
			Usage:   "How long to wait for every message to be delivered",
			Value:   5 * time.Second,
		},
	)
}

// benchFlags returns all CLI flags for the bench command
func benchFlags() []cli.Flag {
	return append(commonFlags(),
		&cli.StringFlag{
			Name:    "exchange",
			Aliases: []string{"e"},
			Usage:   "Exchange to publish to",
			Value:   "bench_exchange",
		},
		&cli.StringFlag{
			Name:    "queue",
			Aliases: []string{"q"},
			Usage:   "Queue to publish to and consume from",
			Value:   "bench_queue",
		},
		&cli.IntFlag{
			Name:    "publishers",
			Aliases: []string{"p"},
			Usage:   "Number of concurrent publishers",
			Value:   4,
		},
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"n"},
			Usage:   "Number of messages per publisher",
			Value:   1000,
		},
		&cli.DurationFlag{
			Name:    "window",
			Aliases: []string{"w"},
			Usage:   "How long to wait for every message to be delivered",
			Value:   30 * time.Second,
		},
	)
}

// serveFlags returns all CLI flags for the serve command
func serveFlags() []cli.Flag {
	return append(commonFlags(),
		&cli.StringSliceFlag{
			Name:    "declare",
			Aliases: []string{"d"},
			Usage:   "exchange/queue pairs to declare and consume at startup (comma-separated)",
			EnvVars: []string{"ALGOL_DECLARE"},
		},
		&cli.DurationFlag{
			Name:    "stats-interval",
			Usage:   "Interval for sampling queue depths into metrics",
			EnvVars: []string{"ALGOL_STATS_INTERVAL"},
			Value:   5 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "backlog-interval",
			Usage:   "Interval for checking queue backlogs",
			EnvVars: []string{"ALGOL_BACKLOG_INTERVAL"},
			Value:   10 * time.Second,
		},
		&cli.IntFlag{
			Name:    "max-backlog",
			Usage:   "Queue depth above which a backlog warning is logged",
			EnvVars: []string{"ALGOL_MAX_BACKLOG"},
			Value:   10000,
		},
	)
}
