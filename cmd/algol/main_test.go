package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/goleak"

	"github.com/ava-labs/algol/pkg/messaging"
	"github.com/ava-labs/algol/pkg/messaging/testutils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// runWithFlags runs a one-command app with the given flags and returns the built config.
func runWithFlags(t *testing.T, flags []cli.Flag, args ...string) (*Config, error) {
	t.Helper()
	var (
		cfg      *Config
		buildErr error
	)
	app := &cli.App{
		Name: "algol",
		Commands: []*cli.Command{{
			Name:  "cmd",
			Flags: flags,
			Action: func(c *cli.Context) error {
				cfg, buildErr = buildConfig(c)
				return nil
			},
		}},
	}
	require.NoError(t, app.Run(append([]string{"algol", "cmd"}, args...)))
	return cfg, buildErr
}

func TestBuildConfig_Defaults(t *testing.T) {
	cfg, err := runWithFlags(t, smokeFlags())
	require.NoError(t, err)

	assert.Equal(t, "algol", cfg.AppName)
	assert.Equal(t, 1, cfg.Major)
	assert.Equal(t, 0, cfg.Minor)
	assert.Equal(t, 0, cfg.Patch)
	assert.Equal(t, "test_exchange", cfg.Exchange)
	assert.Equal(t, "test_queue", cfg.Queue)
	assert.Equal(t, 1000, cfg.Count)
	assert.Equal(t, 5*time.Second, cfg.Window)
	assert.False(t, cfg.Broker.StrictRouting)
	assert.Equal(t, int64(messaging.DefaultMaxSubscriptions), cfg.Broker.MaxSubscriptions)
	assert.Equal(t, messaging.DefaultPollInterval, *cfg.Broker.PollInterval)
	assert.Equal(t, ":9090", cfg.MetricsAddr())
}

func TestBuildConfig_EnvAndFlags(t *testing.T) {
	t.Setenv("ALGOL_QUEUE_CAPACITY", "32")
	t.Setenv("ALGOL_DRAIN_TIMEOUT", "3s")

	cfg, err := runWithFlags(t, serveFlags(),
		"--app-version", "2.3.4",
		"--instance-id", "7",
		"--strict",
		"--max-subscriptions", "4",
		"--metrics-host", "127.0.0.1",
		"--metrics-port", "9191",
		"--declare", "orders/billing,orders/shipping",
		"--declare", "events/audit",
	)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Major)
	assert.Equal(t, 3, cfg.Minor)
	assert.Equal(t, 4, cfg.Patch)
	assert.Equal(t, "7", cfg.InstanceID)
	assert.True(t, cfg.Broker.StrictRouting)
	assert.Equal(t, 32, cfg.Broker.QueueCapacity)
	assert.Equal(t, int64(4), cfg.Broker.MaxSubscriptions)
	assert.Equal(t, 3*time.Second, *cfg.Broker.DrainTimeout)
	assert.Equal(t, "127.0.0.1:9191", cfg.MetricsAddr())
	assert.Equal(t, []destination{
		{Exchange: "orders", Queue: "billing"},
		{Exchange: "orders", Queue: "shipping"},
		{Exchange: "events", Queue: "audit"},
	}, cfg.Declare)
	assert.Equal(t, 5*time.Second, cfg.StatsInterval)
	assert.Equal(t, 10000, cfg.MaxBacklog)
}

func TestBuildConfig_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		flags       []cli.Flag
		args        []string
		errContains string
	}{
		{
			name:        "bad version",
			flags:       smokeFlags(),
			args:        []string{"--app-version", "one.two"},
			errContains: "invalid app version",
		},
		{
			name:        "negative capacity",
			flags:       smokeFlags(),
			args:        []string{"--queue-capacity", "-1"},
			errContains: "invalid queue capacity",
		},
		{
			name:        "negative count",
			flags:       smokeFlags(),
			args:        []string{"--count", "-5"},
			errContains: "count must not be negative",
		},
		{
			name:        "zero publishers",
			flags:       benchFlags(),
			args:        []string{"--publishers", "0"},
			errContains: "publishers must be greater than 0",
		},
		{
			name:        "bad destination",
			flags:       serveFlags(),
			args:        []string{"--declare", "orders"},
			errContains: "invalid destination",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runWithFlags(t, tt.flags, tt.args...)
			require.ErrorContains(t, err, tt.errContains)
		})
	}
}

func TestParseVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in                  string
		major, minor, patch int
		wantErr             bool
	}{
		{in: "1.2.3", major: 1, minor: 2, patch: 3},
		{in: "4.5", major: 4, minor: 5},
		{in: "6", major: 6},
		{in: "0.0.0"},
		{in: "", wantErr: true},
		{in: "1.2.3.4", wantErr: true},
		{in: "1.-2.3", wantErr: true},
		{in: "v1.2.3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			major, minor, patch, err := parseVersion(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, []int{tt.major, tt.minor, tt.patch}, []int{major, minor, patch})
		})
	}
}

func TestParseDestinations(t *testing.T) {
	t.Parallel()

	got, err := parseDestinations([]string{" a/b , c/d", "", "e/f"})
	require.NoError(t, err)
	require.Equal(t, []destination{{"a", "b"}, {"c", "d"}, {"e", "f"}}, got)

	got, err = parseDestinations(nil)
	require.NoError(t, err)
	require.Empty(t, got)

	for _, bad := range []string{"a", "/b", "a/"} {
		_, err := parseDestinations([]string{bad})
		require.ErrorContains(t, err, "invalid destination", bad)
	}
}

func TestRunSmoke(t *testing.T) {
	t.Parallel()
	log := testutils.NewTestLogger(t)
	b := testutils.NewTestBroker(t, log, messaging.DefaultConfig())

	res, err := runSmoke(t.Context(), log, b, "test_exchange", "test_queue", 1000, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1000, res.Delivered)
	require.Positive(t, res.Elapsed)
}

func TestRunSmoke_QueueFull(t *testing.T) {
	t.Parallel()
	log := testutils.NewTestLogger(t)
	cfg := messaging.DefaultConfig()
	cfg.QueueCapacity = 10
	b := testutils.NewTestBroker(t, log, cfg)

	_, err := runSmoke(t.Context(), log, b, "test_exchange", "test_queue", 100, time.Second)
	require.ErrorIs(t, err, messaging.ErrQueueFull)
	require.ErrorContains(t, err, "failed to publish payload 10")
}

func TestRunSmoke_QueueBusy(t *testing.T) {
	t.Parallel()
	log := testutils.NewTestLogger(t)
	b := testutils.NewTestBroker(t, log, messaging.DefaultConfig())

	other, err := messaging.NewCommunicator(b, "other", nil)
	require.NoError(t, err)
	require.NoError(t, other.Subscribe("test_exchange", "test_queue"))

	_, err = runSmoke(t.Context(), log, b, "test_exchange", "test_queue", 10, time.Second)
	require.ErrorIs(t, err, messaging.ErrQueueBusy)
	require.ErrorContains(t, err, "failed to subscribe")
	require.NoError(t, other.Close(t.Context()))
}

func TestRunSmoke_Cancelled(t *testing.T) {
	t.Parallel()
	log := testutils.NewTestLogger(t)
	b := testutils.NewTestBroker(t, log, messaging.DefaultConfig())

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	// Delivery may or may not finish before the cancelled context is noticed.
	res, err := runSmoke(ctx, log, b, "test_exchange", "test_queue", 10, time.Second)
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
	} else {
		require.Equal(t, 10, res.Delivered)
	}
}

func TestRunBench(t *testing.T) {
	t.Parallel()
	log := testutils.NewTestLogger(t)
	cfg := messaging.DefaultConfig()
	cfg.QueueCapacity = 16 // forces publishers to wait for the consumer
	b := testutils.NewTestBroker(t, log, cfg)

	res, err := runBench(t.Context(), log, b, "bench_exchange", "bench_queue", 4, 250, 10*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1000, res.Delivered)
}

func TestRunBench_NoMessages(t *testing.T) {
	t.Parallel()
	log := testutils.NewTestLogger(t)
	b := testutils.NewTestBroker(t, log, messaging.DefaultConfig())

	res, err := runBench(t.Context(), log, b, "bench_exchange", "bench_queue", 2, 0, time.Second)
	require.NoError(t, err)
	require.Zero(t, res.Delivered)
}

func TestBrokerHealth(t *testing.T) {
	t.Parallel()
	b := testutils.NewTestBroker(t, nil, messaging.DefaultConfig())
	check := brokerHealth(b)

	require.NoError(t, check())
	require.NoError(t, b.Cleanup())
	require.ErrorIs(t, check(), messaging.ErrNotInitialized)
}

func TestDeclare(t *testing.T) {
	t.Parallel()
	log := testutils.NewTestLogger(t)
	b := testutils.NewTestBroker(t, log, messaging.DefaultConfig())

	comm, err := declare(log, b, []destination{{"orders", "billing"}, {"events", "audit"}})
	require.NoError(t, err)
	require.True(t, comm.IsSubscribed("orders", "billing"))
	require.True(t, comm.IsSubscribed("events", "audit"))

	_, err = comm.Publish(messaging.NewTextMessage("hello"), "orders", "billing")
	require.NoError(t, err)

	q, err := b.ResolveQueue("orders", "billing", false)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return q.Len() == 0 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, comm.Close(t.Context()))
}
