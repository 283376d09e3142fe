package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLabels_toPrometheusLabels(t *testing.T) {
	tests := []struct {
		name   string
		labels Labels
		want   prometheus.Labels
	}{
		{
			name:   "empty labels",
			labels: Labels{},
			want:   prometheus.Labels{},
		},
		{
			name:   "only app",
			labels: Labels{App: "algol-smoke"},
			want:   prometheus.Labels{"app": "algol-smoke"},
		},
		{
			name: "all labels",
			labels: Labels{
				App:           "algol-serve",
				Environment:   "production",
				Region:        "us-east-1",
				CloudProvider: "aws",
			},
			want: prometheus.Labels{
				"app":            "algol-serve",
				"environment":    "production",
				"region":         "us-east-1",
				"cloud_provider": "aws",
			},
		},
		{
			name:   "partial labels",
			labels: Labels{Environment: "staging", Region: "eu-west-1"},
			want:   prometheus.Labels{"environment": "staging", "region": "eu-west-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.labels.toPrometheusLabels()
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestNewWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewWithLabels(reg, Labels{App: "algol-test", Environment: "testing"})
	require.NoError(t, err)

	m.SetExchanges(2)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() != "algol_exchanges" {
			continue
		}
		found = true
		labels := make(map[string]string)
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		require.Equal(t, "algol-test", labels["app"])
		require.Equal(t, "testing", labels["environment"])
		require.Equal(t, float64(2), mf.GetMetric()[0].GetGauge().GetValue())
	}
	require.True(t, found, "algol_exchanges metric not found")
}

func TestNew_RegistrationError(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	require.Error(t, err)
	var are prometheus.AlreadyRegisteredError
	require.ErrorAs(t, err, &are)
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.IncError(ErrTypeHandler)
		m.SetExchanges(1)
		m.RecordPublish("ex", nil, 0.1)
		m.SetQueueDepth("ex", "q", 1)
		m.ResetQueueDepths()
		m.DeleteQueueDepths("ex")
		m.IncActiveSubscriptions()
		m.DecActiveSubscriptions()
		m.RecordDelivery("ex", "q", errors.New("boom"), 0.1)
		m.RecordSkipped("ex", "q")
		m.IncMessagesInFlight()
		m.DecMessagesInFlight()
	})
}

func TestRecordPublish(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordPublish("orders", nil, 0.0001)
	m.RecordPublish("orders", nil, 0.0002)
	m.RecordPublish("orders", errors.New("queue full"), 0.0001)

	require.Equal(t, float64(2), testutil.ToFloat64(m.published.WithLabelValues("orders", StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.published.WithLabelValues("orders", StatusError)))

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "algol_publisher_duration_seconds" {
			require.Equal(t, uint64(3), mf.GetMetric()[0].GetHistogram().GetSampleCount())
			return
		}
	}
	t.Fatal("algol_publisher_duration_seconds metric not found")
}

func TestRecordDelivery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordDelivery("orders", "billing", nil, 0.01)
	m.RecordDelivery("orders", "billing", errors.New("handler failed"), 0.02)
	m.RecordSkipped("orders", "billing")
	m.RecordSkipped("orders", "billing")

	require.Equal(t, float64(1), testutil.ToFloat64(m.delivered.WithLabelValues("orders", "billing", StatusSuccess)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.delivered.WithLabelValues("orders", "billing", StatusError)))
	require.Equal(t, float64(2), testutil.ToFloat64(m.delivered.WithLabelValues("orders", "billing", StatusSkipped)))

	// Skipped messages never reach the handler, so only two durations are observed.
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "algol_subscription_delivery_duration_seconds" {
			require.Equal(t, uint64(2), mf.GetMetric()[0].GetHistogram().GetSampleCount())
			return
		}
	}
	t.Fatal("algol_subscription_delivery_duration_seconds metric not found")
}

func TestQueueDepth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.SetQueueDepth("orders", "billing", 5)
	m.SetQueueDepth("orders", "shipping", 1)
	require.Equal(t, float64(5), testutil.ToFloat64(m.queueDepth.WithLabelValues("orders", "billing")))
	require.Equal(t, 2, testutil.CollectAndCount(m.queueDepth))

	m.SetQueueDepth("orders", "billing", 0)
	require.Equal(t, float64(0), testutil.ToFloat64(m.queueDepth.WithLabelValues("orders", "billing")))

	m.SetQueueDepth("payments", "refunds", 3)
	m.DeleteQueueDepths("orders")
	require.Equal(t, 1, testutil.CollectAndCount(m.queueDepth))

	m.ResetQueueDepths()
	require.Equal(t, 0, testutil.CollectAndCount(m.queueDepth))
}

func TestIncError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.IncError(ErrTypeHandler)
	m.IncError(ErrTypeHandler)
	m.IncError(ErrTypePanic)

	require.Equal(t, float64(2), testutil.ToFloat64(m.errors.WithLabelValues(ErrTypeHandler)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.errors.WithLabelValues(ErrTypePanic)))
}

func TestSubscriptionGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.IncActiveSubscriptions()
	m.IncActiveSubscriptions()
	m.DecActiveSubscriptions()
	require.Equal(t, float64(1), testutil.ToFloat64(m.activeSubscriptions))

	m.IncMessagesInFlight()
	require.Equal(t, float64(1), testutil.ToFloat64(m.messagesInFlight))
	m.DecMessagesInFlight()
	require.Equal(t, float64(0), testutil.ToFloat64(m.messagesInFlight))
}

func TestNamespace(t *testing.T) {
	require.Equal(t, "algol", Namespace)
}
