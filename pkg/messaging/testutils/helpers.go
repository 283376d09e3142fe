package testutils

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ava-labs/algol/pkg/messaging"
)

// NewTestLogger creates a test logger that writes to testing.T
func NewTestLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

// NewTestBroker creates an initialized broker that is cleaned up when the test ends.
func NewTestBroker(t *testing.T, log *zap.SugaredLogger, cfg messaging.Config) *messaging.Broker {
	t.Helper()
	if log == nil {
		log = NewTestLogger(t)
	}
	b, err := messaging.NewBroker(log, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init("algol-test", 1, 0, 0, ""))
	t.Cleanup(func() {
		if b.Initialized() {
			_ = b.Cleanup()
		}
	})
	return b
}

// Recorder is a Handler that keeps every delivered message.
type Recorder struct {
	mu   sync.Mutex
	msgs []messaging.Message
}

func (r *Recorder) OnMessageReceived(_ context.Context, msg messaging.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

// Messages returns the messages received so far, in delivery order.
func (r *Recorder) Messages() []messaging.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.msgs)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

// Bodies returns the received payloads as strings, in delivery order.
func (r *Recorder) Bodies() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.BodyString()
	}
	return out
}

// WaitFor fails the test unless at least n messages arrive within timeout.
func (r *Recorder) WaitFor(t *testing.T, n int, timeout time.Duration) []messaging.Message {
	t.Helper()
	require.Eventually(t, func() bool { return r.Len() >= n }, timeout, 5*time.Millisecond,
		"expected %d messages", n)
	return r.Messages()
}
