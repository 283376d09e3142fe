package testutils

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ava-labs/algol/pkg/messaging"
)

// MockHandler is a mock implementation of messaging.Handler for testing
type MockHandler struct {
	mock.Mock
}

// OnMessageReceived mocks the OnMessageReceived method
func (m *MockHandler) OnMessageReceived(ctx context.Context, msg messaging.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockSentHandler is a mock implementation of messaging.SentHandler for testing
type MockSentHandler struct {
	mock.Mock
}

// OnMessageSent mocks the OnMessageSent method
func (m *MockSentHandler) OnMessageSent(msg messaging.Message, res messaging.Result) {
	m.Called(msg, res)
}
