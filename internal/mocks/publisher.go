package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"dm-service/internal/telemetry"
)

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// EventTypes lists the event types of every recorded domain envelope, in call order.
func (m *PublisherMock) EventTypes() []string {
	var types []string
	for _, call := range m.Calls {
		if call.Method != "Publish" {
			continue
		}
		if env, ok := call.Arguments.Get(2).(telemetry.EventEnvelope); ok {
			types = append(types, env.EventType)
		}
	}
	return types
}

var _ telemetry.Publisher = (*PublisherMock)(nil)
