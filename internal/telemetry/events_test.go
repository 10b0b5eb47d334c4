package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	keys   []string
	events []any
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	p.keys = append(p.keys, routingKey)
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func TestEmitBuildsEnvelope(t *testing.T) {
	pub := &recordingPublisher{}
	emitter := NewEventEmitter(pub, "dm-service", "test", nil)

	emitter.Emit(context.Background(), EventMessageSent, "req-1", "alice", MessagePayload{MessageID: "m1"})

	require.Len(t, pub.events, 1)
	assert.Equal(t, []string{EventMessageSent}, pub.keys)
	env, ok := pub.events[0].(EventEnvelope)
	require.True(t, ok)
	assert.Equal(t, 1, env.SchemaVersion)
	assert.Equal(t, "dm-service", env.Service)
	assert.Equal(t, "alice", env.UserID)
	assert.Equal(t, "req-1", env.RequestID)
	assert.NotEmpty(t, env.OccurredAt)
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	emitter := NewEventEmitter(pub, "dm-service", "test", nil)

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), EventMessageDeleted, "", "bob", nil)
	})
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *EventEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), EventMessageSeen, "", "", nil)
	})
}
