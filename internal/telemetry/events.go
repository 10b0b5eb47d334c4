// Package telemetry emits domain events describing conversation activity.
package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	EventMessageSent      = "message.sent"
	EventMessageSeen      = "message.seen"
	EventMessageDeleted   = "message.deleted"
	EventConversationRead = "conversation.read"
	EventWSConnect        = "ws.connect"
	EventWSDisconnect     = "ws.disconnect"
	EventWSError          = "ws.error"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

type EventEmitter struct {
	publisher   Publisher
	service     string
	environment string
	log         *zap.Logger
}

type EventEnvelope struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	Environment   string `json:"environment"`
	RequestID     string `json:"request_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	Payload       any    `json:"payload"`
}

// MessagePayload is the body of message.* events. Content is never included.
type MessagePayload struct {
	MessageID  string `json:"message_id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	HasText    bool   `json:"has_text,omitempty"`
	HasImage   bool   `json:"has_image,omitempty"`
	Delivered  string `json:"delivered,omitempty"`
}

// ReadPayload is the body of conversation.read events.
type ReadPayload struct {
	ReaderID string `json:"reader_id"`
	PeerID   string `json:"peer_id"`
	Marked   int64  `json:"marked"`
}

// ConnPayload is the body of ws.* lifecycle events.
type ConnPayload struct {
	ConnID     string `json:"conn_id"`
	DeviceID   string `json:"device_id,omitempty"`
	IP         string `json:"ip,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

func NewEventEmitter(publisher Publisher, service, environment string, log *zap.Logger) *EventEmitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventEmitter{
		publisher:   publisher,
		service:     service,
		environment: environment,
		log:         log,
	}
}

// Emit publishes eventType with payload, using eventType as the routing key.
// Failures are logged and never surface to the caller.
func (e *EventEmitter) Emit(ctx context.Context, eventType, requestID, userID string, payload any) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := EventEnvelope{
		SchemaVersion: 1,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload:       payload,
	}

	if err := e.publisher.Publish(ctx, eventType, envelope); err != nil {
		e.log.Warn("event publish failed",
			zap.String("event_type", eventType),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

type requestIDKey struct{}

// ContextWithRequestID attaches a request id so downstream events can carry it.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
