// Package delivery accepts outgoing messages, persists them and pushes them
// to the receiver's live channel when one exists.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"dm-service/internal/fanout"
	"dm-service/internal/models"
	"dm-service/internal/observability"
	"dm-service/internal/presence"
	"dm-service/internal/repositories"
	"dm-service/internal/telemetry"
)

const busPublishTimeout = 5 * time.Second

// Locator finds the live handle for a participant on this node.
type Locator interface {
	Lookup(identity string) (presence.Handle, bool)
}

// ImageResolver turns an image reference into the URL to persist.
type ImageResolver interface {
	Resolve(ctx context.Context, image string) (string, error)
}

type Pipeline struct {
	messages     repositories.MessageRepository
	participants repositories.ParticipantRepository
	presence     Locator
	images       ImageResolver
	bus          fanout.Bus
	events       *telemetry.EventEmitter
	log          *zap.Logger
	tracer       trace.Tracer
}

type Option func(*Pipeline)

// WithBus routes pushes for receivers without a local handle through bus.
func WithBus(bus fanout.Bus) Option {
	return func(p *Pipeline) { p.bus = bus }
}

func WithEvents(events *telemetry.EventEmitter) Option {
	return func(p *Pipeline) { p.events = events }
}

func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithParticipants enables unknown-participant checks.
func WithParticipants(participants repositories.ParticipantRepository) Option {
	return func(p *Pipeline) { p.participants = participants }
}

func New(messages repositories.MessageRepository, locator Locator, images ImageResolver, opts ...Option) *Pipeline {
	p := &Pipeline{
		messages: messages,
		presence: locator,
		images:   images,
		log:      zap.NewNop(),
		tracer:   otel.Tracer("dm-service/delivery"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Send validates, stores and pushes a message from sender to receiver.
// Push failures are logged and never returned; the stored message is the result.
func (p *Pipeline) Send(ctx context.Context, senderID, receiverID string, payload models.Payload) (models.Message, error) {
	ctx, span := p.tracer.Start(ctx, "delivery.Send", trace.WithAttributes(
		attribute.String("dm.sender_id", senderID),
		attribute.String("dm.receiver_id", receiverID),
	))
	defer span.End()

	if err := payload.Validate(); err != nil {
		return models.Message{}, err
	}
	if err := p.ensureParticipant(ctx, receiverID); err != nil {
		return models.Message{}, err
	}

	if payload.Image != "" && p.images != nil {
		url, err := p.images.Resolve(ctx, payload.Image)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "image resolve failed")
			return models.Message{}, err
		}
		payload.Image = url
	}

	msg, err := p.messages.Append(ctx, senderID, receiverID, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return models.Message{}, err
	}
	span.SetAttributes(attribute.String("dm.message_id", msg.ID))

	route := p.push(msg)
	observability.IncMessageSent(payloadKind(payload))
	p.events.Emit(ctx, telemetry.EventMessageSent, telemetry.RequestIDFromContext(ctx), senderID, telemetry.MessagePayload{
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		HasText:    msg.Text != "",
		HasImage:   msg.Image != "",
		Delivered:  route,
	})
	return msg, nil
}

// push hands msg to the receiver's live channel without waiting on it.
// It returns the route taken: "local", "bus" or "offline".
func (p *Pipeline) push(msg models.Message) string {
	event := models.NewMessageEvent(msg)

	if h, ok := p.presence.Lookup(msg.ReceiverID); ok {
		go p.pushLocal(h, event, "local")
		return "local"
	}

	if p.bus != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), busPublishTimeout)
			defer cancel()
			if err := p.bus.Publish(ctx, msg.ReceiverID, event); err != nil {
				observability.IncPush("bus", "failed")
				p.log.Warn("fanout publish failed",
					zap.String("message_id", msg.ID),
					zap.String("receiver_id", msg.ReceiverID),
					zap.Error(err),
				)
				return
			}
			observability.IncPush("bus", "ok")
		}()
		return "bus"
	}

	observability.IncPush("none", "offline")
	return "offline"
}

func (p *Pipeline) pushLocal(h presence.Handle, event models.ChatEvent, route string) {
	if err := h.Push(event); err != nil {
		observability.IncPush(route, "failed")
		p.log.Warn("live push failed",
			zap.String("receiver_id", h.Identity()),
			zap.String("message_id", event.Message.ID),
			zap.Error(err),
		)
		return
	}
	observability.IncPush(route, "ok")
}

// DeliverRemote pushes an event received from another node to a local handle.
func (p *Pipeline) DeliverRemote(receiverID string, event models.ChatEvent) {
	h, ok := p.presence.Lookup(receiverID)
	if !ok {
		observability.IncPush("remote", "offline")
		return
	}
	p.pushLocal(h, event, "remote")
}

// Conversation marks everything other sent to viewer as seen, then returns the
// full history between them. Deleted messages are redacted.
func (p *Pipeline) Conversation(ctx context.Context, viewerID, otherID string) ([]models.Message, error) {
	ctx, span := p.tracer.Start(ctx, "delivery.Conversation")
	defer span.End()

	if err := p.ensureParticipant(ctx, otherID); err != nil {
		return nil, err
	}

	// rows stored after markSeen are returned unseen
	marked, err := p.messages.MarkSeen(ctx, viewerID, otherID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	msgs, err := p.messages.Conversation(ctx, viewerID, otherID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	for i := range msgs {
		msgs[i] = msgs[i].Redacted()
	}

	if marked > 0 {
		p.events.Emit(ctx, telemetry.EventConversationRead, telemetry.RequestIDFromContext(ctx), viewerID, telemetry.ReadPayload{
			ReaderID: viewerID,
			PeerID:   otherID,
			Marked:   marked,
		})
	}
	return msgs, nil
}

// AckSeen marks a single message as seen on behalf of its receiver.
func (p *Pipeline) AckSeen(ctx context.Context, viewerID, messageID string) error {
	if err := p.messages.MarkSeenByID(ctx, messageID, viewerID); err != nil {
		return err
	}
	p.events.Emit(ctx, telemetry.EventMessageSeen, telemetry.RequestIDFromContext(ctx), viewerID, telemetry.MessagePayload{
		MessageID:  messageID,
		ReceiverID: viewerID,
	})
	return nil
}

// Delete soft-deletes a message on behalf of its sender and returns the
// redacted record.
func (p *Pipeline) Delete(ctx context.Context, requesterID, messageID string) (models.Message, error) {
	msg, err := p.messages.MarkDeleted(ctx, messageID, requesterID)
	if err != nil {
		return models.Message{}, err
	}
	p.events.Emit(ctx, telemetry.EventMessageDeleted, telemetry.RequestIDFromContext(ctx), requesterID, telemetry.MessagePayload{
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
	})
	return msg.Redacted(), nil
}

func (p *Pipeline) ensureParticipant(ctx context.Context, participantID string) error {
	if p.participants == nil {
		return nil
	}
	_, err := p.participants.GetParticipant(ctx, participantID)
	if err != nil && !errors.Is(err, repositories.ErrParticipantNotFound) {
		return fmt.Errorf("lookup participant: %w", err)
	}
	return err
}

func payloadKind(p models.Payload) string {
	switch {
	case p.Text != "" && p.Image != "":
		return "both"
	case p.Image != "":
		return "image"
	default:
		return "text"
	}
}
