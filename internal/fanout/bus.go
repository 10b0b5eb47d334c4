// Package fanout carries live pushes between service nodes so a message
// reaches the node that holds the receiver's connection.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"dm-service/internal/models"
)

// DeliverFunc hands a remote push to the local presence registry.
type DeliverFunc func(receiverID string, event models.ChatEvent)

// Bus publishes pushes for receivers that are not connected to this node.
type Bus interface {
	Publish(ctx context.Context, receiverID string, event models.ChatEvent) error
	Subscribe(deliver DeliverFunc) error
	Close()
}

type envelope struct {
	Origin   string           `json:"origin"`
	Receiver string           `json:"receiver"`
	Event    models.ChatEvent `json:"event"`
}

// NATSBus is a Bus over NATS core subjects "<prefix>.<receiverID>".
type NATSBus struct {
	conn   *nats.Conn
	prefix string
	nodeID string
	log    *zap.Logger
	sub    *nats.Subscription
}

// Connect dials NATS and returns a bus publishing under subjectPrefix.
func Connect(url, subjectPrefix string, log *zap.Logger) (*NATSBus, error) {
	if log == nil {
		log = zap.NewNop()
	}
	nodeID := uuid.NewString()
	opts := []nats.Option{
		nats.Name("dm-service-" + nodeID[:8]),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("nats error", zap.Error(err))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSBus{conn: nc, prefix: subjectPrefix, nodeID: nodeID, log: log}, nil
}

// NodeID identifies this process on the bus.
func (b *NATSBus) NodeID() string {
	return b.nodeID
}

func (b *NATSBus) subject(receiverID string) string {
	return b.prefix + "." + receiverID
}

func (b *NATSBus) Publish(ctx context.Context, receiverID string, event models.ChatEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(receiverID, ".*> ") {
		return fmt.Errorf("receiver id %q is not a valid subject token", receiverID)
	}
	data, err := json.Marshal(envelope{Origin: b.nodeID, Receiver: receiverID, Event: event})
	if err != nil {
		return err
	}
	return b.conn.Publish(b.subject(receiverID), data)
}

func (b *NATSBus) Subscribe(deliver DeliverFunc) error {
	sub, err := b.conn.Subscribe(b.prefix+".*", func(m *nats.Msg) {
		b.dispatch(m.Data, deliver)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.prefix, err)
	}
	b.sub = sub
	return nil
}

func (b *NATSBus) dispatch(data []byte, deliver DeliverFunc) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.log.Warn("dropping malformed fanout message", zap.Error(err))
		return
	}
	if env.Origin == b.nodeID || env.Event.Message == nil {
		return
	}
	deliver(env.Receiver, env.Event)
}

func (b *NATSBus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

func (b *NATSBus) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.conn != nil {
		_ = b.conn.Drain()
	}
}

var _ Bus = (*NATSBus)(nil)
