package models

import (
	"errors"
	"strings"
	"time"
)

// EventMessageNew is the only event type sent over the live channel.
const EventMessageNew = "message.new"

// ErrEmptyPayload is returned when a message carries neither text nor image.
var ErrEmptyPayload = errors.New("message must contain text or image")

// Payload is the content of a message: text, an image reference, or both.
type Payload struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// Validate reports ErrEmptyPayload when both fields are blank. Whitespace
// only counts for this check; text is stored as sent.
func (p Payload) Validate() error {
	if strings.TrimSpace(p.Text) == "" && strings.TrimSpace(p.Image) == "" {
		return ErrEmptyPayload
	}
	return nil
}

// Message represents a one-to-one chat message.
type Message struct {
	ID         string    `db:"id" json:"id" bson:"_id"`
	SenderID   string    `db:"sender_id" json:"sender_id" bson:"senderId"`
	ReceiverID string    `db:"receiver_id" json:"receiver_id" bson:"receiverId"`
	Text       string    `db:"text" json:"text,omitempty" bson:"text,omitempty"`
	Image      string    `db:"image_url" json:"image,omitempty" bson:"image,omitempty"`
	Seen       bool      `db:"seen" json:"seen" bson:"seen"`
	Deleted    bool      `db:"deleted" json:"deleted" bson:"deleted"`
	CreatedAt  time.Time `db:"created_at" json:"created_at" bson:"createdAt"`
	Seq        int64     `db:"seq" json:"-" bson:"seq"`
}

// Payload returns the message content.
func (m Message) Payload() Payload {
	return Payload{Text: m.Text, Image: m.Image}
}

// Redacted hides the payload of a deleted message while keeping its slot.
func (m Message) Redacted() Message {
	if m.Deleted {
		m.Text = ""
		m.Image = ""
	}
	return m
}

// Involves reports whether the message belongs to the conversation {a, b}.
func (m Message) Involves(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// ChatEvent is pushed through the live channel.
type ChatEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
}

// NewMessageEvent wraps a persisted message for delivery.
func NewMessageEvent(msg Message) ChatEvent {
	return ChatEvent{Type: EventMessageNew, Message: &msg}
}
