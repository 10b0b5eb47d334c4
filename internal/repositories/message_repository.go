package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"dm-service/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotSender       = errors.New("only the sender can delete a message")
	ErrNotReceiver     = errors.New("only the receiver can mark a message as seen")
)

// MessageRepository persists one-to-one messages and their seen/deleted flags.
type MessageRepository interface {
	Append(ctx context.Context, senderID, receiverID string, payload models.Payload) (models.Message, error)
	Conversation(ctx context.Context, userA, userB string) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	MarkSeen(ctx context.Context, receiverID, senderID string) (int64, error)
	MarkSeenByID(ctx context.Context, messageID, receiverID string) error
	MarkDeleted(ctx context.Context, messageID, requesterID string) (models.Message, error)
	UnseenCounts(ctx context.Context, viewerID string) (map[string]int, error)
}

const messageColumns = `id, seq, sender_id, receiver_id, text, image_url, seen, deleted, created_at`

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append stores a new message and returns the persisted row.
func (r *MessageRepo) Append(ctx context.Context, senderID, receiverID string, payload models.Payload) (models.Message, error) {
	if err := payload.Validate(); err != nil {
		return models.Message{}, err
	}

	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (id, sender_id, receiver_id, text, image_url)
        VALUES ($1, $2, $3, $4, $5) RETURNING `+messageColumns,
		uuid.NewString(), senderID, receiverID, payload.Text, payload.Image).StructScan(&msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// Conversation returns every message between the two users, oldest first.
func (r *MessageRepo) Conversation(ctx context.Context, userA, userB string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC, seq ASC`
	msgs := []models.Message{}
	if err := r.db.SelectContext(ctx, &msgs, query, userA, userB); err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}
	return msgs, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	if _, err := uuid.Parse(messageID); err != nil {
		return models.Message{}, ErrMessageNotFound
	}
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkSeen flags every unseen message from sender to receiver as seen.
func (r *MessageRepo) MarkSeen(ctx context.Context, receiverID, senderID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET seen = TRUE
        WHERE receiver_id=$1 AND sender_id=$2 AND seen = FALSE`, receiverID, senderID)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	return res.RowsAffected()
}

// MarkSeenByID acknowledges a single message on behalf of its receiver.
func (r *MessageRepo) MarkSeenByID(ctx context.Context, messageID, receiverID string) error {
	msg, err := r.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ReceiverID != receiverID {
		return ErrNotReceiver
	}
	if msg.Seen {
		return nil
	}
	_, err = r.db.ExecContext(ctx, `UPDATE messages SET seen = TRUE WHERE id=$1 AND seen = FALSE`, messageID)
	return err
}

// MarkDeleted soft-deletes a message; only its sender may do so.
func (r *MessageRepo) MarkDeleted(ctx context.Context, messageID, requesterID string) (models.Message, error) {
	msg, err := r.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != requesterID {
		return models.Message{}, ErrNotSender
	}
	if msg.Deleted {
		return msg, nil
	}

	var updated models.Message
	err = r.db.QueryRowxContext(ctx, `UPDATE messages SET deleted = TRUE WHERE id=$1 AND sender_id=$2 RETURNING `+messageColumns,
		messageID, requesterID).StructScan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("mark deleted: %w", err)
	}
	return updated, nil
}

// UnseenCounts groups unseen, non-deleted messages addressed to viewer by sender.
func (r *MessageRepo) UnseenCounts(ctx context.Context, viewerID string) (map[string]int, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT sender_id, COUNT(*) AS unseen FROM messages
        WHERE receiver_id=$1 AND seen = FALSE AND deleted = FALSE
        GROUP BY sender_id`, viewerID)
	if err != nil {
		return nil, fmt.Errorf("unseen counts: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var row struct {
			SenderID string `db:"sender_id"`
			Unseen   int    `db:"unseen"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		counts[row.SenderID] = row.Unseen
	}
	return counts, rows.Err()
}
