package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dm-service/internal/models"
)

// MemoryMessageRepo keeps messages in process memory. Used for development
// runs with STORE_DRIVER=memory and by tests.
type MemoryMessageRepo struct {
	mu       sync.RWMutex
	messages []models.Message
	byID     map[string]int
	now      func() time.Time
}

// NewMemoryMessageRepo constructs an empty in-memory store.
func NewMemoryMessageRepo() *MemoryMessageRepo {
	return &MemoryMessageRepo{
		byID: make(map[string]int),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the timestamp source.
func (r *MemoryMessageRepo) WithClock(now func() time.Time) *MemoryMessageRepo {
	r.now = now
	return r
}

func (r *MemoryMessageRepo) Append(ctx context.Context, senderID, receiverID string, payload models.Payload) (models.Message, error) {
	if err := payload.Validate(); err != nil {
		return models.Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	msg := models.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       payload.Text,
		Image:      payload.Image,
		CreatedAt:  r.now(),
		Seq:        int64(len(r.messages) + 1),
	}
	r.byID[msg.ID] = len(r.messages)
	r.messages = append(r.messages, msg)
	return msg, nil
}

func (r *MemoryMessageRepo) Conversation(ctx context.Context, userA, userB string) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []models.Message{}
	for _, m := range r.messages {
		if m.Involves(userA, userB) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryMessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byID[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return r.messages[idx], nil
}

func (r *MemoryMessageRepo) MarkSeen(ctx context.Context, receiverID, senderID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed int64
	for i := range r.messages {
		m := &r.messages[i]
		if m.ReceiverID == receiverID && m.SenderID == senderID && !m.Seen {
			m.Seen = true
			changed++
		}
	}
	return changed, nil
}

func (r *MemoryMessageRepo) MarkSeenByID(ctx context.Context, messageID, receiverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byID[messageID]
	if !ok {
		return ErrMessageNotFound
	}
	if r.messages[idx].ReceiverID != receiverID {
		return ErrNotReceiver
	}
	r.messages[idx].Seen = true
	return nil
}

func (r *MemoryMessageRepo) MarkDeleted(ctx context.Context, messageID, requesterID string) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byID[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	if r.messages[idx].SenderID != requesterID {
		return models.Message{}, ErrNotSender
	}
	r.messages[idx].Deleted = true
	return r.messages[idx], nil
}

func (r *MemoryMessageRepo) UnseenCounts(ctx context.Context, viewerID string) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := map[string]int{}
	for _, m := range r.messages {
		if m.ReceiverID == viewerID && !m.Seen && !m.Deleted {
			counts[m.SenderID]++
		}
	}
	return counts, nil
}

// MemoryParticipantRepo is an in-memory participant directory.
type MemoryParticipantRepo struct {
	mu           sync.RWMutex
	participants map[string]models.Participant
}

// NewMemoryParticipantRepo seeds the directory with the given participants.
func NewMemoryParticipantRepo(seed ...models.Participant) *MemoryParticipantRepo {
	r := &MemoryParticipantRepo{participants: make(map[string]models.Participant)}
	for _, p := range seed {
		r.Upsert(p)
	}
	return r
}

// Upsert adds or replaces a participant.
func (r *MemoryParticipantRepo) Upsert(p models.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.participants[p.ID] = p
}

func (r *MemoryParticipantRepo) ListOthers(ctx context.Context, userID string) ([]models.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Participant, 0, len(r.participants))
	for id, p := range r.participants {
		if id != userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName == out[j].FullName {
			return out[i].ID < out[j].ID
		}
		return out[i].FullName < out[j].FullName
	})
	return out, nil
}

func (r *MemoryParticipantRepo) GetParticipant(ctx context.Context, participantID string) (models.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[participantID]
	if !ok {
		return models.Participant{}, ErrParticipantNotFound
	}
	return p, nil
}

var (
	_ MessageRepository     = (*MessageRepo)(nil)
	_ MessageRepository     = (*MemoryMessageRepo)(nil)
	_ ParticipantRepository = (*ParticipantRepo)(nil)
	_ ParticipantRepository = (*MemoryParticipantRepo)(nil)
)
