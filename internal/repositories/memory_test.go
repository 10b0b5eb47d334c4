package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dm-service/internal/models"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMemoryAppendRejectsEmptyPayload(t *testing.T) {
	repo := NewMemoryMessageRepo()

	_, err := repo.Append(context.Background(), "a", "b", models.Payload{Text: "   "})
	require.ErrorIs(t, err, models.ErrEmptyPayload)

	msgs, err := repo.Conversation(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMemoryAppendKeepsTextAsSent(t *testing.T) {
	repo := NewMemoryMessageRepo()

	msg, err := repo.Append(context.Background(), "a", "b", models.Payload{Text: "  hi \n"})
	require.NoError(t, err)
	assert.Equal(t, "  hi \n", msg.Text)

	stored, err := repo.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "  hi \n", stored.Text)
}

func TestMemoryAppendImageOnly(t *testing.T) {
	repo := NewMemoryMessageRepo()

	msg, err := repo.Append(context.Background(), "a", "b", models.Payload{Image: "https://cdn.example/x.png"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/x.png", msg.Image)
	assert.Empty(t, msg.Text)
	assert.False(t, msg.Seen)
	assert.False(t, msg.Deleted)
	assert.NotEmpty(t, msg.ID)
}

func TestMemoryConversationOrderingAndTies(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := NewMemoryMessageRepo().WithClock(fixedClock(ts))
	ctx := context.Background()

	first, err := repo.Append(ctx, "a", "b", models.Payload{Text: "1"})
	require.NoError(t, err)
	second, err := repo.Append(ctx, "b", "a", models.Payload{Text: "2"})
	require.NoError(t, err)
	_, err = repo.Append(ctx, "a", "c", models.Payload{Text: "other"})
	require.NoError(t, err)

	msgs, err := repo.Conversation(ctx, "b", "a")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, second.ID, msgs[1].ID)
}

func TestMemoryMarkSeenIdempotent(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := repo.Append(ctx, "a", "b", models.Payload{Text: "hi"})
		require.NoError(t, err)
	}
	_, err := repo.Append(ctx, "b", "a", models.Payload{Text: "reply"})
	require.NoError(t, err)

	changed, err := repo.MarkSeen(ctx, "b", "a")
	require.NoError(t, err)
	assert.EqualValues(t, 3, changed)
	afterFirst, _ := repo.Conversation(ctx, "a", "b")

	changed, err = repo.MarkSeen(ctx, "b", "a")
	require.NoError(t, err)
	assert.EqualValues(t, 0, changed)
	afterSecond, _ := repo.Conversation(ctx, "a", "b")

	assert.Equal(t, afterFirst, afterSecond)
	for _, m := range afterSecond {
		assert.Equal(t, m.SenderID == "a", m.Seen)
	}
}

func TestMemoryMarkSeenByID(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()
	msg, err := repo.Append(ctx, "a", "b", models.Payload{Text: "hi"})
	require.NoError(t, err)

	assert.ErrorIs(t, repo.MarkSeenByID(ctx, msg.ID, "a"), ErrNotReceiver)
	assert.ErrorIs(t, repo.MarkSeenByID(ctx, "missing", "b"), ErrMessageNotFound)
	require.NoError(t, repo.MarkSeenByID(ctx, msg.ID, "b"))
	require.NoError(t, repo.MarkSeenByID(ctx, msg.ID, "b"))

	got, err := repo.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.Seen)
}

func TestMemoryMarkDeleted(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()
	first, _ := repo.Append(ctx, "a", "b", models.Payload{Text: "one"})
	second, _ := repo.Append(ctx, "a", "b", models.Payload{Text: "two"})
	before, _ := repo.Conversation(ctx, "a", "b")

	_, err := repo.MarkDeleted(ctx, first.ID, "b")
	assert.ErrorIs(t, err, ErrNotSender)
	_, err = repo.MarkDeleted(ctx, "nope", "a")
	assert.ErrorIs(t, err, ErrMessageNotFound)

	deleted, err := repo.MarkDeleted(ctx, first.ID, "a")
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	_, err = repo.MarkDeleted(ctx, first.ID, "a")
	require.NoError(t, err)

	after, _ := repo.Conversation(ctx, "a", "b")
	require.Len(t, after, len(before))
	assert.Equal(t, first.ID, after[0].ID)
	assert.Equal(t, second.ID, after[1].ID)
	assert.Equal(t, before[0].CreatedAt, after[0].CreatedAt)
	assert.Equal(t, "one", after[0].Text)
	assert.True(t, after[0].Deleted)
}

func TestMemoryUnseenCountsTrackStore(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()
	m1, _ := repo.Append(ctx, "a", "v", models.Payload{Text: "1"})
	_, _ = repo.Append(ctx, "a", "v", models.Payload{Text: "2"})
	_, _ = repo.Append(ctx, "c", "v", models.Payload{Text: "3"})
	_, _ = repo.Append(ctx, "v", "a", models.Payload{Text: "mine"})

	counts, err := repo.UnseenCounts(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 2, "c": 1}, counts)

	_, err = repo.MarkDeleted(ctx, m1.ID, "a")
	require.NoError(t, err)
	counts, _ = repo.UnseenCounts(ctx, "v")
	assert.Equal(t, map[string]int{"a": 1, "c": 1}, counts)

	_, err = repo.MarkSeen(ctx, "v", "a")
	require.NoError(t, err)
	counts, _ = repo.UnseenCounts(ctx, "v")
	assert.Equal(t, map[string]int{"c": 1}, counts)
}

func TestMemoryConcurrentAppends(t *testing.T) {
	repo := NewMemoryMessageRepo()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender, receiver := "a", "b"
			if i%2 == 0 {
				sender, receiver = "b", "a"
			}
			_, err := repo.Append(ctx, sender, receiver, models.Payload{Text: "x"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := repo.Conversation(ctx, "a", "b")
	require.NoError(t, err)
	assert.Len(t, msgs, 50)
}

func TestMemoryParticipants(t *testing.T) {
	repo := NewMemoryParticipantRepo(
		models.Participant{ID: "a", FullName: "Alice"},
		models.Participant{ID: "b", FullName: "Bob"},
		models.Participant{ID: "c", FullName: "Carol"},
	)
	ctx := context.Background()

	others, err := repo.ListOthers(ctx, "b")
	require.NoError(t, err)
	require.Len(t, others, 2)
	assert.Equal(t, "a", others[0].ID)
	assert.Equal(t, "c", others[1].ID)

	_, err = repo.GetParticipant(ctx, "zzz")
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}
