package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"dm-service/internal/fanout"
	"dm-service/internal/models"
	"dm-service/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, senderID, receiverID string, payload models.Payload) (models.Message, error) {
	args := m.Called(ctx, senderID, receiverID, payload)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Conversation(ctx context.Context, userA, userB string) ([]models.Message, error) {
	args := m.Called(ctx, userA, userB)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) MarkSeen(ctx context.Context, receiverID, senderID string) (int64, error) {
	args := m.Called(ctx, receiverID, senderID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) MarkSeenByID(ctx context.Context, messageID, receiverID string) error {
	args := m.Called(ctx, messageID, receiverID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkDeleted(ctx context.Context, messageID, requesterID string) (models.Message, error) {
	args := m.Called(ctx, messageID, requesterID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) UnseenCounts(ctx context.Context, viewerID string) (map[string]int, error) {
	args := m.Called(ctx, viewerID)
	var counts map[string]int
	if val := args.Get(0); val != nil {
		counts = val.(map[string]int)
	}
	return counts, args.Error(1)
}

type ParticipantRepositoryMock struct {
	mock.Mock
}

func (m *ParticipantRepositoryMock) ListOthers(ctx context.Context, userID string) ([]models.Participant, error) {
	args := m.Called(ctx, userID)
	var list []models.Participant
	if val := args.Get(0); val != nil {
		list = val.([]models.Participant)
	}
	return list, args.Error(1)
}

func (m *ParticipantRepositoryMock) GetParticipant(ctx context.Context, participantID string) (models.Participant, error) {
	args := m.Called(ctx, participantID)
	var p models.Participant
	if val := args.Get(0); val != nil {
		p = val.(models.Participant)
	}
	return p, args.Error(1)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, dataURI string) (string, error) {
	args := m.Called(ctx, dataURI)
	return args.String(0), args.Error(1)
}

type BusMock struct {
	mock.Mock
}

func (m *BusMock) Publish(ctx context.Context, receiverID string, event models.ChatEvent) error {
	args := m.Called(ctx, receiverID, event)
	return args.Error(0)
}

func (m *BusMock) Subscribe(deliver fanout.DeliverFunc) error {
	args := m.Called(deliver)
	return args.Error(0)
}

func (m *BusMock) Close() {
	m.Called()
}

var (
	_ repositories.MessageRepository     = (*MessageRepositoryMock)(nil)
	_ repositories.ParticipantRepository = (*ParticipantRepositoryMock)(nil)
	_ fanout.Bus                         = (*BusMock)(nil)
)
