package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"dm-service/internal/models"
)

var ErrParticipantNotFound = errors.New("participant not found")

// ParticipantRepository reads participant profiles owned by the profile store.
type ParticipantRepository interface {
	ListOthers(ctx context.Context, userID string) ([]models.Participant, error)
	GetParticipant(ctx context.Context, participantID string) (models.Participant, error)
}

// ParticipantRepo is a sqlx implementation of ParticipantRepository.
type ParticipantRepo struct {
	db *sqlx.DB
}

// NewParticipantRepo constructs a ParticipantRepo.
func NewParticipantRepo(db *sqlx.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

// ListOthers returns every participant except the caller.
func (r *ParticipantRepo) ListOthers(ctx context.Context, userID string) ([]models.Participant, error) {
	list := []models.Participant{}
	err := r.db.SelectContext(ctx, &list, `SELECT id, full_name, profile_pic, bio, created_at FROM participants
        WHERE id <> $1 ORDER BY full_name ASC, id ASC`, userID)
	return list, err
}

// GetParticipant fetches a participant by id.
func (r *ParticipantRepo) GetParticipant(ctx context.Context, participantID string) (models.Participant, error) {
	var p models.Participant
	err := r.db.GetContext(ctx, &p, `SELECT id, full_name, profile_pic, bio, created_at FROM participants WHERE id=$1`, participantID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Participant{}, ErrParticipantNotFound
	}
	return p, err
}
