package postgres

import (
	"context"
	"errors"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type matchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(db *gorm.DB) *matchRepository {
	return &matchRepository{db: db}
}

func (r *matchRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Match, error) {
	var match domain.Match
	err := r.db.WithContext(ctx).First(&match, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMatchNotFound
		}
		return nil, err
	}
	return &match, nil
}

// GetCurrent returns the most recently started playing match, or nil when
// nothing is on court.
func (r *matchRepository) GetCurrent(ctx context.Context, eventID uuid.UUID) (*domain.Match, error) {
	var match domain.Match
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND status = ?", eventID, domain.MatchStatusPlaying).
		Order("started_at DESC").
		First(&match).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &match, nil
}

func (r *matchRepository) GetByEventID(ctx context.Context, eventID uuid.UUID, statuses ...domain.MatchStatus) ([]domain.Match, error) {
	var matches []domain.Match
	q := r.db.WithContext(ctx).Where("event_id = ?", eventID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order("started_at DESC").Find(&matches).Error; err != nil {
		return nil, err
	}
	return matches, nil
}
