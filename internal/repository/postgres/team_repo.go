package postgres

import (
	"context"
	"errors"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// teamOrder is the deterministic waiting order: position ascending with
// nulls last, then creation order.
const teamOrder = "position ASC NULLS LAST, created_at ASC, id ASC"

type teamRepository struct {
	db *gorm.DB
}

func NewTeamRepository(db *gorm.DB) *teamRepository {
	return &teamRepository{db: db}
}

func (r *teamRepository) Create(ctx context.Context, team *domain.Team) error {
	return r.db.WithContext(ctx).Create(team).Error
}

func (r *teamRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Team, error) {
	var team domain.Team
	err := r.db.WithContext(ctx).First(&team, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTeamNotFound
		}
		return nil, err
	}
	return &team, nil
}

func (r *teamRepository) GetByEventID(ctx context.Context, eventID uuid.UUID, statuses ...domain.TeamStatus) ([]domain.Team, error) {
	var teams []domain.Team
	q := r.db.WithContext(ctx).Where("event_id = ?", eventID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Order(teamOrder).Find(&teams).Error; err != nil {
		return nil, err
	}
	return teams, nil
}
