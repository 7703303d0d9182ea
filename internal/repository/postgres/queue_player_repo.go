package postgres

import (
	"context"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type queuePlayerRepository struct {
	db *gorm.DB
}

func NewQueuePlayerRepository(db *gorm.DB) *queuePlayerRepository {
	return &queuePlayerRepository{db: db}
}

func (r *queuePlayerRepository) Create(ctx context.Context, player *domain.QueuePlayer) error {
	return r.db.WithContext(ctx).Create(player).Error
}

// GetSoloQueue lists solo players still waiting for a team, first come first served.
func (r *queuePlayerRepository) GetSoloQueue(ctx context.Context, eventID uuid.UUID) ([]domain.QueuePlayer, error) {
	return soloQueue(r.db.WithContext(ctx), eventID)
}

func soloQueue(db *gorm.DB, eventID uuid.UUID) ([]domain.QueuePlayer, error) {
	var players []domain.QueuePlayer
	err := db.
		Where("event_id = ? AND player_type = ? AND status = ? AND team_id IS NULL",
			eventID, domain.PlayerTypeSolo, domain.TeamStatusWaiting).
		Order("checked_in_at ASC, id ASC").
		Find(&players).Error
	if err != nil {
		return nil, err
	}
	return players, nil
}
