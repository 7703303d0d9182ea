package repository

import (
	"context"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/google/uuid"
)

type EventRepository interface {
	Create(ctx context.Context, event *domain.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.EventStatus, isPaused bool) error
}

type TeamRepository interface {
	Create(ctx context.Context, team *domain.Team) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Team, error)
	GetByEventID(ctx context.Context, eventID uuid.UUID, statuses ...domain.TeamStatus) ([]domain.Team, error)
}

type MatchRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Match, error)
	GetCurrent(ctx context.Context, eventID uuid.UUID) (*domain.Match, error)
	GetByEventID(ctx context.Context, eventID uuid.UUID, statuses ...domain.MatchStatus) ([]domain.Match, error)
}

type QueuePlayerRepository interface {
	Create(ctx context.Context, player *domain.QueuePlayer) error
	GetSoloQueue(ctx context.Context, eventID uuid.UUID) ([]domain.QueuePlayer, error)
}

// RosterRepository is the single mutation surface for queue state. Every
// method runs in one transaction.
type RosterRepository interface {
	Snapshot(ctx context.Context, eventID uuid.UUID) (*domain.Snapshot, error)
	Apply(ctx context.Context, tr domain.Transition) error
	FormTeam(ctx context.Context, tr domain.Transition, playerIDs []uuid.UUID) error
	Retire(ctx context.Context, eventID, teamID uuid.UUID) error
}

type Repositories struct {
	Event       EventRepository
	Team        TeamRepository
	Match       MatchRepository
	QueuePlayer QueuePlayerRepository
	Roster      RosterRepository
}
