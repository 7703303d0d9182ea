package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dom/pickup-queue/internal/domain"
	"github.com/dom/pickup-queue/internal/queue"
	"github.com/dom/pickup-queue/internal/repository"
	"github.com/google/uuid"
)

var (
	ErrInvalidEventStatus = errors.New("invalid event status")
	ErrInvalidTeamSize    = errors.New("random teams need at least two players")
	ErrInvalidPlayerName  = errors.New("player name is required")
	ErrInvalidTeamKind    = errors.New("unknown team kind")
)

// staleRetries bounds how often a mutation re-reads the roster after losing
// a race with another admin write.
const staleRetries = 3

// QueueService is the admin mutation path. Every queue change is computed by
// the engine from a fresh snapshot and written back as one transition.
type QueueService struct {
	events  repository.EventRepository
	teams   repository.TeamRepository
	matches repository.MatchRepository
	players repository.QueuePlayerRepository
	roster  repository.RosterRepository
	engine  *queue.Engine
}

func NewQueueService(repos *repository.Repositories, engine *queue.Engine) *QueueService {
	return &QueueService{
		events:  repos.Event,
		teams:   repos.Team,
		matches: repos.Match,
		players: repos.QueuePlayer,
		roster:  repos.Roster,
		engine:  engine,
	}
}

// FetchSnapshot reads the roster for live sessions. Store failures come back
// as TransientFetchError so sessions retry them.
func (s *QueueService) FetchSnapshot(ctx context.Context, eventID uuid.UUID) (*domain.Snapshot, error) {
	snap, err := s.roster.Snapshot(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) || ctx.Err() != nil {
			return nil, err
		}
		return nil, &domain.TransientFetchError{Err: err}
	}
	return snap, nil
}

func (s *QueueService) GetQueueState(ctx context.Context, eventID uuid.UUID) (domain.QueueState, error) {
	snap, err := s.FetchSnapshot(ctx, eventID)
	if err != nil {
		return domain.QueueState{}, err
	}
	return queue.DeriveSnapshot(snap), nil
}

type CheckInTeamInput struct {
	Name string
	Kind domain.TeamKind
}

// CheckInTeam adds a team at the back of the queue.
func (s *QueueService) CheckInTeam(ctx context.Context, eventID uuid.UUID, input CheckInTeamInput) (*domain.Team, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.ErrInvalidTeamName
	}
	kind := input.Kind
	if kind == "" {
		kind = domain.TeamKindFormed
	}
	if kind != domain.TeamKindFormed && kind != domain.TeamKindRandom {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTeamKind, kind)
	}

	var created domain.Team
	err := s.mutate(ctx, eventID, func(state domain.QueueState) error {
		if state.EventStatus == domain.EventStatusFinished {
			return domain.ErrEventNotActive
		}
		team, tr := s.engine.Enqueue(state, domain.Team{
			ID:   uuid.New(),
			Name: name,
			Kind: kind,
		})
		if err := s.roster.Apply(ctx, tr); err != nil {
			return err
		}
		created = team
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// RetireTeam takes a waiting team out of the rotation for the rest of the event.
func (s *QueueService) RetireTeam(ctx context.Context, eventID, teamID uuid.UUID) error {
	return s.roster.Retire(ctx, eventID, teamID)
}

// ListTeams returns the event's teams in queue order, optionally filtered by
// status. Retired teams are only visible here.
func (s *QueueService) ListTeams(ctx context.Context, eventID uuid.UUID, statuses ...domain.TeamStatus) ([]domain.Team, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.teams.GetByEventID(ctx, eventID, statuses...)
}

type CheckInPlayerInput struct {
	Name      string
	Phone     string
	Instagram *string
}

// CheckInPlayer puts a solo player in the solo queue.
func (s *QueueService) CheckInPlayer(ctx context.Context, eventID uuid.UUID, input CheckInPlayerInput) (*domain.QueuePlayer, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrInvalidPlayerName
	}

	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status == domain.EventStatusFinished {
		return nil, domain.ErrEventNotActive
	}

	now := time.Now()
	player := &domain.QueuePlayer{
		ID:          uuid.New(),
		EventID:     eventID,
		Name:        name,
		Phone:       strings.TrimSpace(input.Phone),
		Instagram:   input.Instagram,
		PlayerType:  domain.PlayerTypeSolo,
		Status:      domain.TeamStatusWaiting,
		CheckedInAt: now,
		CreatedAt:   now,
	}
	if err := s.players.Create(ctx, player); err != nil {
		return nil, err
	}
	return player, nil
}

func (s *QueueService) ListSoloQueue(ctx context.Context, eventID uuid.UUID) ([]domain.QueuePlayer, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.players.GetSoloQueue(ctx, eventID)
}

// FormRandomTeam groups the first size solo players into a random team and
// queues it.
func (s *QueueService) FormRandomTeam(ctx context.Context, eventID uuid.UUID, size int) (*domain.Team, error) {
	if size < 2 {
		return nil, ErrInvalidTeamSize
	}

	var created domain.Team
	err := s.mutate(ctx, eventID, func(state domain.QueueState) error {
		if state.EventStatus == domain.EventStatusFinished {
			return domain.ErrEventNotActive
		}
		if len(state.SoloQueue) < size {
			return domain.ErrSoloQueueTooShort
		}
		playerIDs := make([]uuid.UUID, size)
		for i, p := range state.SoloQueue[:size] {
			playerIDs[i] = p.ID
		}

		team, tr := s.engine.Enqueue(state, domain.Team{
			ID:   uuid.New(),
			Name: fmt.Sprintf("Random Team %d", state.LastPosition+1),
			Kind: domain.TeamKindRandom,
		})
		if err := s.roster.FormTeam(ctx, tr, playerIDs); err != nil {
			return err
		}
		created = team
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// StartNextMatch opens a match from the front of the queue when the court is idle.
func (s *QueueService) StartNextMatch(ctx context.Context, eventID uuid.UUID) (*domain.Match, error) {
	var opened *domain.Match
	err := s.mutate(ctx, eventID, func(state domain.QueueState) error {
		rot, err := s.engine.StartNext(state)
		if err != nil {
			return err
		}
		if err := s.roster.Apply(ctx, rot.Transition); err != nil {
			return err
		}
		opened = rot.Promoted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opened, nil
}

// FinishMatch closes the current match and rotates the queue. The nil id
// finishes a provisional match, one whose row is missing.
func (s *QueueService) FinishMatch(ctx context.Context, eventID, matchID uuid.UUID) (*queue.Rotation, error) {
	var rotation *queue.Rotation
	err := s.mutate(ctx, eventID, func(state domain.QueueState) error {
		match, err := s.matchToFinish(ctx, state, matchID)
		if err != nil {
			return err
		}

		rot, err := s.engine.Rotate(state, *match)
		if err != nil {
			return err
		}
		if err := s.roster.Apply(ctx, rot.Transition); err != nil {
			return err
		}
		rotation = rot
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rotation, nil
}

func (s *QueueService) matchToFinish(ctx context.Context, state domain.QueueState, matchID uuid.UUID) (*domain.Match, error) {
	if matchID == uuid.Nil {
		if state.Current == nil || !state.Current.Provisional {
			return nil, domain.ErrMatchNotFound
		}
		match := state.Current.Match
		return &match, nil
	}

	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.EventID != state.EventID {
		return nil, domain.ErrMatchNotFound
	}
	return match, nil
}

// SetEventStatus changes the event lifecycle status and the pause flag.
func (s *QueueService) SetEventStatus(ctx context.Context, eventID uuid.UUID, status domain.EventStatus, isPaused bool) (*domain.Event, error) {
	if !status.Valid() {
		return nil, ErrInvalidEventStatus
	}
	if err := s.events.UpdateStatus(ctx, eventID, status, isPaused); err != nil {
		return nil, err
	}
	return s.events.GetByID(ctx, eventID)
}

// mutate runs fn against a fresh QueueState, re-reading when the write lost
// a race (ErrStaleSnapshot). Any other error is returned as is.
func (s *QueueService) mutate(ctx context.Context, eventID uuid.UUID, fn func(domain.QueueState) error) error {
	op := func() error {
		snap, err := s.roster.Snapshot(ctx, eventID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := fn(queue.DeriveSnapshot(snap)); err != nil {
			if errors.Is(err, domain.ErrStaleSnapshot) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, staleRetries), ctx)
	return backoff.Retry(op, policy)
}
