package queue

import (
	"fmt"
	"time"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/google/uuid"
)

// Engine applies the rotation rule. It holds no queue state; the clock and
// id source are injectable so transitions are reproducible in tests.
type Engine struct {
	now   func() time.Time
	newID func() uuid.UUID
}

type Option func(*Engine)

// WithClock overrides the time source used for startedAt/finishedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides how new match ids are minted.
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		now:   time.Now,
		newID: uuid.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rotation is the outcome of one queue step.
type Rotation struct {
	Next       domain.QueueState
	Promoted   *domain.Match
	Transition domain.Transition
}

// Rotate finishes the current match, sends both of its teams to the back of
// the queue and promotes the two teams at the front. Only teams that were
// already waiting are eligible, so the finished pair never plays twice in a
// row. With fewer than two eligible teams the queue goes idle.
func (e *Engine) Rotate(state domain.QueueState, finished domain.Match) (*Rotation, error) {
	if state.Status == domain.QueueStatusInactive {
		return nil, domain.ErrEventNotActive
	}
	if finished.Status == domain.MatchStatusFinished {
		return nil, fmt.Errorf("match %s already finished: %w", finished.ID, domain.ErrInvalidTransition)
	}
	if state.Current == nil || state.Current.Match.ID != finished.ID {
		return nil, fmt.Errorf("match %s is not the current match: %w", finished.ID, domain.ErrInvalidTransition)
	}

	now := e.now()
	tr := domain.Transition{
		EventID: state.EventID,
		At:      now,
	}

	if !state.Current.Provisional {
		closed := state.Current.Match
		closed.Status = domain.MatchStatusFinished
		closed.FinishedAt = &now
		tr.Finish = &closed
	}

	eligible := make([]domain.Team, len(state.Waiting))
	copy(eligible, state.Waiting)
	SortTeams(eligible)

	if len(eligible) >= 2 {
		tr.Open = e.promote(&tr, eligible[0], eligible[1], now)
	}

	pos := state.LastPosition
	for _, t := range []domain.Team{state.Current.TeamA, state.Current.TeamB} {
		pos++
		t.Status = domain.TeamStatusWaiting
		t.Position = domain.IntPtr(pos)
		tr.Teams = append(tr.Teams, t)
	}
	tr.LastPosition = pos

	return &Rotation{
		Next:       Apply(state, tr),
		Promoted:   tr.Open,
		Transition: tr,
	}, nil
}

// StartNext opens a match from the front of the queue when nothing is on court.
func (e *Engine) StartNext(state domain.QueueState) (*Rotation, error) {
	if state.Status == domain.QueueStatusInactive {
		return nil, domain.ErrEventNotActive
	}
	if state.Current != nil {
		return nil, fmt.Errorf("match %s still playing: %w", state.Current.Match.ID, domain.ErrInvalidTransition)
	}

	eligible := make([]domain.Team, len(state.Waiting))
	copy(eligible, state.Waiting)
	SortTeams(eligible)
	if len(eligible) < 2 {
		return nil, domain.ErrInsufficientWaitingTeams
	}

	now := e.now()
	tr := domain.Transition{
		EventID:      state.EventID,
		LastPosition: state.LastPosition,
		At:           now,
	}
	tr.Open = e.promote(&tr, eligible[0], eligible[1], now)

	return &Rotation{
		Next:       Apply(state, tr),
		Promoted:   tr.Open,
		Transition: tr,
	}, nil
}

// Enqueue places a newly checked-in team at the back of the queue.
func (e *Engine) Enqueue(state domain.QueueState, team domain.Team) (domain.Team, domain.Transition) {
	pos := state.LastPosition + 1
	team.EventID = state.EventID
	team.Status = domain.TeamStatusWaiting
	team.Position = domain.IntPtr(pos)
	if team.CreatedAt.IsZero() {
		team.CreatedAt = e.now()
	}
	return team, domain.Transition{
		EventID:      state.EventID,
		Teams:        []domain.Team{team},
		LastPosition: pos,
		At:           e.now(),
	}
}

func (e *Engine) promote(tr *domain.Transition, a, b domain.Team, now time.Time) *domain.Match {
	a.Status = domain.TeamStatusPlaying
	b.Status = domain.TeamStatusPlaying
	tr.Teams = append(tr.Teams, a, b)
	return &domain.Match{
		ID:        e.newID(),
		EventID:   tr.EventID,
		TeamAID:   a.ID,
		TeamBID:   b.ID,
		Status:    domain.MatchStatusPlaying,
		StartedAt: now,
		CreatedAt: now,
	}
}

// Apply projects a transition onto a state the same way the roster store
// would, then re-derives. The result equals a fresh derive of the store
// after the transition commits.
func Apply(state domain.QueueState, tr domain.Transition) domain.QueueState {
	updated := make(map[uuid.UUID]domain.Team, len(tr.Teams))
	for _, t := range tr.Teams {
		updated[t.ID] = t
	}

	teams := state.Teams()
	for i, t := range teams {
		if u, ok := updated[t.ID]; ok {
			teams[i] = u
			delete(updated, t.ID)
		}
	}
	for _, t := range tr.Teams {
		if _, ok := updated[t.ID]; ok {
			teams = append(teams, t)
		}
	}

	var matches []domain.Match
	if tr.Open != nil {
		matches = append(matches, *tr.Open)
	} else if state.Current != nil && !state.Current.Provisional && tr.Finish == nil && !containsAny(tr.Teams, state.Current) {
		matches = append(matches, state.Current.Match)
	}

	next := DeriveState(teams, matches)
	next.EventID = state.EventID
	next.EventStatus = state.EventStatus
	next.SoloQueue = state.SoloQueue
	if tr.LastPosition > next.LastPosition {
		next.LastPosition = tr.LastPosition
	}
	if state.LastPosition > next.LastPosition {
		next.LastPosition = state.LastPosition
	}
	if state.Status == domain.QueueStatusInactive {
		next.Status = domain.QueueStatusInactive
	}
	return next
}

func containsAny(teams []domain.Team, cur *domain.CurrentMatch) bool {
	for _, t := range teams {
		if t.ID == cur.TeamA.ID || t.ID == cur.TeamB.ID {
			return true
		}
	}
	return false
}
