package domain

import (
	"time"

	"github.com/google/uuid"
)

type QueueStatus string

const (
	QueueStatusPlaying         QueueStatus = "playing"
	QueueStatusWaitingForTeams QueueStatus = "waiting_for_teams"
	QueueStatusInactive        QueueStatus = "inactive"
)

// Snapshot is a point-in-time read of everything the queue is derived from.
type Snapshot struct {
	Event       *Event        `json:"event"`
	Teams       []Team        `json:"teams"`
	Matches     []Match       `json:"matches"`
	SoloPlayers []QueuePlayer `json:"soloPlayers"`
}

// CurrentMatch is the match on court together with both teams.
// Provisional is set when the match row is missing but two teams are
// marked playing.
type CurrentMatch struct {
	Match       Match `json:"match"`
	TeamA       Team  `json:"teamA"`
	TeamB       Team  `json:"teamB"`
	Provisional bool  `json:"provisional,omitempty"`
}

// Pairing is a projected upcoming game built from the waiting list.
type Pairing struct {
	Order int  `json:"order"`
	TeamA Team `json:"teamA"`
	TeamB Team `json:"teamB"`
}

// QueueState is derived, never stored. Always recompute it from a Snapshot.
type QueueState struct {
	EventID      uuid.UUID     `json:"eventId"`
	EventStatus  EventStatus   `json:"eventStatus,omitempty"`
	Status       QueueStatus   `json:"status"`
	Current      *CurrentMatch `json:"current"`
	Waiting      []Team        `json:"waiting"`
	Upcoming     []Pairing     `json:"upcoming"`
	SoloQueue    []QueuePlayer `json:"soloQueue"`
	TotalTeams   int           `json:"totalTeams"`
	LastPosition int           `json:"lastPosition"`
}

// Teams returns the current match teams followed by the waiting list.
func (s *QueueState) Teams() []Team {
	teams := make([]Team, 0, len(s.Waiting)+2)
	if s.Current != nil {
		teams = append(teams, s.Current.TeamA, s.Current.TeamB)
	}
	return append(teams, s.Waiting...)
}

// Transition is the set of writes produced by the engine for a single
// queue step. The roster store must apply it as one atomic unit.
type Transition struct {
	EventID      uuid.UUID `json:"eventId"`
	Finish       *Match    `json:"finish,omitempty"`
	Open         *Match    `json:"open,omitempty"`
	Teams        []Team    `json:"teams"`
	LastPosition int       `json:"lastPosition"`
	At           time.Time `json:"at"`
}
