package domain

import (
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchStatusScheduled MatchStatus = "scheduled"
	MatchStatusPlaying   MatchStatus = "playing"
	MatchStatusFinished  MatchStatus = "finished"
)

type Match struct {
	ID         uuid.UUID   `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	EventID    uuid.UUID   `json:"eventId" gorm:"type:uuid;not null;index"`
	TeamAID    uuid.UUID   `json:"teamAId" gorm:"type:uuid;not null"`
	TeamBID    uuid.UUID   `json:"teamBId" gorm:"type:uuid;not null"`
	Status     MatchStatus `json:"status" gorm:"type:varchar(12);not null;default:'playing';index"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt *time.Time  `json:"finishedAt"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// TableName returns the table name for GORM
func (Match) TableName() string {
	return "matches"
}

// Involves reports whether the team plays in this match.
func (m *Match) Involves(teamID uuid.UUID) bool {
	return m.TeamAID == teamID || m.TeamBID == teamID
}
