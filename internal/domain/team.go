package domain

import (
	"time"

	"github.com/google/uuid"
)

type TeamKind string

const (
	TeamKindFormed TeamKind = "team"
	TeamKindRandom TeamKind = "random"
)

type TeamStatus string

const (
	TeamStatusWaiting TeamStatus = "waiting"
	TeamStatusPlaying TeamStatus = "playing"
	TeamStatusPlayed  TeamStatus = "played"
)

// Team is one side in the rotation. Position decides play order among
// waiting teams; a nil position sorts after every positioned team.
type Team struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	EventID   uuid.UUID  `json:"eventId" gorm:"type:uuid;not null;index"`
	Name      string     `json:"name" gorm:"not null"`
	Kind      TeamKind   `json:"kind" gorm:"type:varchar(10);not null;default:'team'"`
	Status    TeamStatus `json:"status" gorm:"type:varchar(10);not null;default:'waiting';index"`
	Position  *int       `json:"position"`
	CreatedAt time.Time  `json:"createdAt"`
}

// TableName returns the table name for GORM
func (Team) TableName() string {
	return "teams"
}

type PlayerType string

const (
	PlayerTypeSolo PlayerType = "solo"
	PlayerTypeTeam PlayerType = "team"
)

// QueuePlayer is an individual check-in. Solo players wait in the solo
// queue until they are grouped into a random team.
type QueuePlayer struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	EventID     uuid.UUID  `json:"eventId" gorm:"type:uuid;not null;index"`
	Name        string     `json:"name" gorm:"not null"`
	Phone       string     `json:"phone"`
	Instagram   *string    `json:"instagram"`
	PlayerType  PlayerType `json:"playerType" gorm:"type:varchar(10);not null;default:'solo'"`
	TeamID      *uuid.UUID `json:"teamId" gorm:"type:uuid"`
	Status      TeamStatus `json:"status" gorm:"type:varchar(10);not null;default:'waiting'"`
	CheckedInAt time.Time  `json:"checkedInAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// TableName returns the table name for GORM
func (QueuePlayer) TableName() string {
	return "queue_players"
}

// IntPtr is a small helper for optional positions.
func IntPtr(v int) *int {
	return &v
}
