package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type EventStatus string

const (
	EventStatusUpcoming EventStatus = "upcoming"
	EventStatusActive   EventStatus = "active"
	EventStatusPaused   EventStatus = "paused"
	EventStatusFinished EventStatus = "finished"
)

// Valid reports whether s is one of the known event statuses
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusUpcoming, EventStatusActive, EventStatusPaused, EventStatusFinished:
		return true
	}
	return false
}

// Event is a single pickup session at a venue. Teams and matches hang off it.
type Event struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Title        string         `json:"title" gorm:"not null"`
	Description  string         `json:"description"`
	Date         string         `json:"date" gorm:"type:varchar(10)"`
	Time         string         `json:"time" gorm:"type:varchar(8)"`
	Location     string         `json:"location"`
	Address      string         `json:"address"`
	Status       EventStatus    `json:"status" gorm:"type:varchar(20);not null;default:'upcoming'"`
	IsPaused     bool           `json:"isPaused" gorm:"not null;default:false"`
	MaxPlayers   int            `json:"maxPlayers" gorm:"not null;default:0"`
	Rules        datatypes.JSON `json:"rules" gorm:"type:jsonb;default:'[]'"`
	LastPosition int            `json:"lastPosition" gorm:"not null;default:0"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// TableName returns the table name for GORM
func (Event) TableName() string {
	return "events"
}

// IsRunning returns true when the queue should be advancing.
func (e *Event) IsRunning() bool {
	return e.Status == EventStatusActive && !e.IsPaused
}
