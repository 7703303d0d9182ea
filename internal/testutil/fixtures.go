package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventBuilder creates test events with a builder pattern
type EventBuilder struct {
	title        string
	status       domain.EventStatus
	isPaused     bool
	lastPosition int
}

// NewEventBuilder creates a new EventBuilder with an active, unpaused event
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{
		title:  fmt.Sprintf("Friday Run %s", uuid.New().String()[:8]),
		status: domain.EventStatusActive,
	}
}

func (b *EventBuilder) WithStatus(status domain.EventStatus) *EventBuilder {
	b.status = status
	return b
}

func (b *EventBuilder) Paused() *EventBuilder {
	b.isPaused = true
	return b
}

func (b *EventBuilder) WithLastPosition(pos int) *EventBuilder {
	b.lastPosition = pos
	return b
}

// Build creates the event in the database
func (b *EventBuilder) Build(t *testing.T, db *gorm.DB) *domain.Event {
	t.Helper()

	event := &domain.Event{
		ID:           uuid.New(),
		Title:        b.title,
		Date:         time.Now().Format("2006-01-02"),
		Time:         "19:00",
		Location:     "Rucker Park",
		Status:       b.status,
		IsPaused:     b.isPaused,
		MaxPlayers:   50,
		Rules:        datatypes.JSON(`["games to 11","winners keep score"]`),
		LastPosition: b.lastPosition,
	}

	if err := db.Create(event).Error; err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	return event
}

// TeamBuilder creates test teams
type TeamBuilder struct {
	event    *domain.Event
	name     string
	kind     domain.TeamKind
	status   domain.TeamStatus
	position *int
	created  time.Time
}

func NewTeamBuilder() *TeamBuilder {
	return &TeamBuilder{
		name:    fmt.Sprintf("team_%s", uuid.New().String()[:8]),
		kind:    domain.TeamKindFormed,
		status:  domain.TeamStatusWaiting,
		created: time.Now(),
	}
}

func (b *TeamBuilder) WithEvent(event *domain.Event) *TeamBuilder {
	b.event = event
	return b
}

func (b *TeamBuilder) WithName(name string) *TeamBuilder {
	b.name = name
	return b
}

func (b *TeamBuilder) WithStatus(status domain.TeamStatus) *TeamBuilder {
	b.status = status
	return b
}

func (b *TeamBuilder) WithPosition(pos int) *TeamBuilder {
	b.position = domain.IntPtr(pos)
	return b
}

func (b *TeamBuilder) WithCreatedAt(at time.Time) *TeamBuilder {
	b.created = at
	return b
}

func (b *TeamBuilder) Random() *TeamBuilder {
	b.kind = domain.TeamKindRandom
	return b
}

// Build creates the team in the database
func (b *TeamBuilder) Build(t *testing.T, db *gorm.DB) *domain.Team {
	t.Helper()

	if b.event == nil {
		t.Fatal("team builder requires an event")
	}

	team := &domain.Team{
		ID:        uuid.New(),
		EventID:   b.event.ID,
		Name:      b.name,
		Kind:      b.kind,
		Status:    b.status,
		Position:  b.position,
		CreatedAt: b.created,
	}

	if err := db.Create(team).Error; err != nil {
		t.Fatalf("failed to create team: %v", err)
	}
	return team
}

// SeedQueue creates n waiting teams at positions 1..n, spaced a second apart.
func SeedQueue(t *testing.T, db *gorm.DB, event *domain.Event, n int) []*domain.Team {
	t.Helper()

	base := time.Now().Add(-time.Hour)
	teams := make([]*domain.Team, n)
	for i := 0; i < n; i++ {
		teams[i] = NewTeamBuilder().
			WithEvent(event).
			WithName(fmt.Sprintf("Team %d", i+1)).
			WithPosition(i + 1).
			WithCreatedAt(base.Add(time.Duration(i) * time.Second)).
			Build(t, db)
	}
	return teams
}

// StartMatch marks both teams playing and opens a match between them.
func StartMatch(t *testing.T, db *gorm.DB, a, b *domain.Team) *domain.Match {
	t.Helper()

	match := &domain.Match{
		ID:        uuid.New(),
		EventID:   a.EventID,
		TeamAID:   a.ID,
		TeamBID:   b.ID,
		Status:    domain.MatchStatusPlaying,
		StartedAt: time.Now(),
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(match).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Team{}).
			Where("id IN ?", []uuid.UUID{a.ID, b.ID}).
			Update("status", domain.TeamStatusPlaying).Error
	})
	if err != nil {
		t.Fatalf("failed to start match: %v", err)
	}
	a.Status = domain.TeamStatusPlaying
	b.Status = domain.TeamStatusPlaying
	return match
}

// QueuePlayerBuilder creates solo check-ins
type QueuePlayerBuilder struct {
	event       *domain.Event
	name        string
	checkedInAt time.Time
}

func NewQueuePlayerBuilder() *QueuePlayerBuilder {
	return &QueuePlayerBuilder{
		name:        fmt.Sprintf("player_%s", uuid.New().String()[:8]),
		checkedInAt: time.Now(),
	}
}

func (b *QueuePlayerBuilder) WithEvent(event *domain.Event) *QueuePlayerBuilder {
	b.event = event
	return b
}

func (b *QueuePlayerBuilder) WithName(name string) *QueuePlayerBuilder {
	b.name = name
	return b
}

func (b *QueuePlayerBuilder) CheckedInAt(at time.Time) *QueuePlayerBuilder {
	b.checkedInAt = at
	return b
}

func (b *QueuePlayerBuilder) Build(t *testing.T, db *gorm.DB) *domain.QueuePlayer {
	t.Helper()

	if b.event == nil {
		t.Fatal("queue player builder requires an event")
	}

	player := &domain.QueuePlayer{
		ID:          uuid.New(),
		EventID:     b.event.ID,
		Name:        b.name,
		Phone:       "555-0100",
		PlayerType:  domain.PlayerTypeSolo,
		Status:      domain.TeamStatusWaiting,
		CheckedInAt: b.checkedInAt,
	}
	if err := db.Create(player).Error; err != nil {
		t.Fatalf("failed to create queue player: %v", err)
	}
	return player
}
