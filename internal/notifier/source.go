package notifier

import (
	"context"

	"github.com/google/uuid"
)

// Relation is a watched roster table.
type Relation string

const (
	RelationEvents       Relation = "events"
	RelationTeams        Relation = "teams"
	RelationMatches      Relation = "matches"
	RelationQueuePlayers Relation = "queue_players"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Mutation is one raw change reported by a Source. The notifier never looks
// past EventID; consumers only ever see coarse Signals.
type Mutation struct {
	EventID  uuid.UUID `json:"event_id"`
	Relation Relation  `json:"relation"`
	Op       Op        `json:"op"`
}

// Handler must not block. It is called from the source's delivery goroutine.
type Handler func(Mutation)

// Source is the change feed. Topics are event ids in string form.
type Source interface {
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)
}

// Subscription is a live registration on a Source. Lost receives at most one
// error when the feed drops; after that the subscription delivers nothing.
type Subscription interface {
	Lost() <-chan error
	Unsubscribe()
}

// Topic returns the source topic for an event.
func Topic(eventID uuid.UUID) string {
	return eventID.String()
}
