package domain

import (
	"errors"
	"fmt"
)

// Queue errors
var (
	ErrInvalidTransition        = errors.New("invalid queue transition")
	ErrInsufficientWaitingTeams = errors.New("fewer than two teams waiting")
	ErrSubscriptionLost         = errors.New("change subscription lost")
	ErrEventNotActive           = errors.New("event is not active")
)

// Roster errors
var (
	ErrEventNotFound     = errors.New("event not found")
	ErrTeamNotFound      = errors.New("team not found")
	ErrMatchNotFound     = errors.New("match not found")
	ErrInvalidTeamName   = errors.New("team name is required")
	ErrSoloQueueTooShort = errors.New("not enough solo players to form a team")
)

// TransientFetchError marks a read failure that is expected to go away
// (store unreachable, connection reset). Sessions retry these.
type TransientFetchError struct {
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch error: %v", e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a TransientFetchError.
func IsTransient(err error) bool {
	var tfe *TransientFetchError
	return errors.As(err, &tfe)
}

// ErrStaleSnapshot means the roster moved between read and write. The
// caller should re-read and recompute.
var ErrStaleSnapshot = errors.New("roster changed since snapshot")
