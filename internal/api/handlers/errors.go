package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/dom/pickup-queue/internal/service"
)

// writeError maps queue and roster errors onto HTTP status codes. Error
// bodies are plain text.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		http.Error(w, "Event not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrTeamNotFound):
		http.Error(w, "Team not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrMatchNotFound):
		http.Error(w, "Match not found", http.StatusNotFound)

	case errors.Is(err, domain.ErrInvalidTransition):
		http.Error(w, "Invalid queue transition", http.StatusConflict)
	case errors.Is(err, domain.ErrInsufficientWaitingTeams):
		http.Error(w, "Fewer than two teams waiting", http.StatusConflict)
	case errors.Is(err, domain.ErrEventNotActive):
		http.Error(w, "Event is not active", http.StatusConflict)
	case errors.Is(err, domain.ErrSoloQueueTooShort):
		http.Error(w, "Not enough solo players", http.StatusConflict)
	case errors.Is(err, domain.ErrStaleSnapshot):
		http.Error(w, "Queue changed, try again", http.StatusConflict)

	case errors.Is(err, domain.ErrInvalidTeamName),
		errors.Is(err, service.ErrInvalidPlayerName),
		errors.Is(err, service.ErrInvalidTeamSize),
		errors.Is(err, service.ErrInvalidEventStatus),
		errors.Is(err, service.ErrInvalidTeamKind):
		http.Error(w, err.Error(), http.StatusBadRequest)

	case domain.IsTransient(err):
		log.Printf("ERROR [handlers.%s] store unavailable: %v", op, err)
		http.Error(w, "Queue temporarily unavailable", http.StatusServiceUnavailable)

	default:
		log.Printf("ERROR [handlers.%s] %v", op, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
