package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/dom/pickup-queue/internal/live"
	"github.com/dom/pickup-queue/internal/service"
	"github.com/dom/pickup-queue/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type QueueHandler struct {
	queueService *service.QueueService
	manager      *live.Manager
	hub          *websocket.Hub
}

func NewQueueHandler(queueService *service.QueueService, manager *live.Manager, hub *websocket.Hub) *QueueHandler {
	return &QueueHandler{
		queueService: queueService,
		manager:      manager,
		hub:          hub,
	}
}

type CheckInTeamRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type CheckInPlayerRequest struct {
	Name      string  `json:"name"`
	Phone     string  `json:"phone"`
	Instagram *string `json:"instagram"`
}

type RandomTeamRequest struct {
	Size int `json:"size"`
}

type SetStatusRequest struct {
	Status   string `json:"status"`
	IsPaused bool   `json:"isPaused"`
}

type FinishMatchResponse struct {
	Finished *domain.Match     `json:"finished"`
	Started  *domain.Match     `json:"started"`
	Queue    domain.QueueState `json:"queue"`
}

// GetQueue returns the derived queue. Aliases such as "demo" are accepted.
func (h *QueueHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	eventID, err := h.hub.ResolveEventID(chi.URLParam(r, "eventId"))
	if err != nil {
		http.Error(w, "Invalid event ID", http.StatusBadRequest)
		return
	}

	state, err := h.manager.GetQueueState(r.Context(), eventID)
	if err != nil {
		writeError(w, "GetQueue", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

func (h *QueueHandler) CheckInTeam(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}

	var req CheckInTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	team, err := h.queueService.CheckInTeam(r.Context(), eventID, service.CheckInTeamInput{
		Name: req.Name,
		Kind: domain.TeamKind(req.Kind),
	})
	if err != nil {
		writeError(w, "CheckInTeam", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(team)
}

func (h *QueueHandler) RetireTeam(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	teamID, err := uuid.Parse(chi.URLParam(r, "teamId"))
	if err != nil {
		http.Error(w, "Invalid team ID", http.StatusBadRequest)
		return
	}

	if err := h.queueService.RetireTeam(r.Context(), eventID, teamID); err != nil {
		writeError(w, "RetireTeam", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *QueueHandler) CheckInPlayer(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}

	var req CheckInPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	player, err := h.queueService.CheckInPlayer(r.Context(), eventID, service.CheckInPlayerInput{
		Name:      req.Name,
		Phone:     req.Phone,
		Instagram: req.Instagram,
	})
	if err != nil {
		writeError(w, "CheckInPlayer", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(player)
}

// ListTeams serves GET /teams?status=played, status may repeat.
func (h *QueueHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}

	var statuses []domain.TeamStatus
	for _, raw := range r.URL.Query()["status"] {
		status := domain.TeamStatus(raw)
		switch status {
		case domain.TeamStatusWaiting, domain.TeamStatusPlaying, domain.TeamStatusPlayed:
			statuses = append(statuses, status)
		default:
			http.Error(w, "Invalid team status", http.StatusBadRequest)
			return
		}
	}

	teams, err := h.queueService.ListTeams(r.Context(), eventID, statuses...)
	if err != nil {
		writeError(w, "ListTeams", err)
		return
	}
	if teams == nil {
		teams = []domain.Team{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(teams)
}

func (h *QueueHandler) ListSoloQueue(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}

	players, err := h.queueService.ListSoloQueue(r.Context(), eventID)
	if err != nil {
		writeError(w, "ListSoloQueue", err)
		return
	}
	if players == nil {
		players = []domain.QueuePlayer{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(players)
}

func (h *QueueHandler) FormRandomTeam(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}

	var req RandomTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	team, err := h.queueService.FormRandomTeam(r.Context(), eventID, req.Size)
	if err != nil {
		writeError(w, "FormRandomTeam", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(team)
}

func (h *QueueHandler) StartMatch(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}

	match, err := h.queueService.StartNextMatch(r.Context(), eventID)
	if err != nil {
		writeError(w, "StartMatch", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(match)
}

func (h *QueueHandler) FinishMatch(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	matchID, err := uuid.Parse(chi.URLParam(r, "matchId"))
	if err != nil {
		http.Error(w, "Invalid match ID", http.StatusBadRequest)
		return
	}

	rot, err := h.queueService.FinishMatch(r.Context(), eventID, matchID)
	if err != nil {
		writeError(w, "FinishMatch", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(FinishMatchResponse{
		Finished: rot.Transition.Finish,
		Started:  rot.Promoted,
		Queue:    rot.Next,
	})
}

func (h *QueueHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	event, err := h.queueService.SetEventStatus(r.Context(), eventID, domain.EventStatus(req.Status), req.IsPaused)
	if err != nil {
		writeError(w, "SetStatus", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(event)
}

func eventIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	eventID, err := uuid.Parse(chi.URLParam(r, "eventId"))
	if err != nil {
		http.Error(w, "Invalid event ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return eventID, true
}
