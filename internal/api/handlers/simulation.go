package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/dom/pickup-queue/internal/config"
	"github.com/dom/pickup-queue/internal/domain"
	"github.com/dom/pickup-queue/internal/simulation"
)

// SimulationHandler drives the demo event so the live views can be tried
// without a database.
type SimulationHandler struct {
	sim *simulation.Engine
	cfg *config.Config
}

func NewSimulationHandler(sim *simulation.Engine, cfg *config.Config) *SimulationHandler {
	return &SimulationHandler{sim: sim, cfg: cfg}
}

type SimulationStatusResponse struct {
	Connected bool              `json:"connected"`
	Queue     domain.QueueState `json:"queue"`
}

type JoinTeamRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// allowed rejects demo controls in production
func (h *SimulationHandler) allowed(w http.ResponseWriter) bool {
	if h.cfg.Environment == "production" {
		http.Error(w, "Not available in production", http.StatusForbidden)
		return false
	}
	return true
}

func (h *SimulationHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w, http.StatusOK)
}

func (h *SimulationHandler) EndGame(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w) {
		return
	}
	if _, err := h.sim.TriggerGameEnd(); err != nil {
		writeError(w, "EndGame", err)
		return
	}
	h.writeStatus(w, http.StatusOK)
}

func (h *SimulationHandler) StartNext(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w) {
		return
	}
	if _, err := h.sim.StartNext(); err != nil {
		writeError(w, "StartNext", err)
		return
	}
	h.writeStatus(w, http.StatusOK)
}

func (h *SimulationHandler) JoinTeam(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w) {
		return
	}

	var req JoinTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	team, err := h.sim.JoinTeam(req.Name, domain.TeamKind(req.Kind))
	if err != nil {
		writeError(w, "JoinTeam", err)
		return
	}
	log.Printf("Simulation: %s joined the demo queue at position %d", team.Name, *team.Position)
	h.writeStatus(w, http.StatusCreated)
}

// Disconnect takes the demo backend offline so reconnect and resync can be
// watched from a viewer.
func (h *SimulationHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w) {
		return
	}
	h.sim.Disconnect()
	h.writeStatus(w, http.StatusOK)
}

func (h *SimulationHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w) {
		return
	}
	h.sim.Connect()
	h.writeStatus(w, http.StatusAccepted)
}

func (h *SimulationHandler) writeStatus(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(SimulationStatusResponse{
		Connected: h.sim.Connected(),
		Queue:     h.sim.State(),
	})
}
