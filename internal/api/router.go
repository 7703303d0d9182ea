package api

import (
	"net/http"

	"github.com/dom/pickup-queue/internal/api/handlers"
	"github.com/dom/pickup-queue/internal/api/middleware"
	"github.com/dom/pickup-queue/internal/config"
	"github.com/dom/pickup-queue/internal/live"
	"github.com/dom/pickup-queue/internal/service"
	"github.com/dom/pickup-queue/internal/simulation"
	"github.com/dom/pickup-queue/internal/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// Login attempts allowed per second across all callers, and the burst.
const (
	loginRate  = rate.Limit(1)
	loginBurst = 5
)

// NewRouter wires the HTTP surface. sim may be nil when the demo event is off.
func NewRouter(services *service.Services, manager *live.Manager, hub *websocket.Hub, sim *simulation.Engine, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.CORS)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(services.Auth)
	queueHandler := handlers.NewQueueHandler(services.Queue, manager, hub)
	wsHandler := handlers.NewWebSocketHandler(hub)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(loginRate, loginBurst)).Post("/admin/login", authHandler.Login)

		r.Route("/events/{eventId}", func(r chi.Router) {
			// Public read surface for the TV panel and player view
			r.Get("/queue", queueHandler.GetQueue)

			// Admin routes
			r.Group(func(r chi.Router) {
				r.Use(middleware.AdminAuth(services.Auth))

				r.Get("/teams", queueHandler.ListTeams)
				r.Post("/teams", queueHandler.CheckInTeam)
				r.Delete("/teams/{teamId}", queueHandler.RetireTeam)
				r.Post("/players", queueHandler.CheckInPlayer)
				r.Get("/solo-queue", queueHandler.ListSoloQueue)
				r.Post("/random-teams", queueHandler.FormRandomTeam)
				r.Post("/matches/start", queueHandler.StartMatch)
				r.Post("/matches/{matchId}/finish", queueHandler.FinishMatch)
				r.Put("/status", queueHandler.SetStatus)
			})
		})

		// Demo event controls
		if sim != nil {
			simulationHandler := handlers.NewSimulationHandler(sim, cfg)
			r.Route("/demo", func(r chi.Router) {
				r.Get("/", simulationHandler.Status)
				r.Post("/game-end", simulationHandler.EndGame)
				r.Post("/start-next", simulationHandler.StartNext)
				r.Post("/teams", simulationHandler.JoinTeam)
				r.Post("/disconnect", simulationHandler.Disconnect)
				r.Post("/connect", simulationHandler.Connect)
			})
		}

		// WebSocket endpoint
		r.Get("/ws", wsHandler.Handle)
	})

	return r
}
