package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dom/pickup-queue/internal/api"
	"github.com/dom/pickup-queue/internal/config"
	"github.com/dom/pickup-queue/internal/live"
	"github.com/dom/pickup-queue/internal/notifier"
	"github.com/dom/pickup-queue/internal/repository/postgres"
	"github.com/dom/pickup-queue/internal/service"
	"github.com/dom/pickup-queue/internal/simulation"
	"github.com/dom/pickup-queue/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize database
	db, err := postgres.NewConnection(cfg.DatabaseURL, cfg.NotifyChannel)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// Initialize repositories
	repos := postgres.NewRepositories(db)

	// Initialize services
	services := service.NewServices(repos, cfg)

	// Change feed and live sessions
	liveCfg := live.DefaultConfig()
	liveCfg.TickInterval = cfg.DisplayTick
	liveCfg.FetchMaxAttempts = uint64(cfg.FetchMaxAttempts)
	liveCfg.ReconnectMaxAttempts = uint64(cfg.ReconnectMaxAttempts)

	feed := notifier.New(
		notifier.NewPostgresSource(cfg.DatabaseURL, cfg.NotifyChannel),
		notifier.WithCoalesceWindow(cfg.SignalCoalesce),
		notifier.WithBackOff(liveCfg.NewBackOff, liveCfg.ReconnectMaxAttempts),
	)
	manager := live.NewManager(services.Queue, feed, liveCfg)

	// Initialize WebSocket hub
	hub := websocket.NewHub(manager)

	var sim *simulation.Engine
	var simFeed *notifier.Notifier
	if cfg.DemoMode {
		sim, err = simulation.New(simulation.DefaultRoster())
		if err != nil {
			log.Fatalf("failed to build demo event: %v", err)
		}
		sim.Connect()
		simFeed = notifier.New(sim,
			notifier.WithCoalesceWindow(0),
			notifier.WithBackOff(func() backoff.BackOff {
				return backoff.NewConstantBackOff(time.Second)
			}, liveCfg.ReconnectMaxAttempts),
		)
		manager.Mount(simulation.DemoEventID, sim, simFeed)
		hub.Alias("demo", simulation.DemoEventID)
		log.Printf("Demo event mounted at %s", simulation.DemoEventID)
	}

	go hub.Run()

	// Initialize router
	router := api.NewRouter(services, manager, hub, sim, cfg)

	// Create server. No write timeout: websocket connections are long lived.
	srv := &http.Server{
		Addr:        "0.0.0.0:" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}

	hub.Stop()
	manager.Shutdown()
	if simFeed != nil {
		simFeed.Close()
	}
	feed.Close()

	log.Println("Server stopped")
}
