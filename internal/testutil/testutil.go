package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dom/pickup-queue/internal/api"
	"github.com/dom/pickup-queue/internal/config"
	"github.com/dom/pickup-queue/internal/live"
	"github.com/dom/pickup-queue/internal/notifier"
	"github.com/dom/pickup-queue/internal/repository"
	repoPostgres "github.com/dom/pickup-queue/internal/repository/postgres"
	"github.com/dom/pickup-queue/internal/service"
	"github.com/dom/pickup-queue/internal/simulation"
	"github.com/dom/pickup-queue/internal/websocket"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	// NotifyChannel is the LISTEN/NOTIFY channel the test schema's triggers use.
	NotifyChannel = "roster_changes"

	// AdminPassword is the password TestConfig's hash was made from.
	AdminPassword = "let-me-run-the-court"
)

// TestDB manages a testcontainers PostgreSQL instance
type TestDB struct {
	Container testcontainers.Container
	DB        *gorm.DB
	DSN       string
}

// NewTestDB creates a new PostgreSQL testcontainer and returns a connection
// with the schema and change triggers installed.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	container, err := tcPostgres.Run(ctx,
		"postgres:15-alpine",
		tcPostgres.WithDatabase("test_pickup_queue"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := gorm.Open(gormPostgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	if err := repoPostgres.Migrate(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	if err := repoPostgres.InstallChangeTriggers(db, NotifyChannel); err != nil {
		t.Fatalf("failed to install change triggers: %v", err)
	}

	testDB := &TestDB{
		Container: container,
		DB:        db,
		DSN:       dsn,
	}

	t.Cleanup(func() {
		testDB.Cleanup()
	})

	return testDB
}

// Cleanup terminates the container
func (tdb *TestDB) Cleanup() {
	if tdb.Container != nil {
		ctx := context.Background()
		tdb.Container.Terminate(ctx)
	}
}

// TestConfig returns a configuration suitable for testing
func TestConfig() *config.Config {
	hash, err := bcrypt.GenerateFromPassword([]byte(AdminPassword), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return &config.Config{
		Port:                 "0", // Random port
		Environment:          "test",
		NotifyChannel:        NotifyChannel,
		JWTSecret:            "test-jwt-secret-key-for-testing-only",
		JWTExpirationHours:   1,
		AdminPasswordHash:    string(hash),
		SignalCoalesce:       10 * time.Millisecond,
		DisplayTick:          50 * time.Millisecond, // Fast ticks for tests
		FetchMaxAttempts:     3,
		ReconnectMaxAttempts: 20,
		DemoMode:             true,
	}
}

// TestLiveConfig keeps retries short so failure paths finish quickly.
func TestLiveConfig(cfg *config.Config) live.Config {
	return live.Config{
		TickInterval:         cfg.DisplayTick,
		FetchMaxAttempts:     uint64(cfg.FetchMaxAttempts),
		ReconnectMaxAttempts: uint64(cfg.ReconnectMaxAttempts),
		NewBackOff:           func() backoff.BackOff { return backoff.NewConstantBackOff(20 * time.Millisecond) },
	}
}

// TestServer holds all components for integration testing
type TestServer struct {
	Server     *httptest.Server
	DB         *TestDB
	Repos      *repository.Repositories
	Services   *service.Services
	Notifier   *notifier.Notifier
	Manager    *live.Manager
	Hub        *websocket.Hub
	Simulation *simulation.Engine
	Config     *config.Config
}

// NewTestServer creates a complete test server with all dependencies
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	testDB := NewTestDB(t)
	cfg := TestConfig()

	repos := repoPostgres.NewRepositories(testDB.DB)
	services := service.NewServices(repos, cfg)

	retry := func() backoff.BackOff { return backoff.NewConstantBackOff(20 * time.Millisecond) }
	feed := notifier.New(
		notifier.NewPostgresSource(testDB.DSN, cfg.NotifyChannel),
		notifier.WithCoalesceWindow(cfg.SignalCoalesce),
		notifier.WithBackOff(retry, uint64(cfg.ReconnectMaxAttempts)),
	)
	manager := live.NewManager(services.Queue, feed, TestLiveConfig(cfg))

	sim, err := simulation.New(simulation.DefaultRoster(), simulation.WithConnectDelay(0))
	if err != nil {
		t.Fatalf("failed to build demo event: %v", err)
	}
	sim.Connect()
	simFeed := notifier.New(sim, notifier.WithCoalesceWindow(0), notifier.WithBackOff(retry, uint64(cfg.ReconnectMaxAttempts)))
	manager.Mount(simulation.DemoEventID, sim, simFeed)

	hub := websocket.NewHub(manager)
	hub.Alias("demo", simulation.DemoEventID)
	go hub.Run()

	router := api.NewRouter(services, manager, hub, sim, cfg)
	server := httptest.NewServer(router)

	ts := &TestServer{
		Server:     server,
		DB:         testDB,
		Repos:      repos,
		Services:   services,
		Notifier:   feed,
		Manager:    manager,
		Hub:        hub,
		Simulation: sim,
		Config:     cfg,
	}

	t.Cleanup(func() {
		server.Close()
		hub.Stop()
		manager.Shutdown()
		simFeed.Close()
		feed.Close()
	})

	return ts
}

// BaseURL returns the test server's base URL
func (ts *TestServer) BaseURL() string {
	return ts.Server.URL
}

// APIURL returns the full API URL for a given path
func (ts *TestServer) APIURL(path string) string {
	return fmt.Sprintf("%s/api/v1%s", ts.Server.URL, path)
}

// WebSocketURL returns the WebSocket URL, pre-subscribed when eventID is set
func (ts *TestServer) WebSocketURL(eventID string) string {
	wsURL := "ws" + ts.Server.URL[4:] // Replace "http" with "ws"
	if eventID == "" {
		return fmt.Sprintf("%s/api/v1/ws", wsURL)
	}
	return fmt.Sprintf("%s/api/v1/ws?eventId=%s&view=tv", wsURL, eventID)
}

// AdminToken logs in through the service and returns a bearer token
func (ts *TestServer) AdminToken(t *testing.T) string {
	t.Helper()
	result, err := ts.Services.Auth.Login(AdminPassword)
	if err != nil {
		t.Fatalf("failed to log in as admin: %v", err)
	}
	return result.AccessToken
}
