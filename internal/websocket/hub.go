package websocket

import (
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/dom/pickup-queue/internal/live"
	"github.com/google/uuid"
)

var ErrUnknownEvent = errors.New("unknown event id")

// Hub tracks connected viewers. Each viewer owns its own live session; the
// hub only does bookkeeping and shutdown.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	done       chan struct{} // closed when Run() exits
	stopped    bool
	manager    *live.Manager
	aliases    map[string]uuid.UUID
	mu         sync.RWMutex
}

func NewHub(manager *live.Manager) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		manager:    manager,
		aliases:    make(map[string]uuid.UUID),
	}
}

// Alias lets viewers subscribe with a short name instead of a uuid.
func (h *Hub) Alias(name string, eventID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.aliases[strings.ToLower(name)] = eventID
}

// ResolveEventID accepts a uuid or a registered alias.
func (h *Hub) ResolveEventID(raw string) (uuid.UUID, error) {
	h.mu.RLock()
	id, ok := h.aliases[strings.ToLower(raw)]
	h.mu.RUnlock()
	if ok {
		return id, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrUnknownEvent
	}
	return id, nil
}

func (h *Hub) Run() {
	defer close(h.done) // Signal that Run() has exited

	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			h.stopped = true
			clients := h.clients
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()

			// Close outside the lock; closing waits for each session to exit
			for client := range clients {
				client.Close()
			}
			log.Printf("Hub: stopped, closed %d clients", len(clients))
			return

		case client := <-h.register:
			h.mu.Lock()
			stopped := h.stopped
			if !stopped {
				h.clients[client] = true
			}
			h.mu.Unlock()
			if stopped {
				client.Close()
			}

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			h.mu.Unlock()
			if ok {
				client.Close()
			}
		}
	}
}

// Stop gracefully shuts down the hub and every client session.
// It blocks until the hub has fully shut down.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	close(h.stop)
	<-h.done // Wait for Run() to finish
}

func (h *Hub) Register(client *Client) {
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		client.Close()
		return
	}

	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

// Unregister safely unregisters a client, handling the case where the hub may be stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		// Hub already closed every client
		client.Close()
	}
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
