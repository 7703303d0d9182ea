package live

import (
	"context"
	"log"
	"sync"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/dom/pickup-queue/internal/queue"
	"github.com/google/uuid"
)

type backend struct {
	fetcher Fetcher
	feed    Feed
}

// Manager opens and tracks live sessions. Events can be mounted on their
// own backend; everything else uses the default one.
type Manager struct {
	cfg     Config
	def     backend
	mu      sync.Mutex
	mounts  map[uuid.UUID]backend
	active  map[*Session]struct{}
	wg      sync.WaitGroup
	closing bool
}

func NewManager(fetcher Fetcher, feed Feed, cfg Config) *Manager {
	return &Manager{
		cfg:    cfg.withDefaults(),
		def:    backend{fetcher: fetcher, feed: feed},
		mounts: make(map[uuid.UUID]backend),
		active: make(map[*Session]struct{}),
	}
}

// Mount serves eventID from a different fetcher and feed.
func (m *Manager) Mount(eventID uuid.UUID, fetcher Fetcher, feed Feed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mounts[eventID] = backend{fetcher: fetcher, feed: feed}
}

func (m *Manager) backendFor(eventID uuid.UUID) backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.mounts[eventID]; ok {
		return b
	}
	return m.def
}

// GetQueueState is a one-shot fetch and derive.
func (m *Manager) GetQueueState(ctx context.Context, eventID uuid.UUID) (domain.QueueState, error) {
	snap, err := m.backendFor(eventID).fetcher.FetchSnapshot(ctx, eventID)
	if err != nil {
		return domain.QueueState{}, err
	}
	return queue.DeriveSnapshot(snap), nil
}

// Subscribe starts a session for eventID. Closing the returned session is
// the unsubscribe; it is also closed when ctx ends or on Shutdown.
func (m *Manager) Subscribe(ctx context.Context, eventID uuid.UUID, onUpdate func(Update)) *Session {
	b := m.backendFor(eventID)
	s := NewSession(eventID, b.fetcher, b.feed, m.cfg, onUpdate)

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		s.Close()
		_ = s.Run(ctx)
		return s
	}
	m.active[s] = struct{}{}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		if err := s.Run(ctx); err != nil {
			log.Printf("ERROR [live.Subscribe] session for event %s ended: %v", eventID, err)
		}
		m.mu.Lock()
		delete(m.active, s)
		m.mu.Unlock()
	}()
	return s
}

// Sessions returns the number of running sessions.
func (m *Manager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Shutdown closes every session and waits for them to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closing = true
	sessions := make([]*Session, 0, len(m.active))
	for s := range m.active {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	m.wg.Wait()
	log.Printf("Manager: closed %d sessions", len(sessions))
}
