package live

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dom/pickup-queue/internal/domain"
	"github.com/dom/pickup-queue/internal/notifier"
	"github.com/dom/pickup-queue/internal/queue"
	"github.com/google/uuid"
)

// Fetcher reads a full roster snapshot. Transient failures must be wrapped
// in domain.TransientFetchError to be retried.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, eventID uuid.UUID) (*domain.Snapshot, error)
}

// Feed hands out change listeners. *notifier.Notifier is the production Feed.
type Feed interface {
	Listen(ctx context.Context, eventID uuid.UUID) (*notifier.Listener, error)
}

type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// Reason says why an Update was produced.
type Reason string

const (
	ReasonInitial Reason = "initial"
	ReasonSignal  Reason = "signal"
	ReasonResync  Reason = "resync"
	ReasonRefresh Reason = "refresh"
	ReasonTick    Reason = "tick"
	ReasonStatus  Reason = "status"
)

// priority decides which reason survives when follow-up fetches coalesce.
func (r Reason) priority() int {
	switch r {
	case ReasonResync:
		return 3
	case ReasonRefresh:
		return 2
	case ReasonSignal:
		return 1
	}
	return 0
}

// Update is handed to the session's callback. State is the last good view
// and may be nil before the first successful fetch.
type Update struct {
	EventID uuid.UUID
	Reason  Reason
	Status  ConnectionStatus
	State   *domain.QueueState
	Stale   bool
	Elapsed time.Duration
	Err     error
	At      time.Time
}

type Config struct {
	TickInterval         time.Duration
	FetchMaxAttempts     uint64
	ReconnectMaxAttempts uint64
	NewBackOff           func() backoff.BackOff
	Clock                func() time.Time
}

func DefaultConfig() Config {
	return Config{
		TickInterval:         time.Second,
		FetchMaxAttempts:     5,
		ReconnectMaxAttempts: 8,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		Clock: time.Now,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FetchMaxAttempts == 0 {
		c.FetchMaxAttempts = d.FetchMaxAttempts
	}
	if c.ReconnectMaxAttempts == 0 {
		c.ReconnectMaxAttempts = d.ReconnectMaxAttempts
	}
	if c.NewBackOff == nil {
		c.NewBackOff = d.NewBackOff
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	return c
}

// Session keeps one viewer's QueueState fresh. Fetches never run on the
// notifier's goroutine and at most one follow-up fetch is ever queued.
type Session struct {
	eventID  uuid.UUID
	fetcher  Fetcher
	feed     Feed
	cfg      Config
	onUpdate func(Update)

	refresh chan struct{}
	done    chan struct{}

	mu      sync.RWMutex
	status  ConnectionStatus
	last    *domain.QueueState
	stale   bool
	fetches int
	cancel  context.CancelFunc
	closed  bool
	started bool
}

func NewSession(eventID uuid.UUID, fetcher Fetcher, feed Feed, cfg Config, onUpdate func(Update)) *Session {
	if onUpdate == nil {
		onUpdate = func(Update) {}
	}
	return &Session{
		eventID:  eventID,
		fetcher:  fetcher,
		feed:     feed,
		cfg:      cfg.withDefaults(),
		onUpdate: onUpdate,
		refresh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		status:   StatusDisconnected,
	}
}

func (s *Session) EventID() uuid.UUID {
	return s.eventID
}

// State returns the connection status.
func (s *Session) State() ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Last returns the last good QueueState and whether it is stale.
func (s *Session) Last() (*domain.QueueState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.stale
}

// Fetches counts snapshot fetches started by this session.
func (s *Session) Fetches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetches
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Refresh asks for a full refetch. Coalesces like a change signal.
func (s *Session) Refresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Close tears the session down: the subscription and any in-flight fetch
// are cancelled together.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-s.done
	}
}

type fetchResult struct {
	reason Reason
	state  *domain.QueueState
	err    error
}

// Run drives the session until ctx is cancelled or Close is called (nil),
// or until the change feed cannot be re-established.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	if s.closed {
		s.mu.Unlock()
		close(s.done)
		return nil
	}
	s.cancel = cancel
	s.mu.Unlock()
	defer close(s.done)

	s.setStatus(StatusConnecting)
	listener, err := s.listen(ctx)
	if err != nil {
		return s.stop(ctx, err)
	}
	defer func() {
		if listener != nil {
			listener.Close()
		}
	}()
	s.setStatus(StatusConnected)

	results := make(chan fetchResult, 1)
	inFlight := false
	var pending Reason

	request := func(reason Reason) {
		if !inFlight {
			inFlight = true
			s.startFetch(ctx, reason, results)
			return
		}
		if reason.priority() > pending.priority() {
			pending = reason
		}
	}

	var tick <-chan time.Time
	if s.cfg.TickInterval > 0 {
		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	request(ReasonInitial)

	for {
		select {
		case <-ctx.Done():
			return s.stop(ctx, nil)

		case sig := <-listener.Signals():
			if sig.Resync {
				request(ReasonResync)
			} else {
				request(ReasonSignal)
			}

		case <-s.refresh:
			request(ReasonRefresh)

		case <-listener.Done():
			log.Printf("Session: feed for event %s lost: %v", s.eventID, listener.Err())
			s.setStatus(StatusDisconnected)
			s.setStatus(StatusReconnecting)
			listener, err = s.listen(ctx)
			if err != nil {
				return s.stop(ctx, err)
			}
			s.setStatus(StatusConnected)
			request(ReasonResync)

		case res := <-results:
			inFlight = false
			s.handleResult(res)
			if pending != "" {
				next := pending
				pending = ""
				request(next)
			}

		case <-tick:
			s.emitTick()
		}
	}
}

func (s *Session) startFetch(ctx context.Context, reason Reason, results chan<- fetchResult) {
	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()

	go func() {
		state, err := s.fetch(ctx)
		results <- fetchResult{reason: reason, state: state, err: err}
	}()
}

func (s *Session) fetch(ctx context.Context) (*domain.QueueState, error) {
	var state domain.QueueState
	op := func() error {
		snap, err := s.fetcher.FetchSnapshot(ctx, s.eventID)
		if err != nil {
			if domain.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		state = queue.DeriveSnapshot(snap)
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(s.cfg.NewBackOff(), s.cfg.FetchMaxAttempts-1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Session) handleResult(res fetchResult) {
	if res.err != nil {
		if errors.Is(res.err, context.Canceled) {
			return
		}
		log.Printf("ERROR [live.handleResult] fetch for event %s failed: %v", s.eventID, res.err)

		s.mu.Lock()
		if s.last != nil {
			s.stale = true
		}
		if domain.IsTransient(res.err) {
			s.status = StatusDisconnected
		}
		u := s.snapshotUpdate(res.reason)
		s.mu.Unlock()

		u.Err = res.err
		s.onUpdate(u)
		return
	}

	s.mu.Lock()
	s.last = res.state
	s.stale = false
	s.status = StatusConnected
	u := s.snapshotUpdate(res.reason)
	s.mu.Unlock()

	s.onUpdate(u)
}

func (s *Session) emitTick() {
	s.mu.RLock()
	if s.last == nil {
		s.mu.RUnlock()
		return
	}
	u := s.snapshotUpdate(ReasonTick)
	s.mu.RUnlock()

	s.onUpdate(u)
}

// snapshotUpdate must be called with s.mu held.
func (s *Session) snapshotUpdate(reason Reason) Update {
	now := s.cfg.Clock()
	u := Update{
		EventID: s.eventID,
		Reason:  reason,
		Status:  s.status,
		State:   s.last,
		Stale:   s.stale,
		At:      now,
	}
	if s.last != nil && s.last.Current != nil && !s.last.Current.Match.StartedAt.IsZero() {
		u.Elapsed = now.Sub(s.last.Current.Match.StartedAt)
	}
	return u
}

func (s *Session) setStatus(status ConnectionStatus) {
	s.mu.Lock()
	s.status = status
	u := s.snapshotUpdate(ReasonStatus)
	s.mu.Unlock()

	s.onUpdate(u)
}

func (s *Session) listen(ctx context.Context) (*notifier.Listener, error) {
	var listener *notifier.Listener
	op := func() error {
		l, err := s.feed.Listen(ctx, s.eventID)
		if err != nil {
			if errors.Is(err, notifier.ErrClosed) {
				return backoff.Permanent(err)
			}
			return err
		}
		listener = l
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(s.cfg.NewBackOff(), s.cfg.ReconnectMaxAttempts), ctx)
	notify := func(err error, wait time.Duration) {
		log.Printf("Session: listen on event %s failed: %v (retry in %s)", s.eventID, err, wait)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return listener, nil
}

// stop reports the final status. A cancelled context is a normal teardown.
func (s *Session) stop(ctx context.Context, err error) error {
	s.mu.Lock()
	s.status = StatusDisconnected
	u := s.snapshotUpdate(ReasonStatus)
	s.mu.Unlock()

	if ctx.Err() != nil {
		return nil
	}
	u.Err = err
	s.onUpdate(u)
	return err
}
