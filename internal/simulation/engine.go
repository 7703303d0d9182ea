package simulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/dom/pickup-queue/internal/notifier"
	"github.com/google/uuid"
)

// DemoEventID is the id the simulated event is served under.
var DemoEventID = uuid.MustParse("00000000-0000-4000-8000-0000000de300")

// ErrOffline is returned while the simulated backend is disconnected.
var ErrOffline = errors.New("simulated backend offline")

type EventType string

const (
	EventConnectionStatus EventType = "connection_status"
	EventQueueUpdated     EventType = "queue_updated"
	EventTeamJoined       EventType = "team_joined"
	EventGameStarted      EventType = "game_started"
	EventGameEnded        EventType = "game_ended"
)

// Event is emitted to On listeners. Every event carries the full state
// after the change, so consumers never need to query back.
type Event struct {
	Seq    int                  `json:"seq"`
	Type   EventType            `json:"type"`
	Status string               `json:"status,omitempty"`
	Team   *domain.Team         `json:"team,omitempty"`
	Match  *domain.CurrentMatch `json:"match,omitempty"`
	State  domain.QueueState    `json:"state"`
}

// Engine is a self-contained in-memory event: one court, a queue held as a
// plain slice, and a fake change feed. The slice order is the play order.
type Engine struct {
	emitMu sync.Mutex

	now          func() time.Time
	newID        func() uuid.UUID
	connectDelay time.Duration

	mu           sync.Mutex
	event        domain.Event
	current      *domain.CurrentMatch
	waiting      []domain.Team
	lastPosition int
	connected    bool
	connectTimer *time.Timer
	seq          int
	listeners    map[int]func(Event)
	nextListener int
	subs         map[*feedSubscription]struct{}
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

// WithConnectDelay sets how long Connect takes. Zero connects synchronously.
func WithConnectDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.connectDelay = d
	}
}

func New(roster Roster, opts ...Option) (*Engine, error) {
	if err := roster.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		now:          time.Now,
		newID:        uuid.New,
		connectDelay: 500 * time.Millisecond,
		listeners:    make(map[int]func(Event)),
		subs:         make(map[*feedSubscription]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	start := e.now()
	e.event = domain.Event{
		ID:        DemoEventID,
		Title:     roster.Title,
		Status:    domain.EventStatusActive,
		CreatedAt: start,
		UpdatedAt: start,
	}

	teams := make([]domain.Team, len(roster.Teams))
	for i, rt := range roster.Teams {
		e.lastPosition++
		teams[i] = domain.Team{
			ID:        e.newID(),
			EventID:   DemoEventID,
			Name:      rt.Name,
			Kind:      rt.Kind,
			Status:    domain.TeamStatusWaiting,
			Position:  domain.IntPtr(e.lastPosition),
			CreatedAt: start.Add(time.Duration(i) * time.Second),
		}
	}

	if roster.Playing == 2 {
		e.current = e.openMatch(teams[0], teams[1], start)
		teams = teams[2:]
	}
	e.waiting = teams
	e.event.LastPosition = e.lastPosition
	return e, nil
}

func (e *Engine) EventID() uuid.UUID {
	return DemoEventID
}

// On registers a listener and returns its unsubscribe. Listeners are called
// in emission order and must not call back into the engine.
func (e *Engine) On(fn func(Event)) func() {
	e.mu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Connect brings the backend online after the connect delay.
func (e *Engine) Connect() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	if e.connected || e.connectTimer != nil {
		e.mu.Unlock()
		return
	}
	if e.connectDelay <= 0 {
		evs := e.markConnected()
		e.mu.Unlock()
		e.emit(evs)
		return
	}
	e.connectTimer = time.AfterFunc(e.connectDelay, func() {
		e.emitMu.Lock()
		defer e.emitMu.Unlock()

		e.mu.Lock()
		if e.connectTimer == nil {
			e.mu.Unlock()
			return
		}
		e.connectTimer = nil
		evs := e.markConnected()
		e.mu.Unlock()
		e.emit(evs)
	})
	e.mu.Unlock()
}

func (e *Engine) markConnected() []Event {
	e.connected = true
	return []Event{
		e.newEvent(EventConnectionStatus, func(ev *Event) { ev.Status = "connected" }),
		e.newEvent(EventQueueUpdated, nil),
	}
}

// Disconnect takes the backend offline and drops every feed subscription.
func (e *Engine) Disconnect() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	if e.connectTimer != nil {
		e.connectTimer.Stop()
		e.connectTimer = nil
	}
	wasConnected := e.connected
	e.connected = false
	subs := e.subs
	e.subs = make(map[*feedSubscription]struct{})
	var evs []Event
	if wasConnected {
		evs = append(evs, e.newEvent(EventConnectionStatus, func(ev *Event) { ev.Status = "disconnected" }))
	}
	e.mu.Unlock()

	for sub := range subs {
		sub.lost <- ErrOffline
	}
	e.emit(evs)
}

func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// TriggerGameEnd finishes the match on court. Its teams go to the back of
// the queue and the two teams that were waiting at the front take the court.
// With fewer than two of them the court goes idle. Returns the new match,
// if any.
func (e *Engine) TriggerGameEnd() (*domain.Match, error) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("no match on court: %w", domain.ErrInvalidTransition)
	}

	now := e.now()
	ended := *e.current
	ended.Match.Status = domain.MatchStatusFinished
	ended.Match.FinishedAt = &now

	back := []domain.Team{ended.TeamA, ended.TeamB}
	for i := range back {
		e.lastPosition++
		back[i].Status = domain.TeamStatusWaiting
		back[i].Position = domain.IntPtr(e.lastPosition)
	}
	ended.TeamA, ended.TeamB = back[0], back[1]

	e.current = nil
	if len(e.waiting) >= 2 {
		e.current = e.openMatch(e.waiting[0], e.waiting[1], now)
		e.waiting = append(e.waiting[2:len(e.waiting):len(e.waiting)], back...)
	} else {
		e.waiting = append(e.waiting, back...)
	}
	e.event.LastPosition = e.lastPosition

	evs := []Event{e.newEvent(EventGameEnded, func(ev *Event) { ev.Match = &ended })}
	var started *domain.Match
	if e.current != nil {
		cur := *e.current
		started = &cur.Match
		evs = append(evs, e.newEvent(EventGameStarted, func(ev *Event) { ev.Match = &cur }))
	}
	evs = append(evs, e.newEvent(EventQueueUpdated, nil))
	subs := e.subscribers()
	e.mu.Unlock()

	e.notify(subs, notifier.RelationMatches, notifier.OpUpdate)
	e.emit(evs)
	return started, nil
}

// StartNext opens a match from the front of the queue when the court is idle.
func (e *Engine) StartNext() (*domain.Match, error) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	if e.current != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("match %s still playing: %w", e.current.Match.ID, domain.ErrInvalidTransition)
	}
	if len(e.waiting) < 2 {
		e.mu.Unlock()
		return nil, domain.ErrInsufficientWaitingTeams
	}

	e.current = e.openMatch(e.waiting[0], e.waiting[1], e.now())
	e.waiting = e.waiting[2:len(e.waiting):len(e.waiting)]
	cur := *e.current
	evs := []Event{
		e.newEvent(EventGameStarted, func(ev *Event) { ev.Match = &cur }),
		e.newEvent(EventQueueUpdated, nil),
	}
	subs := e.subscribers()
	e.mu.Unlock()

	e.notify(subs, notifier.RelationMatches, notifier.OpInsert)
	e.emit(evs)
	return &cur.Match, nil
}

// JoinTeam checks a team in at the back of the queue.
func (e *Engine) JoinTeam(name string, kind domain.TeamKind) (domain.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Team{}, domain.ErrInvalidTeamName
	}
	if kind == "" {
		kind = domain.TeamKindFormed
	}

	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	e.lastPosition++
	team := domain.Team{
		ID:        e.newID(),
		EventID:   DemoEventID,
		Name:      name,
		Kind:      kind,
		Status:    domain.TeamStatusWaiting,
		Position:  domain.IntPtr(e.lastPosition),
		CreatedAt: e.now(),
	}
	e.waiting = append(e.waiting, team)
	e.event.LastPosition = e.lastPosition

	evs := []Event{
		e.newEvent(EventTeamJoined, func(ev *Event) { ev.Team = &team }),
		e.newEvent(EventQueueUpdated, nil),
	}
	subs := e.subscribers()
	e.mu.Unlock()

	e.notify(subs, notifier.RelationTeams, notifier.OpInsert)
	e.emit(evs)
	return team, nil
}

// State is the simulator's own view of the queue.
func (e *Engine) State() domain.QueueState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state()
}

func (e *Engine) state() domain.QueueState {
	s := domain.QueueState{
		EventID:      e.event.ID,
		EventStatus:  e.event.Status,
		Status:       domain.QueueStatusWaitingForTeams,
		Waiting:      append([]domain.Team{}, e.waiting...),
		Upcoming:     []domain.Pairing{},
		SoloQueue:    []domain.QueuePlayer{},
		TotalTeams:   len(e.waiting),
		LastPosition: e.lastPosition,
	}
	if e.current != nil {
		cur := *e.current
		s.Current = &cur
		s.Status = domain.QueueStatusPlaying
		s.TotalTeams += 2
	}
	for i := 1; i < len(s.Waiting); i += 2 {
		s.Upcoming = append(s.Upcoming, domain.Pairing{
			Order: len(s.Upcoming) + 1,
			TeamA: s.Waiting[i-1],
			TeamB: s.Waiting[i],
		})
	}
	return s
}

// Snapshot renders the simulator as roster rows.
func (e *Engine) Snapshot() *domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	event := e.event
	snap := &domain.Snapshot{
		Event:       &event,
		Teams:       []domain.Team{},
		Matches:     []domain.Match{},
		SoloPlayers: []domain.QueuePlayer{},
	}
	if e.current != nil {
		snap.Teams = append(snap.Teams, e.current.TeamA, e.current.TeamB)
		snap.Matches = append(snap.Matches, e.current.Match)
	}
	snap.Teams = append(snap.Teams, e.waiting...)
	return snap
}

// FetchSnapshot lets a live session read the simulator like a roster store.
func (e *Engine) FetchSnapshot(ctx context.Context, eventID uuid.UUID) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if eventID != DemoEventID {
		return nil, domain.ErrEventNotFound
	}
	if !e.Connected() {
		return nil, &domain.TransientFetchError{Err: ErrOffline}
	}
	return e.Snapshot(), nil
}

// Subscribe makes the simulator a change feed for its one event.
func (e *Engine) Subscribe(ctx context.Context, topic string, handler notifier.Handler) (notifier.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topic != notifier.Topic(DemoEventID) {
		return nil, domain.ErrEventNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.connected {
		return nil, ErrOffline
	}
	sub := &feedSubscription{engine: e, handler: handler, lost: make(chan error, 1)}
	e.subs[sub] = struct{}{}
	return sub, nil
}

func (e *Engine) openMatch(a, b domain.Team, at time.Time) *domain.CurrentMatch {
	a.Status = domain.TeamStatusPlaying
	b.Status = domain.TeamStatusPlaying
	return &domain.CurrentMatch{
		Match: domain.Match{
			ID:        e.newID(),
			EventID:   DemoEventID,
			TeamAID:   a.ID,
			TeamBID:   b.ID,
			Status:    domain.MatchStatusPlaying,
			StartedAt: at,
			CreatedAt: at,
		},
		TeamA: a,
		TeamB: b,
	}
}

// newEvent builds the next event. Must be called with e.mu held.
func (e *Engine) newEvent(typ EventType, fill func(*Event)) Event {
	e.seq++
	ev := Event{Seq: e.seq, Type: typ, State: e.state()}
	if fill != nil {
		fill(&ev)
	}
	return ev
}

func (e *Engine) subscribers() []*feedSubscription {
	subs := make([]*feedSubscription, 0, len(e.subs))
	for sub := range e.subs {
		subs = append(subs, sub)
	}
	return subs
}

func (e *Engine) notify(subs []*feedSubscription, rel notifier.Relation, op notifier.Op) {
	m := notifier.Mutation{EventID: DemoEventID, Relation: rel, Op: op}
	for _, sub := range subs {
		sub.handler(m)
	}
}

// emit delivers events in order. Callers hold e.emitMu from building the
// events until delivery so sequence numbers reach listeners in order.
func (e *Engine) emit(evs []Event) {
	if len(evs) == 0 {
		return
	}
	e.mu.Lock()
	listeners := make([]func(Event), 0, len(e.listeners))
	for i := 0; i < e.nextListener; i++ {
		if fn, ok := e.listeners[i]; ok {
			listeners = append(listeners, fn)
		}
	}
	e.mu.Unlock()

	for _, ev := range evs {
		for _, fn := range listeners {
			fn(ev)
		}
	}
}

type feedSubscription struct {
	engine  *Engine
	handler notifier.Handler
	lost    chan error
	once    sync.Once
}

func (f *feedSubscription) Lost() <-chan error {
	return f.lost
}

func (f *feedSubscription) Unsubscribe() {
	f.once.Do(func() {
		f.engine.mu.Lock()
		delete(f.engine.subs, f)
		f.engine.mu.Unlock()
	})
}
