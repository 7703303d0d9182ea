package notifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dom/pickup-queue/internal/domain"
	"github.com/google/uuid"
)

// ErrClosed is the listener error after the notifier itself shuts down.
var ErrClosed = errors.New("notifier closed")

const (
	defaultCoalesceWindow = 25 * time.Millisecond
	defaultMaxRetries     = 8
)

// Signal says the queue for EventID may have changed. Resync is set on the
// first signal after the feed was re-established, when changes may have
// been missed.
type Signal struct {
	EventID uuid.UUID
	Seq     uint64
	Resync  bool
	At      time.Time
}

// Notifier turns raw roster mutations into coalesced per-event signals.
// Listeners on the same event share one source subscription.
type Notifier struct {
	source     Source
	window     time.Duration
	maxRetries uint64
	newBackOff func() backoff.BackOff

	mu     sync.Mutex
	topics map[uuid.UUID]*topic
	closed bool
	wg     sync.WaitGroup
}

type Option func(*Notifier)

// WithCoalesceWindow sets how long to gather mutations before signalling.
// Zero signals on every processing tick.
func WithCoalesceWindow(d time.Duration) Option {
	return func(n *Notifier) {
		n.window = d
	}
}

// WithBackOff sets the retry policy for (re)subscribing to the source.
func WithBackOff(newBackOff func() backoff.BackOff, maxRetries uint64) Option {
	return func(n *Notifier) {
		n.newBackOff = newBackOff
		n.maxRetries = maxRetries
	}
}

func New(source Source, opts ...Option) *Notifier {
	n := &Notifier{
		source:     source,
		window:     defaultCoalesceWindow,
		maxRetries: defaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
		topics: make(map[uuid.UUID]*topic),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type topic struct {
	eventID   uuid.UUID
	listeners map[*Listener]struct{}
	changed   chan struct{}
	ready     chan struct{}
	cancel    context.CancelFunc
	seq       uint64
}

// Listen registers interest in an event. It returns once the source
// subscription is live, so no mutation after Listen returns is missed.
func (n *Notifier) Listen(ctx context.Context, eventID uuid.UUID) (*Listener, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, ErrClosed
	}
	t, ok := n.topics[eventID]
	if !ok {
		topicCtx, cancel := context.WithCancel(context.Background())
		t = &topic{
			eventID:   eventID,
			listeners: make(map[*Listener]struct{}),
			changed:   make(chan struct{}, 1),
			ready:     make(chan struct{}),
			cancel:    cancel,
		}
		n.topics[eventID] = t
		n.wg.Add(1)
		go n.run(topicCtx, t)
	}
	l := &Listener{
		notifier: n,
		topic:    t,
		signals:  make(chan Signal, 1),
		done:     make(chan struct{}),
	}
	t.listeners[l] = struct{}{}
	n.mu.Unlock()

	select {
	case <-t.ready:
		return l, nil
	case <-l.done:
		return nil, l.Err()
	case <-ctx.Done():
		l.Close()
		return nil, ctx.Err()
	}
}

// Close stops every topic and closes all listeners with ErrClosed.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	var listeners []*Listener
	for id, t := range n.topics {
		t.cancel()
		for l := range t.listeners {
			listeners = append(listeners, l)
		}
		delete(n.topics, id)
	}
	n.mu.Unlock()

	for _, l := range listeners {
		l.finish(ErrClosed)
	}
	n.wg.Wait()
}

func (n *Notifier) run(ctx context.Context, t *topic) {
	defer n.wg.Done()

	handler := func(Mutation) {
		select {
		case t.changed <- struct{}{}:
		default:
		}
	}

	sub, err := n.subscribe(ctx, t, handler)
	if err != nil {
		n.fail(t, err)
		return
	}
	close(t.ready)
	defer func() { sub.Unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return

		case <-t.changed:
			if n.window > 0 {
				timer := time.NewTimer(n.window)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
				select {
				case <-t.changed:
				default:
				}
			}
			n.dispatch(t, false)

		case lostErr := <-sub.Lost():
			log.Printf("Notifier: subscription for event %s lost: %v", t.eventID, lostErr)
			sub.Unsubscribe()
			sub, err = n.subscribe(ctx, t, handler)
			if err != nil {
				sub = noopSubscription{}
				n.fail(t, err)
				return
			}
			log.Printf("Notifier: subscription for event %s restored, forcing resync", t.eventID)
			n.dispatch(t, true)
		}
	}
}

func (n *Notifier) subscribe(ctx context.Context, t *topic, handler Handler) (Subscription, error) {
	var sub Subscription
	op := func() error {
		s, err := n.source.Subscribe(ctx, Topic(t.eventID), handler)
		if err != nil {
			return err
		}
		sub = s
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(n.newBackOff(), n.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		log.Printf("Notifier: subscribe to event %s failed: %v (retry in %s)", t.eventID, err, wait)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSubscriptionLost, err)
	}
	return sub, nil
}

func (n *Notifier) dispatch(t *topic, resync bool) {
	n.mu.Lock()
	t.seq++
	sig := Signal{
		EventID: t.eventID,
		Seq:     t.seq,
		Resync:  resync,
		At:      time.Now(),
	}
	listeners := make([]*Listener, 0, len(t.listeners))
	for l := range t.listeners {
		listeners = append(listeners, l)
	}
	n.mu.Unlock()

	for _, l := range listeners {
		l.deliver(sig)
	}
}

// fail drops the topic and closes its listeners with err.
func (n *Notifier) fail(t *topic, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	log.Printf("ERROR [notifier.fail] event %s: %v", t.eventID, err)

	n.mu.Lock()
	if n.topics[t.eventID] == t {
		delete(n.topics, t.eventID)
	}
	listeners := make([]*Listener, 0, len(t.listeners))
	for l := range t.listeners {
		listeners = append(listeners, l)
	}
	t.listeners = make(map[*Listener]struct{})
	n.mu.Unlock()

	for _, l := range listeners {
		l.finish(err)
	}
}

func (n *Notifier) remove(l *Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()

	t := l.topic
	delete(t.listeners, l)
	if len(t.listeners) == 0 && n.topics[t.eventID] == t {
		delete(n.topics, t.eventID)
		t.cancel()
	}
}

type noopSubscription struct{}

func (noopSubscription) Lost() <-chan error { return nil }
func (noopSubscription) Unsubscribe()       {}

// Listener receives signals for one event. At most one signal is buffered;
// newer signals replace an unread one.
type Listener struct {
	notifier *Notifier
	topic    *topic
	signals  chan Signal
	done     chan struct{}

	mu     sync.Mutex
	closed bool
	err    error
}

func (l *Listener) Signals() <-chan Signal {
	return l.signals
}

// Done is closed when the listener stops receiving, either by Close or
// because the feed could not be restored.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Err is nil after Close and the failure cause otherwise.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close unregisters the listener. Safe to call more than once.
func (l *Listener) Close() {
	if l.finish(nil) {
		l.notifier.remove(l)
	}
}

func (l *Listener) finish(err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.closed = true
	l.err = err
	close(l.done)
	return true
}

func (l *Listener) deliver(sig Signal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case old := <-l.signals:
		sig.Resync = sig.Resync || old.Resync
	default:
	}
	l.signals <- sig
}
