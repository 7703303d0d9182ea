package notifier

import (
	"context"
	"errors"
	"sync"
)

// ErrFeedDropped is reported on Lost when a MemorySource topic is dropped.
var ErrFeedDropped = errors.New("change feed dropped")

// MemorySource is an in-process change feed keyed by topic.
type MemorySource struct {
	mu       sync.RWMutex
	subs     map[string]map[*memorySubscription]struct{}
	failNext int
	attempts int
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		subs: make(map[string]map[*memorySubscription]struct{}),
	}
}

func (s *MemorySource) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if s.failNext > 0 {
		s.failNext--
		return nil, ErrFeedDropped
	}

	sub := &memorySubscription{
		source:  s,
		topic:   topic,
		handler: handler,
		lost:    make(chan error, 1),
	}
	if s.subs[topic] == nil {
		s.subs[topic] = make(map[*memorySubscription]struct{})
	}
	s.subs[topic][sub] = struct{}{}
	return sub, nil
}

// Publish delivers a mutation to every subscriber of the mutation's event.
func (s *MemorySource) Publish(m Mutation) {
	s.mu.RLock()
	subs := make([]*memorySubscription, 0, len(s.subs[Topic(m.EventID)]))
	for sub := range s.subs[Topic(m.EventID)] {
		subs = append(subs, sub)
	}
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(m)
	}
}

// Drop disconnects every subscriber of topic, as if the feed went away.
func (s *MemorySource) Drop(topic string) {
	s.mu.Lock()
	subs := s.subs[topic]
	delete(s.subs, topic)
	s.mu.Unlock()

	for sub := range subs {
		sub.lost <- ErrFeedDropped
	}
}

// FailNextSubscribes makes the next n Subscribe calls return an error.
func (s *MemorySource) FailNextSubscribes(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

// Subscribers returns the number of live subscriptions on topic.
func (s *MemorySource) Subscribers(topic string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[topic])
}

// Attempts returns how many times Subscribe has been called.
func (s *MemorySource) Attempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

type memorySubscription struct {
	source  *MemorySource
	topic   string
	handler Handler
	lost    chan error
	once    sync.Once
}

func (m *memorySubscription) Lost() <-chan error {
	return m.lost
}

func (m *memorySubscription) Unsubscribe() {
	m.once.Do(func() {
		m.source.mu.Lock()
		delete(m.source.subs[m.topic], m)
		if len(m.source.subs[m.topic]) == 0 {
			delete(m.source.subs, m.topic)
		}
		m.source.mu.Unlock()
	})
}
