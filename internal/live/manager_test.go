package live_test

import (
	"context"
	"testing"
	"time"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/dom/pickup-queue/internal/live"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_GetQueueState(t *testing.T) {
	h := newHarness(t)
	m := live.NewManager(h.fetcher, h.feed, testConfig())

	state, err := m.GetQueueState(context.Background(), h.eventID)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueStatusPlaying, state.Status)
	require.NotNil(t, state.Current)
	assert.Len(t, state.Waiting, 4)
	assert.Len(t, state.Upcoming, 2)

	h.fetcher.set(func(f *fakeFetcher) { f.err = domain.ErrEventNotFound })
	_, err = m.GetQueueState(context.Background(), h.eventID)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestManager_SubscribeAndShutdown(t *testing.T) {
	h := newHarness(t)
	m := live.NewManager(h.fetcher, h.feed, testConfig())

	rec1, rec2 := newRecorder(), newRecorder()
	s1 := m.Subscribe(context.Background(), h.eventID, rec1.record)
	m.Subscribe(context.Background(), h.eventID, rec2.record)

	rec1.waitFor(t, time.Second, withReason(live.ReasonInitial))
	rec2.waitFor(t, time.Second, withReason(live.ReasonInitial))
	assert.Equal(t, 2, m.Sessions())

	s1.Close()
	assert.Eventually(t, func() bool { return m.Sessions() == 1 }, time.Second, 5*time.Millisecond)

	m.Shutdown()
	assert.Equal(t, 0, m.Sessions())

	late := m.Subscribe(context.Background(), h.eventID, nil)
	<-late.Done()
	assert.Equal(t, 0, m.Sessions())
}

func TestManager_ContextCancelEndsSession(t *testing.T) {
	h := newHarness(t)
	m := live.NewManager(h.fetcher, h.feed, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder()
	s := m.Subscribe(ctx, h.eventID, rec.record)
	rec.waitFor(t, time.Second, withReason(live.ReasonInitial))

	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session outlived its context")
	}
	assert.Eventually(t, func() bool { return m.Sessions() == 0 }, time.Second, 5*time.Millisecond)
}

func TestManager_MountRoutesEvent(t *testing.T) {
	h := newHarness(t)
	other := newHarness(t)
	m := live.NewManager(h.fetcher, h.feed, testConfig())
	m.Mount(other.eventID, other.fetcher, other.feed)

	_, err := m.GetQueueState(context.Background(), other.eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, other.fetcher.Calls())
	assert.Equal(t, 0, h.fetcher.Calls())

	_, err = m.GetQueueState(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 1, h.fetcher.Calls())
}
