package simulation_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dom/pickup-queue/internal/domain"
	"github.com/dom/pickup-queue/internal/live"
	"github.com/dom/pickup-queue/internal/notifier"
	"github.com/dom/pickup-queue/internal/queue"
	"github.com/dom/pickup-queue/internal/simulation"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slot struct {
	ID       uuid.UUID
	Position int
	Status   domain.TeamStatus
}

type projection struct {
	Status       domain.QueueStatus
	TeamA, TeamB uuid.UUID
	Waiting      []slot
	TotalTeams   int
	LastPosition int
}

func project(s domain.QueueState) projection {
	p := projection{
		Status:       s.Status,
		TotalTeams:   s.TotalTeams,
		LastPosition: s.LastPosition,
	}
	if s.Current != nil {
		p.TeamA, p.TeamB = s.Current.TeamA.ID, s.Current.TeamB.ID
	}
	for _, t := range s.Waiting {
		pos := 0
		if t.Position != nil {
			pos = *t.Position
		}
		p.Waiting = append(p.Waiting, slot{ID: t.ID, Position: pos, Status: t.Status})
	}
	return p
}

func rosterOf(n int) simulation.Roster {
	r := simulation.Roster{Title: "Conformance"}
	for i := 0; i < n; i++ {
		r.Teams = append(r.Teams, simulation.RosterTeam{Name: fmt.Sprintf("Team %d", i+1)})
	}
	if n >= 2 {
		r.Playing = 2
	}
	return r
}

func sameSentinel(a, b error) bool {
	for _, target := range []error{domain.ErrInvalidTransition, domain.ErrInsufficientWaitingTeams} {
		if errors.Is(a, target) != errors.Is(b, target) {
			return false
		}
	}
	return (a == nil) == (b == nil)
}

func TestConformance_SimulatorMatchesQueueEngine(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	eng := queue.New(queue.WithClock(func() time.Time { return demoStart }))

	for _, size := range []int{0, 1, 2, 3, 4, 5, 6, 9} {
		t.Run(fmt.Sprintf("%d teams", size), func(t *testing.T) {
			sim := newEngine(t, rosterOf(size))
			state := queue.DeriveSnapshot(sim.Snapshot())
			require.Equal(t, project(sim.State()), project(state))

			for step := 0; step < 80; step++ {
				switch op := rng.Intn(10); {
				case op < 7 && state.Current != nil:
					_, simErr := sim.TriggerGameEnd()
					rot, err := eng.Rotate(state, state.Current.Match)
					require.True(t, sameSentinel(simErr, err), "step %d: sim=%v engine=%v", step, simErr, err)
					if err == nil {
						state = rot.Next
					}
				case op < 7:
					_, simErr := sim.StartNext()
					rot, err := eng.StartNext(state)
					require.True(t, sameSentinel(simErr, err), "step %d: sim=%v engine=%v", step, simErr, err)
					if err == nil {
						state = rot.Next
					}
				default:
					team, err := sim.JoinTeam(fmt.Sprintf("Walk-in %d", step), domain.TeamKindRandom)
					require.NoError(t, err)
					_, tr := eng.Enqueue(state, team)
					state = queue.Apply(state, tr)
				}

				require.Equal(t, project(state), project(sim.State()), "step %d", step)
				require.Equal(t, queue.DeriveSnapshot(sim.Snapshot()), sim.State(), "step %d", step)
			}
		})
	}
}

func TestSimulator_DrivesLiveSession(t *testing.T) {
	sim := newEngine(t, simulation.DefaultRoster())
	sim.Connect()

	retry := func() backoff.BackOff { return backoff.NewConstantBackOff(5 * time.Millisecond) }
	feed := notifier.New(sim, notifier.WithCoalesceWindow(0), notifier.WithBackOff(retry, 40))
	t.Cleanup(feed.Close)

	updates := make(chan live.Update, 256)
	session := live.NewSession(simulation.DemoEventID, sim, feed, live.Config{
		FetchMaxAttempts:     2,
		ReconnectMaxAttempts: 40,
		NewBackOff:           retry,
	}, func(u live.Update) { updates <- u })
	go session.Run(context.Background())
	t.Cleanup(session.Close)

	waitFor := func(match func(live.Update) bool) live.Update {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case u := <-updates:
				if match(u) {
					return u
				}
			case <-deadline:
				t.Fatal("timeout waiting for update")
				return live.Update{}
			}
		}
	}

	initial := waitFor(func(u live.Update) bool { return u.Reason == live.ReasonInitial })
	require.NotNil(t, initial.State)
	assert.Equal(t, sim.State(), *initial.State)

	_, err := sim.TriggerGameEnd()
	require.NoError(t, err)
	u := waitFor(func(u live.Update) bool { return u.Reason == live.ReasonSignal && u.State != nil })
	assert.Equal(t, "Street Ballers", u.State.Current.TeamA.Name)

	sim.Disconnect()
	_, err = sim.JoinTeam("Night Owls", domain.TeamKindFormed)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	sim.Connect()

	resynced := waitFor(func(u live.Update) bool { return u.Reason == live.ReasonResync && u.State != nil })
	assert.Equal(t, sim.State(), *resynced.State)
	assert.Equal(t, "Night Owls", resynced.State.Waiting[len(resynced.State.Waiting)-1].Name)
}
