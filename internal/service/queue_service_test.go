package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/dom/pickup-queue/internal/queue"
	"github.com/dom/pickup-queue/internal/repository/postgres"
	"github.com/dom/pickup-queue/internal/service"
	"github.com/dom/pickup-queue/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueueService(t *testing.T) (*service.QueueService, *testutil.TestDB) {
	t.Helper()
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	return service.NewQueueService(repos, queue.New()), testDB
}

func TestQueueService_FullRotationCycle(t *testing.T) {
	svc, testDB := newQueueService(t)
	ctx := context.Background()
	event := testutil.NewEventBuilder().Build(t, testDB.DB)
	testutil.SeedQueue(t, testDB.DB, event, 5)

	_, err := svc.StartNextMatch(ctx, event.ID)
	require.NoError(t, err)

	// Five teams, ten finishes: every team gets on court and nobody plays
	// two games in a row while others wait.
	played := map[string]int{}
	var lastPair []string
	for i := 0; i < 10; i++ {
		state, err := svc.GetQueueState(ctx, event.ID)
		require.NoError(t, err)
		require.NotNil(t, state.Current)

		pair := []string{state.Current.TeamA.Name, state.Current.TeamB.Name}
		for _, name := range pair {
			played[name]++
			assert.NotContains(t, lastPair, name, "%s played twice in a row", name)
		}
		lastPair = pair

		rot, err := svc.FinishMatch(ctx, event.ID, state.Current.Match.ID)
		require.NoError(t, err)
		assert.Equal(t, state.TotalTeams, rot.Next.TotalTeams)
	}

	assert.Len(t, played, 5)
	for name, n := range played {
		assert.Equal(t, 4, n, "team %s", name)
	}
}

func TestQueueService_ConcurrentFinishRotatesOnce(t *testing.T) {
	svc, testDB := newQueueService(t)
	ctx := context.Background()
	event := testutil.NewEventBuilder().Build(t, testDB.DB)
	teams := testutil.SeedQueue(t, testDB.DB, event, 6)
	match := testutil.StartMatch(t, testDB.DB, teams[0], teams[1])

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.FinishMatch(ctx, event.ID, match.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)

	state, err := svc.GetQueueState(ctx, event.ID)
	require.NoError(t, err)
	testutil.AssertOnCourt(t, state, "Team 3", "Team 4")
	testutil.AssertWaitingOrder(t, state, "Team 5", "Team 6", "Team 1", "Team 2")
	assert.Equal(t, 8, state.LastPosition)
}

func TestQueueService_RetireRacingFinish(t *testing.T) {
	svc, testDB := newQueueService(t)
	ctx := context.Background()
	event := testutil.NewEventBuilder().Build(t, testDB.DB)
	teams := testutil.SeedQueue(t, testDB.DB, event, 6)
	match := testutil.StartMatch(t, testDB.DB, teams[0], teams[1])

	var wg sync.WaitGroup
	var finishErr, retireErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, finishErr = svc.FinishMatch(ctx, event.ID, match.ID)
	}()
	go func() {
		defer wg.Done()
		retireErr = svc.RetireTeam(ctx, event.ID, teams[2].ID)
	}()
	wg.Wait()
	require.NoError(t, finishErr)

	state, err := svc.GetQueueState(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, state.Current)
	assert.False(t, state.Current.Provisional)

	if retireErr == nil {
		testutil.AssertOnCourt(t, state, "Team 4", "Team 5")
		testutil.AssertWaitingOrder(t, state, "Team 6", "Team 1", "Team 2")
	} else {
		assert.ErrorIs(t, retireErr, domain.ErrInvalidTransition)
		testutil.AssertOnCourt(t, state, "Team 3", "Team 4")
		testutil.AssertWaitingOrder(t, state, "Team 5", "Team 6", "Team 1", "Team 2")
	}

	var playing int64
	require.NoError(t, testDB.DB.Model(&domain.Team{}).
		Where("event_id = ? AND status = ?", event.ID, domain.TeamStatusPlaying).
		Count(&playing).Error)
	assert.Equal(t, int64(2), playing)
}

func TestQueueService_ConcurrentCheckInsGetDistinctPositions(t *testing.T) {
	svc, testDB := newQueueService(t)
	ctx := context.Background()
	event := testutil.NewEventBuilder().Build(t, testDB.DB)

	const n = 3
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CheckInTeam(ctx, event.ID, service.CheckInTeamInput{Name: fmt.Sprintf("Walk-in %d", i)})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	state, err := svc.GetQueueState(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, state.Waiting, n)
	seen := map[int]bool{}
	for _, team := range state.Waiting {
		require.NotNil(t, team.Position)
		assert.False(t, seen[*team.Position], "position %d issued twice", *team.Position)
		seen[*team.Position] = true
	}
	assert.Equal(t, n, state.LastPosition)
}

func TestQueueService_Errors(t *testing.T) {
	svc, testDB := newQueueService(t)
	ctx := context.Background()

	finished := testutil.NewEventBuilder().WithStatus(domain.EventStatusFinished).Build(t, testDB.DB)
	active := testutil.NewEventBuilder().Build(t, testDB.DB)
	teams := testutil.SeedQueue(t, testDB.DB, active, 2)
	match := testutil.StartMatch(t, testDB.DB, teams[0], teams[1])
	other := testutil.NewEventBuilder().Build(t, testDB.DB)

	tests := []struct {
		name    string
		run     func() error
		wantErr error
	}{
		{
			name: "check in to finished event",
			run: func() error {
				_, err := svc.CheckInTeam(ctx, finished.ID, service.CheckInTeamInput{Name: "Late"})
				return err
			},
			wantErr: domain.ErrEventNotActive,
		},
		{
			name: "check in to missing event",
			run: func() error {
				_, err := svc.CheckInTeam(ctx, uuid.New(), service.CheckInTeamInput{Name: "Lost"})
				return err
			},
			wantErr: domain.ErrEventNotFound,
		},
		{
			name: "finish match from another event",
			run: func() error {
				_, err := svc.FinishMatch(ctx, other.ID, match.ID)
				return err
			},
			wantErr: domain.ErrMatchNotFound,
		},
		{
			name: "start while a match is on court",
			run: func() error {
				_, err := svc.StartNextMatch(ctx, active.ID)
				return err
			},
			wantErr: domain.ErrInvalidTransition,
		},
		{
			name: "retire a team on court",
			run: func() error {
				return svc.RetireTeam(ctx, active.ID, teams[0].ID)
			},
			wantErr: domain.ErrInvalidTransition,
		},
		{
			name: "retire a team from another event",
			run: func() error {
				return svc.RetireTeam(ctx, other.ID, teams[0].ID)
			},
			wantErr: domain.ErrTeamNotFound,
		},
		{
			name: "random team from empty solo queue",
			run: func() error {
				_, err := svc.FormRandomTeam(ctx, active.ID, 2)
				return err
			},
			wantErr: domain.ErrSoloQueueTooShort,
		},
		{
			name: "bad status",
			run: func() error {
				_, err := svc.SetEventStatus(ctx, active.ID, domain.EventStatus("overtime"), false)
				return err
			},
			wantErr: service.ErrInvalidEventStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestQueueService_FetchSnapshotMarksStoreFailuresTransient(t *testing.T) {
	svc, testDB := newQueueService(t)
	event := testutil.NewEventBuilder().Build(t, testDB.DB)

	_, err := svc.FetchSnapshot(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
	assert.False(t, domain.IsTransient(err))

	sqlDB, err := testDB.DB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = svc.FetchSnapshot(context.Background(), event.ID)
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestQueueService_FinishProvisionalMatch(t *testing.T) {
	svc, testDB := newQueueService(t)
	ctx := context.Background()
	event := testutil.NewEventBuilder().Build(t, testDB.DB)
	teams := testutil.SeedQueue(t, testDB.DB, event, 4)

	_, err := svc.FinishMatch(ctx, event.ID, uuid.Nil)
	assert.ErrorIs(t, err, domain.ErrMatchNotFound)

	// Two teams marked playing with no match row.
	require.NoError(t, testDB.DB.Model(&domain.Team{}).
		Where("id IN ?", []uuid.UUID{teams[0].ID, teams[1].ID}).
		Update("status", domain.TeamStatusPlaying).Error)

	state, err := svc.GetQueueState(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, state.Current)
	assert.True(t, state.Current.Provisional)

	rot, err := svc.FinishMatch(ctx, event.ID, uuid.Nil)
	require.NoError(t, err)
	assert.Nil(t, rot.Transition.Finish)
	require.NotNil(t, rot.Promoted)

	state, err = svc.GetQueueState(ctx, event.ID)
	require.NoError(t, err)
	testutil.AssertOnCourt(t, state, "Team 3", "Team 4")
	assert.False(t, state.Current.Provisional)
	testutil.AssertWaitingOrder(t, state, "Team 1", "Team 2")
}
