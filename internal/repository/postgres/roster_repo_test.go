package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/dom/pickup-queue/internal/repository/postgres"
	"github.com/dom/pickup-queue/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterRepository_Snapshot(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewRosterRepository(testDB.DB)
	ctx := context.Background()

	event := testutil.NewEventBuilder().WithLastPosition(3).Build(t, testDB.DB)
	teams := testutil.SeedQueue(t, testDB.DB, event, 3)
	match := testutil.StartMatch(t, testDB.DB, teams[0], teams[1])

	unpositioned := testutil.NewTeamBuilder().WithEvent(event).WithName("No Number").Random().Build(t, testDB.DB)
	testutil.NewTeamBuilder().WithEvent(event).WithName("Gone Home").
		WithStatus(domain.TeamStatusPlayed).WithPosition(9).Build(t, testDB.DB)

	now := time.Now()
	second := testutil.NewQueuePlayerBuilder().WithEvent(event).WithName("Second").CheckedInAt(now).Build(t, testDB.DB)
	first := testutil.NewQueuePlayerBuilder().WithEvent(event).WithName("First").CheckedInAt(now.Add(-time.Minute)).Build(t, testDB.DB)

	other := testutil.NewEventBuilder().Build(t, testDB.DB)
	testutil.SeedQueue(t, testDB.DB, other, 2)

	snap, err := repo.Snapshot(ctx, event.ID)
	require.NoError(t, err)

	assert.Equal(t, event.ID, snap.Event.ID)
	assert.Equal(t, 3, snap.Event.LastPosition)

	var names []string
	for _, team := range snap.Teams {
		names = append(names, team.Name)
	}
	assert.Equal(t, []string{"Team 1", "Team 2", "Team 3", unpositioned.Name}, names)
	assert.Equal(t, domain.TeamKindRandom, snap.Teams[3].Kind)

	require.Len(t, snap.Matches, 1)
	assert.Equal(t, match.ID, snap.Matches[0].ID)

	require.Len(t, snap.SoloPlayers, 2)
	assert.Equal(t, first.ID, snap.SoloPlayers[0].ID)
	assert.Equal(t, second.ID, snap.SoloPlayers[1].ID)

	_, err = repo.Snapshot(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestRosterRepository_Apply(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewRosterRepository(testDB.DB)
	ctx := context.Background()

	event := testutil.NewEventBuilder().WithLastPosition(4).Build(t, testDB.DB)
	teams := testutil.SeedQueue(t, testDB.DB, event, 4)
	match := testutil.StartMatch(t, testDB.DB, teams[0], teams[1])

	rotate := func(finished *domain.Match, a, b *domain.Team, lastPosition int) domain.Transition {
		now := time.Now()
		closed := *finished
		closed.Status = domain.MatchStatusFinished
		closed.FinishedAt = &now

		promoted := []domain.Team{*teams[2], *teams[3]}
		for i := range promoted {
			promoted[i].Status = domain.TeamStatusPlaying
		}
		requeued := []domain.Team{*a, *b}
		for i := range requeued {
			requeued[i].Status = domain.TeamStatusWaiting
			requeued[i].Position = domain.IntPtr(lastPosition + i + 1)
		}

		return domain.Transition{
			EventID: event.ID,
			Finish:  &closed,
			Open: &domain.Match{
				ID:        uuid.New(),
				EventID:   event.ID,
				TeamAID:   teams[2].ID,
				TeamBID:   teams[3].ID,
				Status:    domain.MatchStatusPlaying,
				StartedAt: now,
			},
			Teams:        append(promoted, requeued...),
			LastPosition: lastPosition + 2,
			At:           now,
		}
	}

	t.Run("rotation commits as one unit", func(t *testing.T) {
		tr := rotate(match, teams[0], teams[1], 4)
		require.NoError(t, repo.Apply(ctx, tr))

		snap, err := repo.Snapshot(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 6, snap.Event.LastPosition)
		require.Len(t, snap.Matches, 1)
		assert.Equal(t, tr.Open.ID, snap.Matches[0].ID)

		byName := map[string]domain.Team{}
		for _, team := range snap.Teams {
			byName[team.Name] = team
		}
		assert.Equal(t, domain.TeamStatusPlaying, byName["Team 3"].Status)
		assert.Equal(t, domain.TeamStatusPlaying, byName["Team 4"].Status)
		assert.Equal(t, domain.TeamStatusWaiting, byName["Team 1"].Status)
		assert.Equal(t, 5, *byName["Team 1"].Position)
		assert.Equal(t, 6, *byName["Team 2"].Position)

		var finished domain.Match
		require.NoError(t, testDB.DB.First(&finished, "id = ?", match.ID).Error)
		assert.Equal(t, domain.MatchStatusFinished, finished.Status)
		assert.NotNil(t, finished.FinishedAt)
	})

	t.Run("finishing twice is rejected", func(t *testing.T) {
		tr := rotate(match, teams[0], teams[1], 6)
		err := repo.Apply(ctx, tr)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		snap, err := repo.Snapshot(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 6, snap.Event.LastPosition)
	})

	t.Run("reissued positions are stale", func(t *testing.T) {
		late := domain.Team{
			ID:       uuid.New(),
			EventID:  event.ID,
			Name:     "Late Arrivals",
			Kind:     domain.TeamKindFormed,
			Status:   domain.TeamStatusWaiting,
			Position: domain.IntPtr(6),
		}
		err := repo.Apply(ctx, domain.Transition{
			EventID:      event.ID,
			Teams:        []domain.Team{late},
			LastPosition: 6,
			At:           time.Now(),
		})
		assert.ErrorIs(t, err, domain.ErrStaleSnapshot)

		var count int64
		require.NoError(t, testDB.DB.Model(&domain.Team{}).Where("id = ?", late.ID).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("second match on court is rejected", func(t *testing.T) {
		err := repo.Apply(ctx, domain.Transition{
			EventID: event.ID,
			Open: &domain.Match{
				ID:        uuid.New(),
				EventID:   event.ID,
				TeamAID:   teams[0].ID,
				TeamBID:   teams[1].ID,
				Status:    domain.MatchStatusPlaying,
				StartedAt: time.Now(),
			},
			LastPosition: 6,
			At:           time.Now(),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("unknown event", func(t *testing.T) {
		err := repo.Apply(ctx, domain.Transition{EventID: uuid.New(), At: time.Now()})
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
	})
}

func TestRosterRepository_Retire(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewRosterRepository(testDB.DB)
	ctx := context.Background()

	event := testutil.NewEventBuilder().WithLastPosition(4).Build(t, testDB.DB)
	teams := testutil.SeedQueue(t, testDB.DB, event, 4)
	testutil.StartMatch(t, testDB.DB, teams[0], teams[1])
	other := testutil.NewEventBuilder().Build(t, testDB.DB)

	tests := []struct {
		name       string
		eventID    uuid.UUID
		team       *domain.Team
		wantErr    error
		wantStatus domain.TeamStatus
	}{
		{"waiting team", event.ID, teams[2], nil, domain.TeamStatusPlayed},
		{"already retired", event.ID, teams[2], nil, domain.TeamStatusPlayed},
		{"team on court", event.ID, teams[0], domain.ErrInvalidTransition, domain.TeamStatusPlaying},
		{"team from another event", other.ID, teams[3], domain.ErrTeamNotFound, domain.TeamStatusWaiting},
		{"unknown event", uuid.New(), teams[3], domain.ErrEventNotFound, domain.TeamStatusWaiting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Retire(ctx, tt.eventID, tt.team.ID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			var got domain.Team
			require.NoError(t, testDB.DB.First(&got, "id = ?", tt.team.ID).Error)
			assert.Equal(t, tt.wantStatus, got.Status)
		})
	}
}

// A team promoted after the caller last saw it waiting stays on court, and a
// rotation read before a retire cannot bring the retired team back.
func TestRosterRepository_RetireAgainstRotation(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewRosterRepository(testDB.DB)
	ctx := context.Background()

	event := testutil.NewEventBuilder().WithLastPosition(5).Build(t, testDB.DB)
	teams := testutil.SeedQueue(t, testDB.DB, event, 5)
	match := testutil.StartMatch(t, testDB.DB, teams[0], teams[1])

	before, err := repo.Snapshot(ctx, event.ID)
	require.NoError(t, err)

	now := time.Now()
	closed := *match
	closed.Status = domain.MatchStatusFinished
	closed.FinishedAt = &now
	promoted := []domain.Team{*teams[2], *teams[3]}
	for i := range promoted {
		promoted[i].Status = domain.TeamStatusPlaying
	}
	requeued := []domain.Team{*teams[0], *teams[1]}
	for i := range requeued {
		requeued[i].Status = domain.TeamStatusWaiting
		requeued[i].Position = domain.IntPtr(before.Event.LastPosition + i + 1)
	}
	rotation := domain.Transition{
		EventID: event.ID,
		Finish:  &closed,
		Open: &domain.Match{
			ID:        uuid.New(),
			EventID:   event.ID,
			TeamAID:   teams[2].ID,
			TeamBID:   teams[3].ID,
			Status:    domain.MatchStatusPlaying,
			StartedAt: now,
		},
		Teams:        append(promoted, requeued...),
		LastPosition: before.Event.LastPosition + 2,
		At:           now,
	}

	t.Run("retire loses to a committed promotion", func(t *testing.T) {
		require.NoError(t, repo.Apply(ctx, rotation))

		err := repo.Retire(ctx, event.ID, teams[2].ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		snap, err := repo.Snapshot(ctx, event.ID)
		require.NoError(t, err)
		playing := 0
		for _, team := range snap.Teams {
			if team.Status == domain.TeamStatusPlaying {
				playing++
			}
		}
		assert.Equal(t, 2, playing)
		require.Len(t, snap.Matches, 1)
		assert.Equal(t, rotation.Open.ID, snap.Matches[0].ID)
	})

	t.Run("promotion of a retired team is stale", func(t *testing.T) {
		require.NoError(t, repo.Retire(ctx, event.ID, teams[4].ID))

		second := *rotation.Open
		second.Status = domain.MatchStatusFinished
		second.FinishedAt = &now
		late := *teams[4]
		late.Status = domain.TeamStatusPlaying
		err := repo.Apply(ctx, domain.Transition{
			EventID: event.ID,
			Finish:  &second,
			Open: &domain.Match{
				ID:        uuid.New(),
				EventID:   event.ID,
				TeamAID:   teams[4].ID,
				TeamBID:   teams[0].ID,
				Status:    domain.MatchStatusPlaying,
				StartedAt: now,
			},
			Teams:        []domain.Team{late},
			LastPosition: before.Event.LastPosition + 2,
			At:           now,
		})
		assert.ErrorIs(t, err, domain.ErrStaleSnapshot)

		var got domain.Team
		require.NoError(t, testDB.DB.First(&got, "id = ?", teams[4].ID).Error)
		assert.Equal(t, domain.TeamStatusPlayed, got.Status)

		snap, err := repo.Snapshot(ctx, event.ID)
		require.NoError(t, err)
		require.Len(t, snap.Matches, 1)
		assert.Equal(t, rotation.Open.ID, snap.Matches[0].ID)
	})
}

func TestRosterRepository_FormTeam(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repo := postgres.NewRosterRepository(testDB.DB)
	ctx := context.Background()

	event := testutil.NewEventBuilder().Build(t, testDB.DB)
	alice := testutil.NewQueuePlayerBuilder().WithEvent(event).WithName("Alice").Build(t, testDB.DB)
	bo := testutil.NewQueuePlayerBuilder().WithEvent(event).WithName("Bo").Build(t, testDB.DB)
	cy := testutil.NewQueuePlayerBuilder().WithEvent(event).WithName("Cy").Build(t, testDB.DB)

	newTeam := func(position int) domain.Transition {
		team := domain.Team{
			ID:       uuid.New(),
			EventID:  event.ID,
			Name:     "Random Team",
			Kind:     domain.TeamKindRandom,
			Status:   domain.TeamStatusWaiting,
			Position: domain.IntPtr(position),
		}
		return domain.Transition{
			EventID:      event.ID,
			Teams:        []domain.Team{team},
			LastPosition: position,
			At:           time.Now(),
		}
	}

	tr := newTeam(1)
	require.NoError(t, repo.FormTeam(ctx, tr, []uuid.UUID{alice.ID, bo.ID}))

	snap, err := repo.Snapshot(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, snap.Teams, 1)
	assert.Equal(t, domain.TeamKindRandom, snap.Teams[0].Kind)
	require.Len(t, snap.SoloPlayers, 1)
	assert.Equal(t, cy.ID, snap.SoloPlayers[0].ID)

	// Bo already has a team, so the whole write rolls back.
	again := newTeam(2)
	err = repo.FormTeam(ctx, again, []uuid.UUID{bo.ID, cy.ID})
	assert.ErrorIs(t, err, domain.ErrStaleSnapshot)

	snap, err = repo.Snapshot(ctx, event.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Teams, 1)
	assert.Equal(t, 1, snap.Event.LastPosition)
	require.Len(t, snap.SoloPlayers, 1)
	assert.Nil(t, snap.SoloPlayers[0].TeamID)
}
