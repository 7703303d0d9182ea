package queue

import (
	"sort"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/google/uuid"
)

// DeriveState computes the queue view from team and match rows. It is a pure
// function of its inputs: the order of the input slices never leaks into the
// result.
func DeriveState(teams []domain.Team, matches []domain.Match) domain.QueueState {
	byID := make(map[uuid.UUID]domain.Team, len(teams))
	state := domain.QueueState{
		Waiting:   []domain.Team{},
		Upcoming:  []domain.Pairing{},
		SoloQueue: []domain.QueuePlayer{},
	}

	for _, t := range teams {
		byID[t.ID] = t
		if t.Position != nil && *t.Position > state.LastPosition {
			state.LastPosition = *t.Position
		}
		if t.Status == domain.TeamStatusWaiting || t.Status == domain.TeamStatusPlaying {
			state.TotalTeams++
		}
		state.EventID = t.EventID
	}
	if state.EventID == uuid.Nil && len(matches) > 0 {
		state.EventID = matches[0].EventID
	}

	state.Current = currentMatch(byID, teams, matches)

	for _, t := range teams {
		if t.Status != domain.TeamStatusWaiting {
			continue
		}
		if state.Current != nil && (t.ID == state.Current.TeamA.ID || t.ID == state.Current.TeamB.ID) {
			continue
		}
		state.Waiting = append(state.Waiting, t)
	}
	SortTeams(state.Waiting)

	for i := 0; i+1 < len(state.Waiting); i += 2 {
		state.Upcoming = append(state.Upcoming, domain.Pairing{
			Order: i/2 + 1,
			TeamA: state.Waiting[i],
			TeamB: state.Waiting[i+1],
		})
	}

	if state.Current != nil {
		state.Status = domain.QueueStatusPlaying
	} else {
		state.Status = domain.QueueStatusWaitingForTeams
	}
	return state
}

// DeriveSnapshot is DeriveState plus event gating and the solo queue.
func DeriveSnapshot(snap *domain.Snapshot) domain.QueueState {
	if snap == nil {
		return domain.QueueState{
			Status:    domain.QueueStatusInactive,
			Waiting:   []domain.Team{},
			Upcoming:  []domain.Pairing{},
			SoloQueue: []domain.QueuePlayer{},
		}
	}

	state := DeriveState(snap.Teams, snap.Matches)
	state.SoloQueue = soloQueue(snap.SoloPlayers)

	if snap.Event == nil {
		state.Status = domain.QueueStatusInactive
		return state
	}

	state.EventID = snap.Event.ID
	state.EventStatus = snap.Event.Status
	if snap.Event.LastPosition > state.LastPosition {
		state.LastPosition = snap.Event.LastPosition
	}
	if !snap.Event.IsRunning() {
		state.Status = domain.QueueStatusInactive
	}
	return state
}

// SortTeams orders teams by position ascending with unpositioned teams last,
// then by creation time and id so the order is total.
func SortTeams(teams []domain.Team) {
	sort.SliceStable(teams, func(i, j int) bool {
		return teamLess(teams[i], teams[j])
	})
}

func teamLess(a, b domain.Team) bool {
	switch {
	case a.Position != nil && b.Position != nil:
		if *a.Position != *b.Position {
			return *a.Position < *b.Position
		}
	case a.Position != nil:
		return true
	case b.Position != nil:
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

// currentMatch picks the match on court. A store that does not apply
// rotations atomically can briefly show two playing matches or two playing
// teams with no match row; both resolve to a single deterministic answer.
func currentMatch(byID map[uuid.UUID]domain.Team, teams []domain.Team, matches []domain.Match) *domain.CurrentMatch {
	var best *domain.Match
	for i := range matches {
		m := matches[i]
		if m.Status != domain.MatchStatusPlaying || m.TeamAID == m.TeamBID {
			continue
		}
		if _, ok := byID[m.TeamAID]; !ok {
			continue
		}
		if _, ok := byID[m.TeamBID]; !ok {
			continue
		}
		if best == nil || m.StartedAt.After(best.StartedAt) ||
			(m.StartedAt.Equal(best.StartedAt) && m.ID.String() < best.ID.String()) {
			best = &m
		}
	}
	if best != nil {
		return &domain.CurrentMatch{
			Match: *best,
			TeamA: byID[best.TeamAID],
			TeamB: byID[best.TeamBID],
		}
	}

	var playing []domain.Team
	for _, t := range teams {
		if t.Status == domain.TeamStatusPlaying {
			playing = append(playing, t)
		}
	}
	if len(playing) != 2 {
		return nil
	}
	SortTeams(playing)
	return &domain.CurrentMatch{
		Match: domain.Match{
			EventID: playing[0].EventID,
			TeamAID: playing[0].ID,
			TeamBID: playing[1].ID,
			Status:  domain.MatchStatusPlaying,
		},
		TeamA:       playing[0],
		TeamB:       playing[1],
		Provisional: true,
	}
}

func soloQueue(players []domain.QueuePlayer) []domain.QueuePlayer {
	out := []domain.QueuePlayer{}
	for _, p := range players {
		if p.PlayerType == domain.PlayerTypeSolo && p.Status == domain.TeamStatusWaiting && p.TeamID == nil {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CheckedInAt.Equal(out[j].CheckedInAt) {
			return out[i].CheckedInAt.Before(out[j].CheckedInAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
