package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type rosterRepository struct {
	db *gorm.DB
}

func NewRosterRepository(db *gorm.DB) *rosterRepository {
	return &rosterRepository{db: db}
}

// Snapshot reads the event, its active teams, its playing matches and the
// solo queue inside one repeatable-read transaction so the pieces agree.
func (r *rosterRepository) Snapshot(ctx context.Context, eventID uuid.UUID) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event domain.Event
		if err := tx.First(&event, "id = ?", eventID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrEventNotFound
			}
			return err
		}
		snap.Event = &event

		err := tx.
			Where("event_id = ? AND status IN ?", eventID,
				[]domain.TeamStatus{domain.TeamStatusWaiting, domain.TeamStatusPlaying}).
			Order(teamOrder).
			Find(&snap.Teams).Error
		if err != nil {
			return err
		}

		err = tx.
			Where("event_id = ? AND status = ?", eventID, domain.MatchStatusPlaying).
			Order("started_at DESC").
			Find(&snap.Matches).Error
		if err != nil {
			return err
		}

		snap.SoloPlayers, err = soloQueue(tx, eventID)
		return err
	}, opts)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Apply writes a transition atomically. It returns ErrInvalidTransition when
// the match being finished is no longer playing (or another match is already
// on court), and ErrStaleSnapshot when positions were issued concurrently or
// a team it promotes has left the queue.
func (r *rosterRepository) Apply(ctx context.Context, tr domain.Transition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return applyTransition(tx, tr)
	})
}

// FormTeam applies the transition that enqueues a random team and attaches
// the given solo players to it in the same transaction.
func (r *rosterRepository) FormTeam(ctx context.Context, tr domain.Transition, playerIDs []uuid.UUID) error {
	if len(tr.Teams) != 1 {
		return fmt.Errorf("form team expects exactly one team, got %d", len(tr.Teams))
	}
	teamID := tr.Teams[0].ID

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyTransition(tx, tr); err != nil {
			return err
		}

		res := tx.Model(&domain.QueuePlayer{}).
			Where("id IN ? AND event_id = ? AND team_id IS NULL", playerIDs, tr.EventID).
			Update("team_id", teamID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(playerIDs)) {
			return domain.ErrStaleSnapshot
		}
		return nil
	})
}

// Retire marks a waiting team played under the event lock. Retiring a team
// that is already played is a no-op; a team on court is refused.
func (r *rosterRepository) Retire(ctx context.Context, eventID, teamID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockEvent(tx, eventID); err != nil {
			return err
		}

		res := tx.Model(&domain.Team{}).
			Where("id = ? AND event_id = ? AND status = ?", teamID, eventID, domain.TeamStatusWaiting).
			Update("status", domain.TeamStatusPlayed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		var team domain.Team
		err := tx.First(&team, "id = ? AND event_id = ?", teamID, eventID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrTeamNotFound
			}
			return err
		}
		if team.Status == domain.TeamStatusPlaying {
			return fmt.Errorf("team %s is on court: %w", teamID, domain.ErrInvalidTransition)
		}
		return nil
	})
}

func lockEvent(tx *gorm.DB, eventID uuid.UUID) (*domain.Event, error) {
	var event domain.Event
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&event, "id = ?", eventID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

func applyTransition(tx *gorm.DB, tr domain.Transition) error {
	event, err := lockEvent(tx, tr.EventID)
	if err != nil {
		return err
	}

	if issued, ok := lowestIssuedPosition(tr); ok && issued <= event.LastPosition {
		return domain.ErrStaleSnapshot
	}

	if tr.Finish != nil {
		res := tx.Model(&domain.Match{}).
			Where("id = ? AND event_id = ? AND status = ?", tr.Finish.ID, tr.EventID, domain.MatchStatusPlaying).
			Updates(map[string]interface{}{
				"status":      domain.MatchStatusFinished,
				"finished_at": tr.Finish.FinishedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("match %s is not playing: %w", tr.Finish.ID, domain.ErrInvalidTransition)
		}
	}

	if tr.Open != nil {
		var playing int64
		err := tx.Model(&domain.Match{}).
			Where("event_id = ? AND status = ?", tr.EventID, domain.MatchStatusPlaying).
			Count(&playing).Error
		if err != nil {
			return err
		}
		if playing > 0 {
			return fmt.Errorf("event %s already has a match on court: %w", tr.EventID, domain.ErrInvalidTransition)
		}
		open := *tr.Open
		if err := tx.Create(&open).Error; err != nil {
			return err
		}
	}

	for i := range tr.Teams {
		team := tr.Teams[i]
		if team.Status == domain.TeamStatusPlaying {
			if err := promote(tx, tr.EventID, team); err != nil {
				return err
			}
			continue
		}
		res := tx.Model(&domain.Team{}).
			Where("id = ? AND event_id = ?", team.ID, tr.EventID).
			Updates(map[string]interface{}{
				"status":   team.Status,
				"position": team.Position,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Create(&team).Error; err != nil {
				return err
			}
		}
	}

	return tx.Model(&domain.Event{}).
		Where("id = ?", tr.EventID).
		Update("last_position", gorm.Expr("GREATEST(last_position, ?)", tr.LastPosition)).Error
}

// promote moves a team on court. It must still be waiting: a team retired
// after the snapshot was read makes the whole transition stale.
func promote(tx *gorm.DB, eventID uuid.UUID, team domain.Team) error {
	res := tx.Model(&domain.Team{}).
		Where("id = ? AND event_id = ? AND status = ?", team.ID, eventID, domain.TeamStatusWaiting).
		Updates(map[string]interface{}{
			"status":   team.Status,
			"position": team.Position,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("team %s is no longer waiting: %w", team.ID, domain.ErrStaleSnapshot)
	}
	return nil
}

// lowestIssuedPosition finds the smallest position handed to a waiting team
// by this transition. Promoted teams keep theirs and are ignored.
func lowestIssuedPosition(tr domain.Transition) (int, bool) {
	lowest, found := 0, false
	for _, t := range tr.Teams {
		if t.Status != domain.TeamStatusWaiting || t.Position == nil {
			continue
		}
		if !found || *t.Position < lowest {
			lowest, found = *t.Position, true
		}
	}
	return lowest, found
}
