package postgres

import (
	"fmt"
	"regexp"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/dom/pickup-queue/internal/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// WatchedTables are the relations whose mutations mean "queue may have changed".
var WatchedTables = []string{"events", "teams", "matches", "queue_players"}

var channelPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

func NewConnection(databaseURL string, notifyChannel string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := InstallChangeTriggers(db, notifyChannel); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the roster tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Event{},
		&domain.Team{},
		&domain.Match{},
		&domain.QueuePlayer{},
	)
}

// InstallChangeTriggers makes every insert/update/delete on the watched
// tables emit pg_notify(channel, {"event_id", "relation", "op"}).
func InstallChangeTriggers(db *gorm.DB, channel string) error {
	if !channelPattern.MatchString(channel) {
		return fmt.Errorf("invalid notify channel %q", channel)
	}

	fn := `
CREATE OR REPLACE FUNCTION notify_roster_change() RETURNS trigger AS $$
DECLARE
	rec RECORD;
	eid uuid;
BEGIN
	IF TG_OP = 'DELETE' THEN
		rec := OLD;
	ELSE
		rec := NEW;
	END IF;
	IF TG_TABLE_NAME = 'events' THEN
		eid := rec.id;
	ELSE
		eid := rec.event_id;
	END IF;
	PERFORM pg_notify(TG_ARGV[0], json_build_object(
		'event_id', eid,
		'relation', TG_TABLE_NAME,
		'op', lower(TG_OP)
	)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;`
	if err := db.Exec(fn).Error; err != nil {
		return fmt.Errorf("failed to create notify function: %w", err)
	}

	for _, table := range WatchedTables {
		drop := fmt.Sprintf("DROP TRIGGER IF EXISTS roster_change ON %s", table)
		if err := db.Exec(drop).Error; err != nil {
			return fmt.Errorf("failed to drop trigger on %s: %w", table, err)
		}
		create := fmt.Sprintf(
			"CREATE TRIGGER roster_change AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION notify_roster_change('%s')",
			table, channel,
		)
		if err := db.Exec(create).Error; err != nil {
			return fmt.Errorf("failed to create trigger on %s: %w", table, err)
		}
	}
	return nil
}

func NewRepositories(db *gorm.DB) *repository.Repositories {
	return &repository.Repositories{
		Event:       NewEventRepository(db),
		Team:        NewTeamRepository(db),
		Match:       NewMatchRepository(db),
		QueuePlayer: NewQueuePlayerRepository(db),
		Roster:      NewRosterRepository(db),
	}
}
