package simulation

import (
	"fmt"
	"os"

	"github.com/dom/pickup-queue/internal/domain"
	"gopkg.in/yaml.v3"
)

// Roster seeds a simulated event. The first Playing teams start on court.
type Roster struct {
	Title   string       `yaml:"title"`
	Playing int          `yaml:"playing"`
	Teams   []RosterTeam `yaml:"teams"`
}

type RosterTeam struct {
	Name string          `yaml:"name"`
	Kind domain.TeamKind `yaml:"kind"`
}

// DefaultRoster is the six-team demo night, two of them already playing.
func DefaultRoster() Roster {
	return Roster{
		Title:   "Demo Night",
		Playing: 2,
		Teams: []RosterTeam{
			{Name: "Lightning", Kind: domain.TeamKindFormed},
			{Name: "Thunder", Kind: domain.TeamKindFormed},
			{Name: "Street Ballers", Kind: domain.TeamKindRandom},
			{Name: "Warriors", Kind: domain.TeamKindFormed},
			{Name: "Rucker Park", Kind: domain.TeamKindRandom},
			{Name: "Legacy", Kind: domain.TeamKindFormed},
		},
	}
}

// LoadRoster reads a YAML roster file.
func LoadRoster(path string) (Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Roster{}, fmt.Errorf("failed to read roster: %w", err)
	}
	return ParseRoster(data)
}

func ParseRoster(data []byte) (Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Roster{}, fmt.Errorf("failed to parse roster: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Roster{}, err
	}
	return r, nil
}

func (r *Roster) Validate() error {
	if r.Playing != 0 && r.Playing != 2 {
		return fmt.Errorf("roster: playing must be 0 or 2, got %d", r.Playing)
	}
	if r.Playing > len(r.Teams) {
		return fmt.Errorf("roster: %d playing but only %d teams", r.Playing, len(r.Teams))
	}
	for i := range r.Teams {
		t := &r.Teams[i]
		if t.Name == "" {
			return fmt.Errorf("roster: team %d: %w", i+1, domain.ErrInvalidTeamName)
		}
		switch t.Kind {
		case "":
			t.Kind = domain.TeamKindFormed
		case domain.TeamKindFormed, domain.TeamKindRandom:
		default:
			return fmt.Errorf("roster: team %q has unknown kind %q", t.Name, t.Kind)
		}
	}
	return nil
}
