package simulation

import (
	"fmt"
	"strings"

	"github.com/dom/pickup-queue/internal/domain"
)

// FormatEvent renders an event as one line of a human readable trace.
func FormatEvent(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%03d %s", ev.Seq, ev.Type)

	switch ev.Type {
	case EventConnectionStatus:
		fmt.Fprintf(&b, " status=%s", ev.Status)
	case EventTeamJoined:
		if ev.Team != nil {
			fmt.Fprintf(&b, " team=%s", teamLabel(*ev.Team))
		}
	case EventGameStarted, EventGameEnded:
		if ev.Match != nil {
			fmt.Fprintf(&b, " match=%s vs %s", ev.Match.TeamA.Name, ev.Match.TeamB.Name)
		}
	case EventQueueUpdated:
		if ev.State.Current != nil {
			fmt.Fprintf(&b, " current=%s vs %s", ev.State.Current.TeamA.Name, ev.State.Current.TeamB.Name)
		} else {
			b.WriteString(" current=none")
		}
		labels := make([]string, len(ev.State.Waiting))
		for i, t := range ev.State.Waiting {
			labels[i] = teamLabel(t)
		}
		fmt.Fprintf(&b, " waiting=[%s]", strings.Join(labels, " "))
	}
	return b.String()
}

func teamLabel(t domain.Team) string {
	if t.Position == nil {
		return t.Name
	}
	return fmt.Sprintf("%s#%d", t.Name, *t.Position)
}
