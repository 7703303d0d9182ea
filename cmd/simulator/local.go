package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/dom/pickup-queue/internal/simulation"
	"github.com/spf13/cobra"
)

type LocalOptions struct {
	*RootOptions
	Rounds int
	Roster string
	Join   []string
}

func NewLocalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LocalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "local",
		Short: "Run the demo event in memory and print every event",
		Long: `Run the simulated event without a database or server.

The roster is seeded (the built-in demo night unless --roster is given),
any --join teams check in, then the court rotates --rounds times.

Example:
  simulator local --rounds 5
  simulator local --roster ./friday.yaml --join "Night Owls" --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.Rounds, "rounds", 3, "number of games to play")
	cmd.Flags().StringVar(&opts.Roster, "roster", "", "YAML roster file (default: demo night)")
	cmd.Flags().StringSliceVar(&opts.Join, "join", nil, "teams that check in before play starts")

	return cmd
}

func runLocal(opts *LocalOptions, out io.Writer) error {
	if opts.Rounds < 0 {
		return fmt.Errorf("--rounds must not be negative")
	}

	roster := simulation.DefaultRoster()
	if opts.Roster != "" {
		var err error
		roster, err = simulation.LoadRoster(opts.Roster)
		if err != nil {
			return err
		}
	}

	engine, err := simulation.New(roster, simulation.WithConnectDelay(0))
	if err != nil {
		return err
	}

	var writeErr error
	engine.On(func(ev simulation.Event) {
		if writeErr == nil {
			writeErr = writeEvent(out, opts.Format, ev)
		}
	})

	engine.Connect()
	err = play(engine, opts)
	engine.Disconnect()
	if err != nil {
		return err
	}
	return writeErr
}

func play(engine *simulation.Engine, opts *LocalOptions) error {
	for _, name := range opts.Join {
		if _, err := engine.JoinTeam(name, domain.TeamKindFormed); err != nil {
			return fmt.Errorf("join %q: %w", name, err)
		}
	}

	for i := 0; i < opts.Rounds; i++ {
		if engine.State().Current == nil {
			if _, err := engine.StartNext(); err != nil {
				if errors.Is(err, domain.ErrInsufficientWaitingTeams) {
					return nil
				}
				return err
			}
			continue
		}
		if _, err := engine.TriggerGameEnd(); err != nil {
			return err
		}
	}
	return nil
}

func writeEvent(out io.Writer, format string, ev simulation.Event) error {
	if format == "json" {
		return json.NewEncoder(out).Encode(ev)
	}
	_, err := fmt.Fprintln(out, simulation.FormatEvent(ev))
	return err
}
