package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/spf13/cobra"
)

type FillOptions struct {
	*RootOptions
	Event    string
	Count    int
	Prefix   string
	Random   bool
	Password string
}

func NewFillCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FillOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Check fake teams into an event",
		Long: `Log in as the admin and check --count teams into an event.

Example:
  simulator fill --event 0b9d... --count 6
  ADMIN_PASSWORD=secret simulator fill --event 0b9d... --prefix "Walk-in"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFill(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Event, "event", "", "event id (required)")
	cmd.Flags().IntVar(&opts.Count, "count", 4, "number of teams to check in")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "Team", "team name prefix")
	cmd.Flags().BoolVar(&opts.Random, "random", false, "mark the teams as random teams")
	cmd.Flags().StringVar(&opts.Password, "password", os.Getenv("ADMIN_PASSWORD"), "admin password (env ADMIN_PASSWORD)")
	_ = cmd.MarkFlagRequired("event")

	return cmd
}

func runFill(opts *FillOptions, cmd *cobra.Command) error {
	if opts.Count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	client := NewAPIClient(opts.APIURL)
	if err := client.Login(opts.Password); err != nil {
		return err
	}

	kind := domain.TeamKindFormed
	if opts.Random {
		kind = domain.TeamKindRandom
	}

	out := cmd.OutOrStdout()
	for i := 1; i <= opts.Count; i++ {
		name := fmt.Sprintf("%s %d", opts.Prefix, i)
		team, err := client.CheckInTeam(opts.Event, name, kind)
		if err != nil {
			return err
		}

		if opts.Format == "json" {
			if err := json.NewEncoder(out).Encode(team); err != nil {
				return err
			}
			continue
		}
		pos := "-"
		if team.Position != nil {
			pos = fmt.Sprintf("#%d", *team.Position)
		}
		fmt.Fprintf(out, "[%d/%d] %s checked in at %s\n", i, opts.Count, team.Name, pos)
	}
	return nil
}
