package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dom/pickup-queue/internal/domain"
	"github.com/spf13/cobra"
)

type RotateOptions struct {
	*RootOptions
	Event    string
	Rounds   int
	Interval time.Duration
	Password string
}

func NewRotateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RotateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Play games on a running server",
		Long: `Each round finishes the match on court, or starts one when the
court is idle. Open the live view next to it to watch the queue move.

Example:
  simulator rotate --event 0b9d... --rounds 10 --interval 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRotate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Event, "event", "", "event id (required)")
	cmd.Flags().IntVar(&opts.Rounds, "rounds", 5, "number of rounds")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 2*time.Second, "pause between rounds")
	cmd.Flags().StringVar(&opts.Password, "password", os.Getenv("ADMIN_PASSWORD"), "admin password (env ADMIN_PASSWORD)")
	_ = cmd.MarkFlagRequired("event")

	return cmd
}

func runRotate(opts *RotateOptions, cmd *cobra.Command) error {
	client := NewAPIClient(opts.APIURL)
	if err := client.Login(opts.Password); err != nil {
		return err
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	for round := 1; round <= opts.Rounds; round++ {
		if round > 1 && opts.Interval > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(opts.Interval):
			}
		}

		state, err := client.GetQueue(opts.Event)
		if err != nil {
			return err
		}

		if state.Current == nil {
			_, err := client.StartMatch(opts.Event)
			var statusErr *StatusError
			if errors.As(err, &statusErr) && statusErr.Code == http.StatusConflict {
				fmt.Fprintf(out, "round %d: court idle, %d team(s) waiting\n", round, len(state.Waiting))
				return nil
			}
			if err != nil {
				return err
			}
		} else {
			// A provisional match has no row; its nil id finishes it anyway.
			if _, err := client.FinishMatch(opts.Event, state.Current.Match.ID.String()); err != nil {
				return err
			}
		}

		next, err := client.GetQueue(opts.Event)
		if err != nil {
			return err
		}
		if err := writeRound(out, opts.Format, round, next); err != nil {
			return err
		}
	}
	return nil
}

func writeRound(out io.Writer, format string, round int, state *domain.QueueState) error {
	if format == "json" {
		return json.NewEncoder(out).Encode(state)
	}
	court := "idle"
	if state.Current != nil {
		court = state.Current.TeamA.Name + " vs " + state.Current.TeamB.Name
	}
	_, err := fmt.Fprintf(out, "round %d: %s, %d waiting\n", round, court, len(state.Waiting))
	return err
}
