package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds flags shared by every command.
type RootOptions struct {
	APIURL string
	Format string // "text" | "json"
}

var validFormats = []string{"text", "json"}

// NewRootCommand builds the simulator CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	defaultURL := "http://localhost:8080"
	if envURL := os.Getenv("API_URL"); envURL != "" {
		defaultURL = envURL
	}

	cmd := &cobra.Command{
		Use:   "simulator",
		Short: "Development tool for the pickup queue",
		Long: `Drive a pickup queue without a real court.

"local" runs the in-memory demo event and prints its event trace.
"fill" and "rotate" talk to a running server through the admin API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.APIURL, "api-url", defaultURL, "backend base URL (env API_URL)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(NewLocalCommand(opts))
	cmd.AddCommand(NewFillCommand(opts))
	cmd.AddCommand(NewRotateCommand(opts))

	return cmd
}
