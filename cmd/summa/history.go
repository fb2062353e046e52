package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List stored sessions, or the turns of one session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), appOptions{withStore: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if a.store == nil {
				return errors.New("history is disabled in config")
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				sessions, err := a.store.Sessions(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("listing sessions: %w", err)
				}
				if asJSON {
					return writeJSON(out, sessions)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SESSION\tCHANNEL\tTURNS\tUPDATED")
				for _, s := range sessions {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.Channel, s.Turns, s.UpdatedAt.Format(time.DateTime))
				}
				return tw.Flush()
			}

			turns, err := a.store.Turns(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("loading turns: %w", err)
			}
			if asJSON {
				return writeJSON(out, turns)
			}
			for _, t := range turns {
				fmt.Fprintf(out, "[%s] %s (%d iterations)\n> %s\n%s\n\n",
					t.CreatedAt.Format(time.DateTime), t.Model, t.Iterations, t.Message, t.Output)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of sessions to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
