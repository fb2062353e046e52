package main

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"summa/internal/agent"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		sessionID     string
		maxIterations int
		direct        bool
		quiet         bool
	)

	cmd := &cobra.Command{
		Use:   "run <message...>",
		Short: "Run the agent on a request, e.g. \"summarize and translate: ...\"",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, appOptions{withStore: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			var runner agent.Runner = a.runner(maxIterations)
			if direct {
				runner = agent.NewChainRunner(a.chain)
			}

			stderr := cmd.ErrOrStderr()
			if quiet {
				stderr = io.Discard
			}
			fmt.Fprintf(stderr, "session %s\n", sessionID)

			var output string
			ctx = agent.ContextWithChannel(ctx, "cli")
			err = runner.Run(ctx, sessionID, strings.Join(args, " "), func(ev agent.Event) {
				printEvent(stderr, ev)
				if ev.Type == agent.EventDone {
					output, _ = ev.Data.(string)
				}
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to continue (default: new session)")
	cmd.Flags().IntVarP(&maxIterations, "max-iterations", "n", 0, "agent iteration cap (default from config)")
	cmd.Flags().BoolVar(&direct, "direct", false, "summarize then translate without letting the model choose tools")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print tool activity")
	return cmd
}

// printEvent writes tool activity for a human watching stderr.
func printEvent(w io.Writer, ev agent.Event) {
	switch ev.Type {
	case agent.EventToolCall:
		if m, ok := ev.Data.(map[string]string); ok {
			fmt.Fprintf(w, "→ %s %s\n", m["name"], m["arguments"])
		}
	case agent.EventToolResult:
		if m, ok := ev.Data.(map[string]string); ok {
			fmt.Fprintf(w, "← %s: %s\n", m["name"], oneLine(m["content"], 120))
		}
	case agent.EventError:
		fmt.Fprintf(w, "error: %v\n", ev.Data)
	}
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "…"
	}
	return s
}
