package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// readInput returns the contents of the file named by args[0], or stdin
// when there is no argument or it is "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	var (
		b   []byte
		err error
	)
	if len(args) == 0 || args[0] == "-" {
		b, err = io.ReadAll(cmd.InOrStdin())
	} else {
		b, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", errors.New("no input text")
	}
	return text, nil
}

func newSummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize [file|-]",
		Short: "Summarize text from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.chain.Summarize(cmd.Context(), text)
			if err != nil {
				return fmt.Errorf("summarizing: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newTranslateCmd() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "translate [file|-]",
		Short: "Translate text from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.chain.TranslateTo(cmd.Context(), text, lang)
			if err != nil {
				return fmt.Errorf("translating: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "target language (default from config, Spanish)")
	return cmd
}

func newChainCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "chain [file|-]",
		Short: "Summarize text and translate the summary, without the agent",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.chain.SummarizeAndTranslate(cmd.Context(), text)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, res)
			}
			fmt.Fprintf(out, "Summary:\n%s\n\n%s:\n%s\n", res.Summary, a.chain.Language(), res.Translation)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
