package tools

import (
	"context"
	"log/slog"
)

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

type summarizeArgs struct {
	Text string `json:"text" jsonschema:"description=The text to summarize" validate:"required"`
}

// Summarize exposes the summarization call to the agent.
type Summarize struct {
	s Summarizer
}

func NewSummarize(s Summarizer) *Summarize {
	return &Summarize{s: s}
}

func (t *Summarize) Name() string        { return "summarize" }
func (t *Summarize) Description() string { return "Summarize a piece of text" }
func (t *Summarize) InputSchema() any    { return schemaOf(&summarizeArgs{}) }

func (t *Summarize) Execute(ctx context.Context, input string) (string, error) {
	var args summarizeArgs
	if err := decode(t.Name(), input, &args); err != nil {
		return "", err
	}

	slog.Debug("summarize: running", "text_len", len(args.Text))
	out, err := t.s.Summarize(ctx, args.Text)
	if err != nil {
		return "", err
	}
	return truncate([]byte(out)), nil
}
