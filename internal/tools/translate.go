package tools

import (
	"context"
	"log/slog"
)

type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

type translateArgs struct {
	Text string `json:"text" jsonschema:"description=The text to translate" validate:"required"`
}

// Translate exposes translation into the configured language to the agent.
type Translate struct {
	t        Translator
	language string
}

func NewTranslate(t Translator, language string) *Translate {
	return &Translate{t: t, language: language}
}

func (t *Translate) Name() string { return "translate" }

func (t *Translate) Description() string {
	return "Translate a piece of text to " + t.language
}

func (t *Translate) InputSchema() any { return schemaOf(&translateArgs{}) }

func (t *Translate) Execute(ctx context.Context, input string) (string, error) {
	var args translateArgs
	if err := decode(t.Name(), input, &args); err != nil {
		return "", err
	}

	slog.Debug("translate: running", "text_len", len(args.Text), "language", t.language)
	out, err := t.t.Translate(ctx, args.Text)
	if err != nil {
		return "", err
	}
	return truncate([]byte(out)), nil
}
