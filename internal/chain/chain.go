// Package chain implements the two model calls summa is built around:
// summarizing text and translating it. Each call renders a prompt template,
// sends it as a single user message and returns the reply text.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"summa/internal/llm"
	"summa/internal/prompt"
	"summa/internal/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const DefaultLanguage = "Spanish"

var ErrEmptyInput = errors.New("input text is empty")

type Option func(*Chain)

func WithLanguage(lang string) Option {
	return func(c *Chain) {
		if lang != "" {
			c.language = lang
		}
	}
}

// WithTokenSink receives streamed reply deltas from every call.
func WithTokenSink(fn func(string)) Option {
	return func(c *Chain) { c.onToken = fn }
}

type Chain struct {
	provider llm.Provider
	prompts  *prompt.Set
	language string
	onToken  func(string)
}

// Result holds both stages of SummarizeAndTranslate.
type Result struct {
	Summary     string `json:"summary"`
	Translation string `json:"translation"`
}

func New(provider llm.Provider, prompts *prompt.Set, opts ...Option) *Chain {
	if prompts == nil {
		prompts = prompt.DefaultSet()
	}
	c := &Chain{
		provider: provider,
		prompts:  prompts,
		language: DefaultLanguage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) Language() string { return c.language }

func (c *Chain) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	p, err := c.prompts.Summarize.Format(map[string]any{"text": text})
	if err != nil {
		return "", err
	}
	return c.call(ctx, "chain.summarize", p, attribute.Int("input.length", len(text)))
}

func (c *Chain) Translate(ctx context.Context, text string) (string, error) {
	return c.TranslateTo(ctx, text, c.language)
}

func (c *Chain) TranslateTo(ctx context.Context, text, language string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	if language == "" {
		language = c.language
	}
	p, err := c.prompts.Translate.Format(map[string]any{"text": text, "language": language})
	if err != nil {
		return "", err
	}
	return c.call(ctx, "chain.translate", p,
		attribute.Int("input.length", len(text)),
		attribute.String("translate.language", language),
	)
}

// SummarizeAndTranslate summarizes text and then translates the summary.
func (c *Chain) SummarizeAndTranslate(ctx context.Context, text string) (*Result, error) {
	summary, err := c.Summarize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("summarizing: %w", err)
	}
	translation, err := c.Translate(ctx, summary)
	if err != nil {
		return nil, fmt.Errorf("translating summary: %w", err)
	}
	return &Result{Summary: summary, Translation: translation}, nil
}

func (c *Chain) call(ctx context.Context, name, p string, attrs ...attribute.KeyValue) (string, error) {
	ctx, span := trace.Tracer().Start(ctx, name, oteltrace.WithAttributes(attrs...))
	defer span.End()

	slog.Debug(name+": calling model", "prompt_len", len(p))

	out, resp, err := llm.Complete(ctx, c.provider, p, c.onToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn(name+": failed", "error", err)
		return "", err
	}

	span.SetAttributes(
		attribute.String("llm.model", string(resp.Model)),
		attribute.Int64("llm.input_tokens", resp.Usage.InputTokens),
		attribute.Int64("llm.output_tokens", resp.Usage.OutputTokens),
		attribute.Int("output.length", len(out)),
	)
	slog.Debug(name+": done", "output_len", len(out))
	return out, nil
}
