package agent

import (
	"context"

	"summa/internal/chain"
)

// ChainRunner runs summarize-then-translate directly, without letting the
// model pick tools. It emits the same events as ReactRunner.
type ChainRunner struct {
	chain *chain.Chain
}

func NewChainRunner(c *chain.Chain) *ChainRunner {
	return &ChainRunner{chain: c}
}

func (r *ChainRunner) Run(ctx context.Context, sessionID string, message string, emit func(Event)) error {
	if emit == nil {
		emit = noopEmit
	}

	summary, err := r.step(ctx, "summarize", message, r.chain.Summarize, emit)
	if err != nil {
		return err
	}
	translation, err := r.step(ctx, "translate", summary, r.chain.Translate, emit)
	if err != nil {
		return err
	}

	emit(Event{Type: EventDone, Data: translation})
	return nil
}

func (r *ChainRunner) step(ctx context.Context, name, input string, fn func(context.Context, string) (string, error), emit func(Event)) (string, error) {
	emit(Event{Type: EventToolCall, Data: map[string]string{"name": name}})
	out, err := fn(ctx, input)
	if err != nil {
		emit(Event{Type: EventError, Data: err.Error()})
		return "", err
	}
	emit(Event{Type: EventToolResult, Data: map[string]string{"name": name, "content": out}})
	return out, nil
}
