package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"summa/internal/chain"
	"summa/internal/history"
	"summa/internal/llm"
	"summa/internal/trace"

	"github.com/openai/openai-go/v3/responses"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const DefaultMaxIterations = 5

const systemPromptTemplate = "You are an assistant that summarizes and translates text. " +
	"Use the summarize tool to summarize text and the translate tool to translate text to %s. " +
	"When asked for both, summarize first and then translate the summary. " +
	"Reply with the final result only."

// DefaultSystemPrompt returns the agent instructions for the given target language.
func DefaultSystemPrompt(language string) string {
	return fmt.Sprintf(systemPromptTemplate, language)
}

// Store persists turns so a session can continue across runs.
type Store interface {
	EnsureSession(ctx context.Context, sessionID, channel string) error
	SaveTurn(ctx context.Context, sessionID, userMessage string, resp *responses.Response, iterations int) error
	LoadInputHistory(ctx context.Context, sessionID string) ([]responses.ResponseInputItemUnionParam, error)
}

type RunnerOption func(*ReactRunner)

func WithSystemPrompt(s string) RunnerOption {
	return func(r *ReactRunner) {
		if s != "" {
			r.systemPrompt = s
		}
	}
}

func WithMaxIterations(n int) RunnerOption {
	return func(r *ReactRunner) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

// ReactRunner implements a ReAct (Reason + Act) agent loop. The model is
// called with the registered tools until it answers without tool calls or
// the iteration cap is hit.
type ReactRunner struct {
	provider      llm.Provider
	store         Store
	registry      *Registry
	tools         []responses.ToolUnionParam
	systemPrompt  string
	maxIterations int
}

// NewReactRunner builds a runner. store may be nil, in which case runs are
// not persisted and no history is recalled.
func NewReactRunner(provider llm.Provider, store Store, registry *Registry, opts ...RunnerOption) *ReactRunner {
	r := &ReactRunner{
		provider:      provider,
		store:         store,
		registry:      registry,
		systemPrompt:  DefaultSystemPrompt("Spanish"),
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.tools = registry.Definitions()
	return r
}

func (r *ReactRunner) Run(ctx context.Context, sessionID string, message string, emit func(Event)) error {
	_, err := r.RunResult(ctx, sessionID, message, emit)
	return err
}

// RunResult runs the loop and returns the final answer with a record of the
// tool calls made on the way.
func (r *ReactRunner) RunResult(ctx context.Context, sessionID string, message string, emit func(Event)) (*Result, error) {
	if emit == nil {
		emit = noopEmit
	}
	if strings.TrimSpace(message) == "" {
		emit(Event{Type: EventError, Data: chain.ErrEmptyInput.Error()})
		return &Result{}, chain.ErrEmptyInput
	}
	ctx = ContextWithSessionID(ctx, sessionID)
	ctx = ContextWithEmit(ctx, emit)

	ctx, span := trace.Tracer().Start(ctx, "agent.run",
		oteltrace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("user.message", truncate(message, 200)),
			attribute.Int("agent.max_iterations", r.maxIterations),
		),
	)
	defer span.End()

	input := r.recall(ctx, sessionID)
	input = append(input,
		responses.ResponseInputItemParamOfMessage(r.systemPrompt, "developer"),
		responses.ResponseInputItemParamOfMessage(message, "user"),
	)

	resp, res, err := r.loop(ctx, input, emit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	span.SetAttributes(
		attribute.Int("agent.iterations", res.Iterations),
		attribute.Int("agent.tool_calls", len(res.ToolCalls)),
	)

	r.persist(ctx, sessionID, message, resp, res.Iterations)

	emit(Event{Type: EventDone, Data: res.Output})
	return res, nil
}

// loop is the core cycle. Tool failures are fed back to the model as text so
// it can adapt; only provider errors, cancellation and the iteration cap end
// the run early.
func (r *ReactRunner) loop(ctx context.Context, input []responses.ResponseInputItemUnionParam, emit func(Event)) (*responses.Response, *Result, error) {
	res := &Result{}

	for res.Iterations < r.maxIterations {
		if err := ctx.Err(); err != nil {
			emit(Event{Type: EventError, Data: "request cancelled"})
			return nil, res, err
		}

		llmCtx, llmSpan := trace.Tracer().Start(ctx, "llm.call",
			oteltrace.WithAttributes(attribute.Int("llm.iteration", res.Iterations)),
		)

		resp, err := r.provider.ChatStream(llmCtx, input, r.tools, func(token string) {
			emit(Event{Type: EventToken, Data: token})
		})
		if err != nil {
			llmSpan.RecordError(err)
			llmSpan.SetStatus(codes.Error, err.Error())
			llmSpan.End()
			emit(Event{Type: EventError, Data: err.Error()})
			return nil, res, fmt.Errorf("calling model: %w", err)
		}

		llmSpan.SetAttributes(
			attribute.String("llm.model", string(resp.Model)),
			attribute.Int64("llm.input_tokens", resp.Usage.InputTokens),
			attribute.Int64("llm.output_tokens", resp.Usage.OutputTokens),
		)
		llmSpan.End()
		res.Iterations++

		input = append(input, history.OutputToInput(resp.Output)...)

		var calls []responses.ResponseFunctionToolCall
		for _, item := range resp.Output {
			if item.Type == "function_call" {
				calls = append(calls, item.AsFunctionCall())
			}
		}

		if len(calls) == 0 {
			res.Output = strings.TrimSpace(llm.OutputText(resp))
			slog.Debug("agent: finished", "iterations", res.Iterations, "tool_calls", len(res.ToolCalls))
			return resp, res, nil
		}

		if res.Iterations >= r.maxIterations {
			break
		}

		outputs, records := r.act(ctx, calls, emit)
		input = append(input, outputs...)
		res.ToolCalls = append(res.ToolCalls, records...)
	}

	slog.Warn("agent: iteration limit reached", "max_iterations", r.maxIterations)
	emit(Event{Type: EventError, Data: ErrMaxIterations.Error()})
	return nil, res, fmt.Errorf("%w (%d)", ErrMaxIterations, r.maxIterations)
}

// act executes tool calls in parallel and returns their outputs in call
// order, formatted as input items for the next turn.
func (r *ReactRunner) act(ctx context.Context, calls []responses.ResponseFunctionToolCall, emit func(Event)) ([]responses.ResponseInputItemUnionParam, []ToolCallRecord) {
	for _, fc := range calls {
		emit(Event{Type: EventToolCall, Data: map[string]string{
			"name":      fc.Name,
			"arguments": fc.Arguments,
		}})
	}

	var wg sync.WaitGroup
	outputs := make([]responses.ResponseInputItemUnionParam, len(calls))
	records := make([]ToolCallRecord, len(calls))

	for i, fc := range calls {
		wg.Add(1)
		go func(i int, fc responses.ResponseFunctionToolCall) {
			defer wg.Done()

			content, isErr := r.execute(ctx, fc)
			outputs[i] = responses.ResponseInputItemParamOfFunctionCallOutput(fc.CallID, content)
			records[i] = ToolCallRecord{
				Name:      fc.Name,
				Arguments: fc.Arguments,
				Result:    content,
				IsError:   isErr,
			}
			emit(Event{Type: EventToolResult, Data: map[string]string{
				"name":    fc.Name,
				"content": content,
			}})
		}(i, fc)
	}

	wg.Wait()
	return outputs, records
}

func (r *ReactRunner) execute(ctx context.Context, fc responses.ResponseFunctionToolCall) (string, bool) {
	tool, ok := r.registry.Get(fc.Name)
	if !ok {
		slog.Warn("unknown tool call", "name", fc.Name)
		return "error: unknown tool " + fc.Name, true
	}

	result, err := withTrace(tool).Execute(ctx, fc.Arguments)
	if err != nil {
		slog.Warn("tool execution failed", "name", fc.Name, "error", err)
		return "error: " + err.Error(), true
	}
	return result, false
}

func (r *ReactRunner) recall(ctx context.Context, sessionID string) []responses.ResponseInputItemUnionParam {
	if r.store == nil || sessionID == "" {
		return nil
	}
	if err := r.store.EnsureSession(ctx, sessionID, ChannelFromContext(ctx)); err != nil {
		slog.Warn("failed to ensure session", "session_id", sessionID, "error", err)
		return nil
	}
	items, err := r.store.LoadInputHistory(ctx, sessionID)
	if err != nil {
		slog.Warn("failed to load history", "session_id", sessionID, "error", err)
		return nil
	}
	slog.Debug("agent: history recalled", "session_id", sessionID, "items", len(items))
	return items
}

func (r *ReactRunner) persist(ctx context.Context, sessionID, message string, resp *responses.Response, iterations int) {
	if r.store == nil || sessionID == "" {
		return
	}
	if err := r.store.SaveTurn(ctx, sessionID, message, resp, iterations); err != nil {
		slog.Warn("failed to save turn", "session_id", sessionID, "error", err)
	}
}
