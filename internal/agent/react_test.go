package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"summa/internal/chain"
	"summa/internal/llm/llmtest"

	"github.com/openai/openai-go/v3/responses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type memStore struct {
	sessions map[string]string
	turns    map[string][]*responses.Response
	messages map[string][]string
}

func newMemStore() *memStore {
	return &memStore{
		sessions: map[string]string{},
		turns:    map[string][]*responses.Response{},
		messages: map[string][]string{},
	}
}

func (m *memStore) EnsureSession(_ context.Context, id, channel string) error {
	m.sessions[id] = channel
	return nil
}

func (m *memStore) SaveTurn(_ context.Context, id, msg string, resp *responses.Response, _ int) error {
	m.messages[id] = append(m.messages[id], msg)
	m.turns[id] = append(m.turns[id], resp)
	return nil
}

func (m *memStore) LoadInputHistory(_ context.Context, id string) ([]responses.ResponseInputItemUnionParam, error) {
	var items []responses.ResponseInputItemUnionParam
	for _, msg := range m.messages[id] {
		items = append(items, responses.ResponseInputItemParamOfMessage(msg, "user"))
	}
	return items, nil
}

func marshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func newRegistry() *Registry {
	return NewRegistry(echoTool("summarize"), echoTool("translate"))
}

func TestRunDirectAnswer(t *testing.T) {
	p := llmtest.New().WithText("Hola")
	r := NewReactRunner(p, nil, newRegistry())
	rec := &recorder{}

	res, err := r.RunResult(context.Background(), "s1", "Say hi in Spanish", rec.emit)
	require.NoError(t, err)
	assert.Equal(t, "Hola", res.Output)
	assert.Equal(t, 1, res.Iterations)
	assert.Empty(t, res.ToolCalls)

	done := rec.ofType(EventDone)
	require.Len(t, done, 1)
	assert.Equal(t, "Hola", done[0].Data)
	assert.NotEmpty(t, rec.ofType(EventToken))

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Tools, 2)
	assert.Len(t, reqs[0].Input, 2)
}

func TestRunSummarizeThenTranslate(t *testing.T) {
	p := llmtest.New().
		WithCalls(llmtest.Call{ID: "c1", Name: "summarize", Arguments: `{"text":"long text"}`}).
		WithCalls(llmtest.Call{ID: "c2", Name: "translate", Arguments: `{"text":"short"}`}).
		WithText("resumen corto")
	r := NewReactRunner(p, nil, newRegistry())
	rec := &recorder{}

	res, err := r.RunResult(context.Background(), "", "Summarize and translate: long text", rec.emit)
	require.NoError(t, err)
	assert.Equal(t, "resumen corto", res.Output)
	assert.Equal(t, 3, res.Iterations)
	require.Len(t, res.ToolCalls, 2)
	assert.Equal(t, ToolCallRecord{Name: "summarize", Arguments: `{"text":"long text"}`, Result: "summarize: long text"}, res.ToolCalls[0])
	assert.Equal(t, "translate: short", res.ToolCalls[1].Result)

	assert.Len(t, rec.ofType(EventToolCall), 2)
	assert.Len(t, rec.ofType(EventToolResult), 2)

	reqs := p.Requests()
	require.Len(t, reqs, 3)
	// system + user, then function_call + function_call_output per step.
	assert.Len(t, reqs[1].Input, 4)
	assert.Len(t, reqs[2].Input, 6)
	out := marshal(t, reqs[1].Input[3])
	assert.Contains(t, out, `"call_id":"c1"`)
	assert.Contains(t, out, "summarize: long text")
}

func TestRunParallelCallsKeepOrder(t *testing.T) {
	p := llmtest.New().
		WithCalls(
			llmtest.Call{ID: "a", Name: "summarize", Arguments: `{"text":"one"}`},
			llmtest.Call{ID: "b", Name: "translate", Arguments: `{"text":"two"}`},
		).
		WithText("done")
	r := NewReactRunner(p, nil, newRegistry())

	res, err := r.RunResult(context.Background(), "", "go", nil)
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 2)
	assert.Equal(t, "summarize", res.ToolCalls[0].Name)
	assert.Equal(t, "translate", res.ToolCalls[1].Name)

	second := p.Requests()[1].Input
	require.Len(t, second, 6)
	assert.Contains(t, marshal(t, second[4]), `"call_id":"a"`)
	assert.Contains(t, marshal(t, second[5]), `"call_id":"b"`)
}

func TestRunToolErrorsAreFedBack(t *testing.T) {
	failing := &fakeTool{name: "translate", fn: func(context.Context, string) (string, error) {
		return "", errors.New("quota exceeded")
	}}
	p := llmtest.New().
		WithCalls(
			llmtest.Call{ID: "x", Name: "translate", Arguments: `{"text":"a"}`},
			llmtest.Call{ID: "y", Name: "poem", Arguments: `{}`},
		).
		WithText("sorry")
	r := NewReactRunner(p, nil, NewRegistry(failing))

	res, err := r.RunResult(context.Background(), "", "go", nil)
	require.NoError(t, err)
	require.Len(t, res.ToolCalls, 2)
	assert.True(t, res.ToolCalls[0].IsError)
	assert.Equal(t, "error: quota exceeded", res.ToolCalls[0].Result)
	assert.True(t, res.ToolCalls[1].IsError)
	assert.Equal(t, "error: unknown tool poem", res.ToolCalls[1].Result)

	assert.Contains(t, marshal(t, p.Requests()[1].Input[4]), "quota exceeded")
}

func TestRunIterationCap(t *testing.T) {
	p := llmtest.New()
	for i := 0; i < 3; i++ {
		p.WithCalls(llmtest.Call{Name: "summarize", Arguments: `{"text":"again"}`})
	}
	r := NewReactRunner(p, nil, newRegistry(), WithMaxIterations(2))
	rec := &recorder{}

	res, err := r.RunResult(context.Background(), "", "loop forever", rec.emit)
	require.ErrorIs(t, err, ErrMaxIterations)
	assert.Equal(t, 2, res.Iterations)
	assert.Len(t, p.Requests(), 2)
	// calls from the last allowed iteration are not executed
	assert.Len(t, res.ToolCalls, 1)
	assert.Len(t, rec.ofType(EventToolResult), 1)
	assert.Len(t, rec.ofType(EventError), 1)
	assert.Empty(t, rec.ofType(EventDone))
}

func TestRunRejectsBlankMessage(t *testing.T) {
	store := newMemStore()
	p := llmtest.New().WithText("whatever")
	rec := &recorder{}

	_, err := NewReactRunner(p, store, newRegistry()).RunResult(context.Background(), "s1", "  \n ", rec.emit)
	require.ErrorIs(t, err, chain.ErrEmptyInput)
	assert.Empty(t, p.Requests())
	assert.Empty(t, store.sessions)
	assert.Empty(t, store.messages)
	assert.Len(t, rec.ofType(EventError), 1)
}

func TestRunProviderError(t *testing.T) {
	boom := errors.New("503")
	p := llmtest.New().WithError(boom)
	rec := &recorder{}

	err := NewReactRunner(p, nil, newRegistry()).Run(context.Background(), "", "hi", rec.emit)
	require.ErrorIs(t, err, boom)
	require.Len(t, rec.ofType(EventError), 1)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := llmtest.New().WithText("never")
	err := NewReactRunner(p, nil, newRegistry()).Run(ctx, "", "hi", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, p.Requests())
}

func TestRunPersistsAndRecalls(t *testing.T) {
	store := newMemStore()
	p := llmtest.New().WithText("first reply").WithText("second reply")
	r := NewReactRunner(p, store, newRegistry(), WithSystemPrompt("be brief"))

	ctx := ContextWithChannel(context.Background(), "cli")
	require.NoError(t, r.Run(ctx, "s1", "first", nil))
	require.NoError(t, r.Run(ctx, "s1", "second", nil))

	assert.Equal(t, "cli", store.sessions["s1"])
	assert.Equal(t, []string{"first", "second"}, store.messages["s1"])

	reqs := p.Requests()
	require.Len(t, reqs, 2)
	// recalled user message, system prompt, new user message
	require.Len(t, reqs[1].Input, 3)
	assert.Equal(t, "first", reqs[1].Input[0].OfMessage.Content.OfString.Value)
	assert.Equal(t, "be brief", reqs[1].Input[1].OfMessage.Content.OfString.Value)
}

func TestDefaultSystemPrompt(t *testing.T) {
	assert.Contains(t, DefaultSystemPrompt("Spanish"), "translate text to Spanish")
}

func TestChainRunner(t *testing.T) {
	p := llmtest.New().WithText("short").WithText("corto")
	rec := &recorder{}

	err := NewChainRunner(chain.New(p, nil)).Run(context.Background(), "", "a long text", rec.emit)
	require.NoError(t, err)

	done := rec.ofType(EventDone)
	require.Len(t, done, 1)
	assert.Equal(t, "corto", done[0].Data)
	assert.Len(t, rec.ofType(EventToolResult), 2)
}

func TestChainRunnerEmptyInput(t *testing.T) {
	rec := &recorder{}
	err := NewChainRunner(chain.New(llmtest.New(), nil)).Run(context.Background(), "", " ", rec.emit)
	require.ErrorIs(t, err, chain.ErrEmptyInput)
	assert.Len(t, rec.ofType(EventError), 1)
}
