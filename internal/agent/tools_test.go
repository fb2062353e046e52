package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	name string
	fn   func(ctx context.Context, input string) (string, error)
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake " + f.name }

func (f *fakeTool) InputSchema() any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required":             []string{"text"},
		"additionalProperties": false,
	}
}

func (f *fakeTool) Execute(ctx context.Context, input string) (string, error) {
	return f.fn(ctx, input)
}

func echoTool(name string) *fakeTool {
	return &fakeTool{name: name, fn: func(_ context.Context, input string) (string, error) {
		var args struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(input), &args); err != nil {
			return "", err
		}
		return name + ": " + args.Text, nil
	}}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(echoTool("translate"), echoTool("summarize"))
	assert.Equal(t, 2, r.Len())

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "summarize", all[0].Name())
	assert.Equal(t, "translate", all[1].Name())

	replacement := echoTool("summarize")
	r.Register(replacement)
	got, ok := r.Get("summarize")
	require.True(t, ok)
	assert.Same(t, replacement, got)

	_, ok = r.Get("web")
	assert.False(t, ok)
}

func TestRegistryScope(t *testing.T) {
	r := NewRegistry(echoTool("summarize"), echoTool("translate"), echoTool("web"))

	assert.Same(t, r, r.Scope(nil))

	scoped := r.Scope([]string{"translate", "missing"})
	assert.Equal(t, 1, scoped.Len())
	_, ok := scoped.Get("translate")
	assert.True(t, ok)
}

func TestDefinitions(t *testing.T) {
	defs := NewRegistry(echoTool("summarize")).Definitions()
	require.Len(t, defs, 1)

	fn := defs[0].OfFunction
	require.NotNil(t, fn)
	assert.Equal(t, "summarize", fn.Name)
	assert.Equal(t, "fake summarize", fn.Description.Value)
	assert.True(t, fn.Strict.Value)
	assert.Equal(t, false, fn.Parameters["additionalProperties"])
}
