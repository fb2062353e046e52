package agent

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc", truncate("abcdef", 3))

	in := strings.Repeat("a", 499) + "ñ" + "resto"
	out := truncate(in, 500)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, strings.Repeat("a", 499), out)

	assert.Equal(t, "", truncate("ñ", 1))
}

func TestTracedToolPassesThrough(t *testing.T) {
	tool := withTrace(echoTool("summarize"))
	assert.Equal(t, "summarize", tool.Name())

	text := strings.Repeat("é", 400)
	out, err := tool.Execute(context.Background(), `{"text":"`+text+`"}`)
	require.NoError(t, err)
	assert.Equal(t, "summarize: "+text, out)
}
