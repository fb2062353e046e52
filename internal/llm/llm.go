package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3/responses"
)

// ErrEmptyResponse is returned when the model replies without any text.
var ErrEmptyResponse = errors.New("llm: empty response")

// ErrIncompleteResponse is returned when the model stops early, for example
// on max_output_tokens.
var ErrIncompleteResponse = errors.New("llm: incomplete response")

type Provider interface {
	ChatStream(ctx context.Context, input []responses.ResponseInputItemUnionParam, tools []responses.ToolUnionParam, onToken func(string)) (*responses.Response, error)
}

// OutputText joins the text parts of every message item in resp.
func OutputText(resp *responses.Response) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		msg := item.AsMessage()
		for _, c := range msg.Content {
			if c.Type == "output_text" {
				b.WriteString(c.AsOutputText().Text)
			}
		}
	}
	return b.String()
}

// Complete sends prompt as a single user message with no tools and returns
// the text of the reply.
func Complete(ctx context.Context, p Provider, prompt string, onToken func(string)) (string, *responses.Response, error) {
	if onToken == nil {
		onToken = func(string) {}
	}

	input := []responses.ResponseInputItemUnionParam{
		responses.ResponseInputItemParamOfMessage(prompt, "user"),
	}

	resp, err := p.ChatStream(ctx, input, nil, onToken)
	if err != nil {
		return "", nil, fmt.Errorf("completing prompt: %w", err)
	}

	text := strings.TrimSpace(OutputText(resp))
	if text == "" {
		return "", resp, ErrEmptyResponse
	}
	return text, resp, nil
}
