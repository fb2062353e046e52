// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/openai/openai-go/v3/responses"
)

// ErrExhausted is returned when the provider runs out of scripted replies.
var ErrExhausted = errors.New("llmtest: no scripted responses left")

// Call is a function call the fake model asks for.
type Call struct {
	ID        string
	Name      string
	Arguments string
}

// Request records what the provider received on one ChatStream call.
type Request struct {
	Input []responses.ResponseInputItemUnionParam
	Tools []responses.ToolUnionParam
}

// Provider replays scripted responses in order.
type Provider struct {
	mu       sync.Mutex
	replies  []reply
	requests []Request
}

type reply struct {
	resp *responses.Response
	err  error
}

func New() *Provider {
	return &Provider{}
}

// WithText queues a reply whose only output is an assistant message.
func (p *Provider) WithText(text string) *Provider {
	return p.push(Text(text), nil)
}

// WithCalls queues a reply asking for the given function calls.
func (p *Provider) WithCalls(calls ...Call) *Provider {
	return p.push(FunctionCalls(calls...), nil)
}

// WithError queues a failing reply.
func (p *Provider) WithError(err error) *Provider {
	return p.push(nil, err)
}

// WithResponse queues an arbitrary response.
func (p *Provider) WithResponse(resp *responses.Response) *Provider {
	return p.push(resp, nil)
}

// Requests returns a copy of every request seen so far.
func (p *Provider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.requests))
	copy(out, p.requests)
	return out
}

func (p *Provider) push(resp *responses.Response, err error) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, reply{resp: resp, err: err})
	return p
}

func (p *Provider) ChatStream(ctx context.Context, input []responses.ResponseInputItemUnionParam, tools []responses.ToolUnionParam, onToken func(string)) (*responses.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.requests = append(p.requests, Request{Input: input, Tools: tools})
	if len(p.replies) == 0 {
		p.mu.Unlock()
		return nil, ErrExhausted
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	p.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	if onToken != nil {
		for _, item := range r.resp.Output {
			if item.Type != "message" {
				continue
			}
			for _, c := range item.AsMessage().Content {
				if c.Type == "output_text" {
					onToken(c.AsOutputText().Text)
				}
			}
		}
	}
	return r.resp, nil
}

// Text builds a completed response holding a single assistant message.
func Text(text string) *responses.Response {
	return build([]map[string]any{{
		"type":   "message",
		"id":     "msg_1",
		"role":   "assistant",
		"status": "completed",
		"content": []map[string]any{{
			"type":        "output_text",
			"text":        text,
			"annotations": []any{},
		}},
	}})
}

// FunctionCalls builds a completed response asking for the given calls.
func FunctionCalls(calls ...Call) *responses.Response {
	items := make([]map[string]any, 0, len(calls))
	for i, c := range calls {
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i+1)
		}
		items = append(items, map[string]any{
			"type":      "function_call",
			"id":        fmt.Sprintf("fc_%d", i+1),
			"call_id":   id,
			"name":      c.Name,
			"arguments": c.Arguments,
			"status":    "completed",
		})
	}
	return build(items)
}

func build(output []map[string]any) *responses.Response {
	raw, err := json.Marshal(map[string]any{
		"id":         "resp_test",
		"object":     "response",
		"created_at": 0,
		"model":      "gpt-test",
		"status":     "completed",
		"output":     output,
		"usage": map[string]any{
			"input_tokens":  10,
			"output_tokens": 5,
			"total_tokens":  15,
		},
	})
	if err != nil {
		panic(err)
	}
	var resp responses.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		panic(err)
	}
	return &resp
}
