package agent

import (
	"context"
	"errors"
)

// ErrMaxIterations is returned when the model keeps calling tools past the
// runner's iteration cap.
var ErrMaxIterations = errors.New("agent stopped after reaching the iteration limit")

type EventType string

const (
	EventToken      EventType = "token"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

type Runner interface {
	Run(ctx context.Context, sessionID string, message string, emit func(Event)) error
}

// ToolCallRecord is one tool invocation made during a run.
type ToolCallRecord struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
}

// Result is the outcome of a single agent run.
type Result struct {
	Output     string           `json:"output"`
	Iterations int              `json:"iterations"`
	ToolCalls  []ToolCallRecord `json:"tool_calls"`
}

func noopEmit(Event) {}
