// Package llm is the boundary to the reasoning backend used for plan
// synthesis. The planner only depends on the Client interface; the
// OpenAI-compatible implementation lives alongside so local gateways
// (LM Studio, vLLM, an internal proxy) can serve it unchanged.
package llm

import (
	"context"
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the minimal reasoning interface the planner needs.
type Client interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, options *SamplingOptions) (*Response, error)
}

// SamplingOptions control decoding. Seed is set by callers that need
// reproducible synthesis in tests.
type SamplingOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Seed        int64   `json:"seed"`
}

// ToolDefinition describes a function the model may call. The planner uses
// one definition per catalog action type so structured actions come back as
// tool calls rather than prose.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Response is a completed chat turn from the backend.
type Response struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls"`
}

// ToolCall is one structured function invocation emitted by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}
