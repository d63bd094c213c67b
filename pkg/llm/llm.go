// Package llm defines the Provider interface for Large Language Model
// backends used by the context engine (topic detection, summarization) and
// the orchestration graph (planning, evaluation, response generation).
//
// Implementations must be safe for concurrent use. Channels returned by
// StreamCompletion are closed by the implementation when the stream ends or
// the supplied context is cancelled.
package llm

import "context"

// Message is a single entry in a conversation history.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name for multi-speaker contexts.
	Name string

	// ToolCalls contains tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call
	// this message responds to.
	ToolCallID string
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded
}

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	Name        string
	Description string

	// Parameters is the JSON Schema for the tool's arguments.
	Parameters map[string]any
}

// CompletionRequest carries everything the model needs for one response.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	Temperature  float64
	MaxTokens    int
}

// Chunk is a fragment emitted by a streaming completion. A single chunk may
// carry text, tool calls, a finish signal, or any combination.
type Chunk struct {
	Text string

	// FinishReason is set on the final chunk: "stop", "length",
	// "tool_calls", "error", or "" for non-final chunks.
	FinishReason string

	ToolCalls []ToolCall
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// StreamCompletion sends req and returns a channel of chunks. Callers
	// must drain the channel. Errors after the stream has started are
	// surfaced as a Chunk with FinishReason "error"; the error return is
	// non-nil only when the stream could not start.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}
