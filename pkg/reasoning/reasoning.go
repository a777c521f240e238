// Package reasoning provides the chat-completion interface the turn
// orchestrator talks to. A provider receives conversation history plus
// the enumerated tool schema and answers with either assistant text or
// a structured tool-call list.
//
// Works with any OpenAI-compatible API (OpenAI, Ollama, vLLM, Together,
// Groq, etc.) via Client, or with Mock in tests.
//
// Example usage:
//
//	engine, _ := reasoning.NewClient(
//	    reasoning.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    reasoning.WithModel("gpt-4o"),
//	)
//	defer engine.Close()
//
//	resp, _ := engine.Chat(ctx, &reasoning.ChatRequest{
//	    Messages: history,
//	    Tools:    toolSchema,
//	})
package reasoning

import "context"

// Provider is the reasoning engine contract.
type Provider interface {
	// Chat generates a response from a sequence of messages.
	// The response carries either text content or tool calls.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// ChatRequest for chat completions.
type ChatRequest struct {
	// Messages is the conversation history.
	Messages []Message

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature float64

	// Tools available for the model to call.
	Tools []Tool

	// ToolChoice controls tool use: "auto", "none", "required".
	ToolChoice string
}

// ChatResponse from chat completion.
type ChatResponse struct {
	// Message is the assistant's response. When the model decided to
	// invoke tools, Message.ToolCalls is non-empty and Content may be "".
	Message Message

	// FinishReason indicates why generation stopped (stop, tool_calls, length).
	FinishReason string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// HasToolCalls reports whether the model requested tool invocations.
func (r *ChatResponse) HasToolCalls() bool {
	return len(r.Message.ToolCalls) > 0
}

// Usage tracks token consumption for billing and limits.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
