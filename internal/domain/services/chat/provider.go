package chat

import (
	"context"

	chatModels "prism/internal/domain/models/chat"
)

// LLMProvider defines the interface all provider adapters implement.
// One adapter serves a provider family (Anthropic, OpenAI-compatible,
// Google); the capability registry decides which family a model binds to.
type LLMProvider interface {
	// Name returns the provider family name (e.g. "anthropic", "openai").
	Name() string

	// StreamResponse starts a streaming generation. Events arrive on the
	// returned channel; the channel closes after a terminal Done or Error
	// event. The context bounds the whole generation.
	StreamResponse(ctx context.Context, req *GenerateRequest) (<-chan StreamEvent, error)

	// GenerateText performs a small non-streamed completion. Used for the
	// title-generation side call.
	GenerateText(ctx context.Context, model, system, prompt string) (string, error)
}

// GenerateRequest contains everything a provider needs for one generation.
type GenerateRequest struct {
	// Model is the bare model identifier.
	Model string

	// System is the fully composed system prompt (base + augmentations).
	System string

	// Messages is the filtered conversation history, oldest first.
	Messages []chatModels.Message

	// Tools the model may invoke this turn. Empty when the model does not
	// support tool calling or no augmentation registered one.
	Tools []ToolDefinition

	// Options are the model-specific overrides resolved from the registry.
	Options ProviderOptions
}

// ProviderOptions are per-model request overrides from the capability
// registry (never inferred from identifier strings in the pipeline).
type ProviderOptions struct {
	// MaxTokens caps the response length. Zero means adapter default.
	MaxTokens int

	// Temperature, when set, overrides the adapter default. Models that
	// reject custom temperature carry a forced value here.
	Temperature *float64

	// ThinkingBudget, when set, enables extended thinking with the given
	// token budget.
	ThinkingBudget *int
}

// ToolDefinition describes a tool exposed to the model for one turn.
// Execute runs the tool; its result is fed back to the model on the next
// round.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Execute     func(ctx context.Context, input map[string]interface{}) (string, error)
}

// Stream event types emitted by provider adapters.
const (
	EventText      = "text"       // incremental text
	EventReasoning = "reasoning"  // incremental reasoning
	EventSignature = "signature"  // reasoning signature for the current block
	EventToolCall  = "tool_call"  // complete tool invocation request
	EventDone      = "done"       // terminal: generation finished
	EventError     = "error"      // terminal: generation failed
)

// StreamEvent is one unit of provider output.
type StreamEvent struct {
	Type string

	// Delta holds incremental content for text/reasoning/signature events.
	Delta string

	// ToolCall is set on tool_call events.
	ToolCall *ToolCall

	// Usage and StopReason are set on the done event.
	Usage      *TokenUsage
	StopReason string

	// Err is set on the error event.
	Err error
}

// ToolCall is a complete tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// TokenUsage reports provider-side token accounting for one generation.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Stop reasons normalized across provider families.
const (
	StopReasonEndTurn   = "end_turn"
	StopReasonMaxTokens = "max_tokens"
	StopReasonToolUse   = "tool_use"
	StopReasonFilter    = "content_filter"
)
