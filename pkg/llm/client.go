// Package llm streams tool-calling completions from the configured model
// provider. Providers share one chunk-channel interface so the generation
// pipeline never sees wire formats.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Supported provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
)

// ErrNoCredential indicates the selected provider has no API key configured.
var ErrNoCredential = errors.New("provider API key not configured")

// Role of one conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Message is one turn of provider conversation input. Assistant turns may
// carry tool calls; tool turns answer one call identified by ToolID.
type Message struct {
	Role      Role
	Content   string
	ToolCalls []ToolCall
	ToolID    string
}

// ToolDefinition describes one callable tool advertised to the model.
// InputSchema is a JSON Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// StreamChunk is one unit of streamed model output. Exactly one of Content
// and ToolCall is set on intermediate chunks; the final chunk of a step has
// Done set.
type StreamChunk struct {
	Content    string
	ToolCall   *ToolCall
	Done       bool
	StopReason string
}

// Request is one streaming completion step.
type Request struct {
	System    string
	Messages  []Message
	Tools     []ToolDefinition
	MaxTokens int64
}

// Client streams completions from one provider.
type Client interface {
	// GenerateStream starts one completion step. Chunks arrive on the
	// first channel; a terminal failure arrives on the second. Both close
	// when the step ends.
	GenerateStream(ctx context.Context, req *Request) (<-chan StreamChunk, <-chan error)
	// Model returns the model identifier in use.
	Model() string
}

// NewClient builds a provider client. An empty model selects the
// provider's default.
func NewClient(provider, apiKey, model string) (Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoCredential, provider)
	}
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey, model), nil
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey, model), nil
	case ProviderGoogle:
		return nil, fmt.Errorf("provider %q is not yet supported", provider)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}
