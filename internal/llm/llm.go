// Package llm talks to chat-completion providers behind one Gateway with
// retry and a fallback provider.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyCompletion is returned when a provider answers without any choice.
var ErrEmptyCompletion = errors.New("provider returned no completion")

// Provider is one chat-completion backend.
type Provider interface {
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
}

type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

type ChatRequest struct {
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// JSON asks the provider for a JSON object response where supported.
	JSON bool `json:"json,omitempty"`
}

type ChatResponse struct {
	ID           string  `json:"id"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Content      string  `json:"content"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	LatencyMs    int64   `json:"latency_ms"`
	// Truncated is set when the provider stopped at MaxTokens.
	Truncated bool `json:"truncated,omitempty"`
}

// Config selects and configures providers. Empty keys leave a provider out.
type Config struct {
	DefaultProvider  string
	FallbackProvider string
	Model            string
	FallbackModel    string
	MaxRetries       int
	RetryBackoff     time.Duration

	OpenAIKey     string
	OpenAIBaseURL string // set for OpenAI-compatible hosts such as Groq
	AnthropicKey  string
	OllamaURL     string
}
