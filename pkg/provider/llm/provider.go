// Package llm defines the text completion interface used for translation and
// other single-shot prompts. Implementations must be safe for concurrent use.
package llm

import "context"

// Request is a single-turn completion.
type Request struct {
	// System is the instruction prompt. Optional.
	System string

	// Prompt is the user content to complete.
	Prompt string

	// Temperature controls randomness; zero leaves the backend default.
	Temperature float64

	// MaxTokens caps the response length; zero leaves the backend default.
	MaxTokens int
}

// Usage reports token accounting when the backend provides it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the completion result.
type Response struct {
	Content string
	Usage   Usage
}

// Provider completes prompts.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
