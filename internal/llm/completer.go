package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("llm: empty response")

// CompletionRequest is a single-prompt text completion.
type CompletionRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
	// JSON asks the provider to constrain output to a JSON document.
	JSON bool
}

// Completer turns a prompt into generated text.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
