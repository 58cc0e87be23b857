package ai

import (
	"context"
)

// Provider defines the contract for interacting with AI models.
// This interface allows for swapping different backends (Gemini, Ollama, etc.).
type Provider interface {
	// Chat sends a conversation and returns the full reply text.
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error)

	// StreamChat sends a conversation and delivers the reply incrementally
	// through emit. Returning an error from emit stops the stream.
	StreamChat(ctx context.Context, messages []Message, opts ChatOptions, emit func(chunk string) error) error

	// Close releases any underlying client resources.
	Close()
}
