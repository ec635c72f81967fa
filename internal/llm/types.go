package llm

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_ports.go -package=mocks docsage/internal/llm Embedder,Generator

import "context"

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Embedder turns texts into fixed-length float vectors.
type Embedder interface {
	// EmbedTexts generates one vector per input text, in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces an answer from chat messages, either whole or as an
// ordered, finite, non-restartable token stream.
type Generator interface {
	// Chat returns the complete generated answer.
	Chat(ctx context.Context, messages []Message) (string, error)
	// ChatStream relays generated tokens to onToken as they arrive.
	// A non-nil error from onToken aborts the stream.
	ChatStream(ctx context.Context, messages []Message, onToken func(token string) error) error
}
