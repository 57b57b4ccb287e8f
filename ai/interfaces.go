package ai

import "context"

// GenerationRequest describes one LLM text-generation call.
type GenerationRequest struct {
	// Model overrides the configured generation model when non-empty.
	// Prompt templates may pin a specific model per prompt.
	Model string

	// SystemPrompt frames the task, typically from a prompt template.
	SystemPrompt string

	// UserPrompt carries the partition content and any substituted context.
	UserPrompt string

	// JSONMode requests structured JSON output from the model.
	JSONMode bool
}

// Generator produces text from an LLM given a prompt pair.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// GenerateText invokes the model once and returns the raw response text.
	// Callers are responsible for parsing; responses may contain code fences
	// or other decoration the model adds despite instructions.
	GenerateText(ctx context.Context, req GenerationRequest) (string, error)
}

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a
	// batch. The returned slice contains embeddings in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// AIProvider aggregates AI services for convenient initialization and
// lifecycle management.
type AIProvider interface {
	// Generator returns the text generation service.
	Generator() Generator

	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Close releases resources held by the provider and its services.
	Close() error
}
