package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerateOptions are per-call generation settings.
// Zero values fall back to the backend default.
type GenerateOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// Usage reports token counts for one generation.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Generation is the result of AnswerModel.Generate.
type Generation struct {
	Text string
	// FinishReason is empty when the backend does not report one.
	FinishReason string
	Usage        Usage
}

// AnswerModel generates text from a single prompt.
// Implementations must be thread-safe for concurrent use.
type AnswerModel interface {
	// Generate sends the prompt to the model and returns the full response.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Generation, error)
}

// AIProvider aggregates AI services for convenient initialization.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// AnswerModel returns the text generation service.
	// The returned AnswerModel is safe for concurrent use.
	AnswerModel() AnswerModel

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
