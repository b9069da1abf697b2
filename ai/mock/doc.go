// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.AnswerModel,
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	vec, err := mockProvider.Embedder().EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	answer := mock.NewMockAnswerModel()
//	answer.GenerateFunc = func(ctx context.Context, prompt string, opts ai.GenerateOptions) (*ai.Generation, error) {
//	    return nil, errors.New("model offline")
//	}
//
//	// Check call counts
//	count := answer.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockAnswerModel: Echoes a fixed answer and records the prompt
//   - MockProvider: Aggregates mock embedder and answer model
//
// All mocks are safe for concurrent use.
package mock
