package mock

import (
	"context"
	"sync"

	"github.com/poiesic/minutes/ai"
)

// DefaultAnswer is the text returned by MockAnswerModel when no GenerateFunc is set.
const DefaultAnswer = "mock answer"

// MockAnswerModel is a test double for ai.AnswerModel.
type MockAnswerModel struct {
	// GenerateFunc is called by Generate if set.
	GenerateFunc func(ctx context.Context, prompt string, opts ai.GenerateOptions) (*ai.Generation, error)

	mu        sync.Mutex
	callCount int
	prompts   []string
	options   []ai.GenerateOptions
}

// NewMockAnswerModel creates a mock answer model returning DefaultAnswer.
func NewMockAnswerModel() *MockAnswerModel {
	return &MockAnswerModel{}
}

// Generate records the prompt and returns GenerateFunc's result or DefaultAnswer.
func (m *MockAnswerModel) Generate(ctx context.Context, prompt string, opts ai.GenerateOptions) (*ai.Generation, error) {
	m.mu.Lock()
	m.callCount++
	m.prompts = append(m.prompts, prompt)
	m.options = append(m.options, opts)
	m.mu.Unlock()

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, opts)
	}
	return &ai.Generation{
		Text:         DefaultAnswer,
		FinishReason: "stop",
		Usage:        ai.Usage{PromptTokens: len(prompt) / 4, CompletionTokens: 2, TotalTokens: len(prompt)/4 + 2},
	}, nil
}

// CallCount returns the number of Generate calls.
func (m *MockAnswerModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Prompts returns every prompt received, in call order.
func (m *MockAnswerModel) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Options returns the options of every call, in call order.
func (m *MockAnswerModel) Options() []ai.GenerateOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ai.GenerateOptions(nil), m.options...)
}

// Reset clears recorded calls and the injected function.
func (m *MockAnswerModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.prompts = nil
	m.options = nil
	m.GenerateFunc = nil
}
