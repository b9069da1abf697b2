package openai

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/poiesic/minutes/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrNoChoices is returned when the backend answers without any completion.
var ErrNoChoices = errors.New("model returned no choices")

// AnswerModel implements ai.AnswerModel using an OpenAI-compatible chat API.
type AnswerModel struct {
	client llms.Model
	model  string
	logger *slog.Logger
}

var _ ai.AnswerModel = (*AnswerModel)(nil)

func newAnswerModel(config *ai.Config) (*AnswerModel, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.AnswerHost),
		openai.WithToken(token(config)),
		openai.WithModel(config.AnswerModel),
	)
	if err != nil {
		return nil, err
	}

	return &AnswerModel{
		client: client,
		model:  config.AnswerModel,
		logger: slog.Default().With("component", "openai-answer"),
	}, nil
}

// NewAnswerModel creates a new answer model using the provided configuration.
func NewAnswerModel(config *ai.Config) (ai.AnswerModel, error) {
	return newAnswerModel(config)
}

// Generate sends the prompt as a single user message.
func (m *AnswerModel) Generate(ctx context.Context, prompt string, opts ai.GenerateOptions) (*ai.Generation, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	model := opts.Model
	if model == "" {
		model = m.model
	}
	callOpts := []llms.CallOption{
		llms.WithModel(model),
		llms.WithTemperature(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	if len(opts.Stop) > 0 {
		callOpts = append(callOpts, llms.WithStopWords(opts.Stop))
	}

	m.logger.Debug("generating answer", "model", model, "promptLength", len(prompt))
	response, err := m.client.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		m.logger.Error("failed to generate content", "model", model, "err", err)
		return nil, err
	}
	if len(response.Choices) < 1 {
		return nil, ErrNoChoices
	}

	choice := response.Choices[0]
	gen := &ai.Generation{
		Text:         strings.TrimSpace(choice.Content),
		FinishReason: choice.StopReason,
		Usage: ai.Usage{
			PromptTokens:     intInfo(choice.GenerationInfo, "PromptTokens"),
			CompletionTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
			TotalTokens:      intInfo(choice.GenerationInfo, "TotalTokens"),
		},
	}
	m.logger.Debug("answer generated",
		"finishReason", gen.FinishReason,
		"promptTokens", gen.Usage.PromptTokens,
		"completionTokens", gen.Usage.CompletionTokens)
	return gen, nil
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
