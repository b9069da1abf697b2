// Package ollama implements ai.AIProvider against the native Ollama API.
//
// Use it when the server is Ollama and the OpenAI-compatible shim is not
// wanted, for example to pass sampling options the shim ignores.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/poiesic/minutes/ai"
)

// ErrEmbeddingCount is returned when the server answers with a different
// number of vectors than texts sent.
var ErrEmbeddingCount = errors.New("embedding count mismatch")

// Provider implements ai.AIProvider with the Ollama client.
type Provider struct {
	config   *ai.Config
	embedder *Embedder
	answer   *AnswerModel
	logger   *slog.Logger
}

var _ ai.AIProvider = (*Provider)(nil)

// NewProvider creates an Ollama-backed provider. The config backend is
// forced to ai.BackendOllama so hosts are normalized without /v1.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	return newProvider(config, http.DefaultClient)
}

func newProvider(config *ai.Config, httpClient *http.Client) (*Provider, error) {
	config.Backend = ai.BackendOllama
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedURL, err := url.Parse(config.EmbeddingHost)
	if err != nil {
		return nil, fmt.Errorf("ai config: EmbeddingHost: %w", err)
	}
	answerURL, err := url.Parse(config.AnswerHost)
	if err != nil {
		return nil, fmt.Errorf("ai config: AnswerHost: %w", err)
	}

	return &Provider{
		config: config,
		embedder: &Embedder{
			client: api.NewClient(embedURL, httpClient),
			model:  config.EmbeddingModel,
			logger: slog.Default().With("component", "ollama-embedder"),
		},
		answer: &AnswerModel{
			client: api.NewClient(answerURL, httpClient),
			model:  config.AnswerModel,
			logger: slog.Default().With("component", "ollama-answer"),
		},
		logger: slog.Default().With("component", "ollama-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// AnswerModel returns the text generation service.
func (p *Provider) AnswerModel() ai.AnswerModel {
	return p.answer
}

// Close is a no-op; the HTTP client holds no per-provider state.
func (p *Provider) Close() error {
	p.logger.Debug("closing Ollama provider")
	return nil
}

// Embedder implements ai.Embedder with the /api/embed endpoint.
type Embedder struct {
	client *api.Client
	model  string
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts embeds all texts in one request.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrEmbeddingCount, len(texts), len(resp.Embeddings))
	}
	return resp.Embeddings, nil
}

// AnswerModel implements ai.AnswerModel with a non-streaming /api/chat call.
type AnswerModel struct {
	client *api.Client
	model  string
	logger *slog.Logger
}

var _ ai.AnswerModel = (*AnswerModel)(nil)

// Generate sends the prompt as a single user message and waits for the full reply.
func (m *AnswerModel) Generate(ctx context.Context, prompt string, opts ai.GenerateOptions) (*ai.Generation, error) {
	model := opts.Model
	if model == "" {
		model = m.model
	}

	options := map[string]any{"temperature": opts.Temperature}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(opts.Stop) > 0 {
		options["stop"] = opts.Stop
	}

	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: []api.Message{{Role: "user", Content: prompt}},
		Options:  options,
		Stream:   &stream,
	}

	var (
		text strings.Builder
		last api.ChatResponse
	)
	err := m.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		last = resp
		return nil
	})
	if err != nil {
		m.logger.Error("failed to generate answer", "model", model, "err", err)
		return nil, err
	}

	return &ai.Generation{
		Text:         strings.TrimSpace(text.String()),
		FinishReason: last.DoneReason,
		Usage: ai.Usage{
			PromptTokens:     last.PromptEvalCount,
			CompletionTokens: last.EvalCount,
			TotalTokens:      last.PromptEvalCount + last.EvalCount,
		},
	}, nil
}
