package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/poiesic/minutes/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := newProvider(ai.NewConfig(ai.WithHost(srv.URL+"/v1")), srv.Client())
	require.NoError(t, err)
	return p
}

func TestNewProvider_StripsV1(t *testing.T) {
	config := ai.NewConfig(ai.WithHost("http://localhost:11434/v1"))
	_, err := NewProvider(config)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434", config.EmbeddingHost)
	assert.Equal(t, ai.BackendOllama, config.Backend)
}

func TestAnswerModel_Generate(t *testing.T) {
	var got map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":             "llama3.2",
			"message":           map[string]any{"role": "assistant", "content": " Bob owns the rollout. "},
			"done":              true,
			"done_reason":       "stop",
			"prompt_eval_count": 40,
			"eval_count":        6,
		})
	})

	gen, err := p.AnswerModel().Generate(context.Background(), "Who owns the rollout?", ai.GenerateOptions{
		Temperature: 0.3,
		MaxTokens:   100,
		Stop:        []string{"###"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bob owns the rollout.", gen.Text)
	assert.Equal(t, "stop", gen.FinishReason)
	assert.Equal(t, ai.Usage{PromptTokens: 40, CompletionTokens: 6, TotalTokens: 46}, gen.Usage)

	assert.Equal(t, "llama3.2", got["model"])
	assert.Equal(t, false, got["stream"])
	options := got["options"].(map[string]any)
	assert.Equal(t, 0.3, options["temperature"])
	assert.Equal(t, float64(100), options["num_predict"])
}

func TestEmbedder_EmbedTexts(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":      "all-minilm",
			"embeddings": [][]float32{{1, 0}, {0, 1}},
		})
	})

	vectors, err := p.Embedder().EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)

	_, err = p.Embedder().EmbedText(context.Background(), "a")
	assert.ErrorIs(t, err, ErrEmbeddingCount)
}

func TestAnswerModel_ServerError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	})

	_, err := p.AnswerModel().Generate(context.Background(), "q", ai.GenerateOptions{})
	assert.Error(t, err)
}
