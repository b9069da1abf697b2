// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ai

import (
	"errors"
	"strings"
)

// Backend selects which provider implementation serves the Config.
type Backend string

const (
	// BackendOpenAI talks to any OpenAI-compatible endpoint.
	BackendOpenAI Backend = "openai"
	// BackendOllama talks to the native Ollama API.
	BackendOllama Backend = "ollama"
)

// Config holds configuration for AI services.
type Config struct {
	// Backend selects the provider implementation.
	// Default: BackendOpenAI
	Backend Backend

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// AnswerHost is the base URL for the text generation service API.
	AnswerHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "all-minilm", "text-embedding-3-small"
	EmbeddingModel string

	// AnswerModel is the model identifier used to answer questions.
	// Example: "llama3.2", "gpt-4o-mini"
	AnswerModel string

	// APIKey is sent as the bearer token. Local servers accept any value.
	APIKey string

	// Dimensions is the vector length produced by EmbeddingModel.
	// Default: 384
	Dimensions int

	// Temperature is the default sampling temperature for answers.
	Temperature float64

	// MaxTokens caps answer length. Zero means the backend default.
	MaxTokens int

	// Stop lists default stop sequences for answers.
	Stop []string
}

// ConfigOption is a functional option for configuring AI services.
type ConfigOption func(*Config)

// WithBackend selects the provider implementation.
func WithBackend(backend Backend) ConfigOption {
	return func(c *Config) {
		c.Backend = backend
	}
}

// WithEmbeddingHost sets the embedding service host.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithAnswerHost sets the text generation service host.
func WithAnswerHost(host string) ConfigOption {
	return func(c *Config) {
		c.AnswerHost = host
	}
}

// WithHost sets both hosts to the same value.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.AnswerHost = host
	}
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithAnswerModel sets the answer model.
func WithAnswerModel(model string) ConfigOption {
	return func(c *Config) {
		c.AnswerModel = model
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithDimensions sets the expected embedding dimension.
func WithDimensions(dim int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dim
	}
}

// WithTemperature sets the default answer temperature.
func WithTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = t
	}
}

// WithMaxTokens sets the default answer length cap.
func WithMaxTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxTokens = n
	}
}

// WithStop sets the default stop sequences.
func WithStop(stop ...string) ConfigOption {
	return func(c *Config) {
		c.Stop = stop
	}
}

// DefaultConfig returns a Config for a local Ollama server through its
// OpenAI-compatible endpoint.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		Backend:        BackendOpenAI,
		EmbeddingHost:  defaultHost,
		AnswerHost:     defaultHost,
		EmbeddingModel: "all-minilm",
		AnswerModel:    "llama3.2",
		APIKey:         "none",
		Dimensions:     384,
		Temperature:    0.2,
		MaxTokens:      1024,
	}
}

// NewConfig creates a new Config with the given options applied to defaults.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// GenerateOptions returns the configured default generation options.
func (c *Config) GenerateOptions() GenerateOptions {
	return GenerateOptions{
		Model:       c.AnswerModel,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Stop:        c.Stop,
	}
}

// Normalize adjusts host URLs for the selected backend. OpenAI-compatible
// hosts need a /v1 suffix; the native Ollama client must not have one.
func (c *Config) Normalize() {
	if c.Backend == "" {
		c.Backend = BackendOpenAI
	}
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost, c.Backend)
	c.AnswerHost = normalizeHost(c.AnswerHost, c.Backend)
}

func normalizeHost(host string, backend Backend) string {
	if host == "" {
		return host
	}
	host = strings.TrimSuffix(host, "/")
	switch backend {
	case BackendOllama:
		return strings.TrimSuffix(host, "/v1")
	default:
		if !strings.HasSuffix(host, "/v1") {
			return host + "/v1"
		}
		return host
	}
}

// Validate normalizes the config and checks required fields.
func (c *Config) Validate() error {
	c.Normalize()

	if c.Backend != BackendOpenAI && c.Backend != BackendOllama {
		return errors.New("ai config: Backend must be openai or ollama")
	}
	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.AnswerHost == "" {
		return errors.New("ai config: AnswerHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.AnswerModel == "" {
		return errors.New("ai config: AnswerModel is required")
	}
	if c.Dimensions <= 0 {
		return errors.New("ai config: Dimensions must be greater than 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("ai config: Temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		return errors.New("ai config: MaxTokens cannot be negative")
	}
	return nil
}
