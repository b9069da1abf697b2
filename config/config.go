// Package config loads the service configuration from a YAML or TOML file.
//
// Values missing from the file keep their defaults. MINUTES_* environment
// variables override the file, which lets secrets such as API keys stay out of
// it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/poiesic/minutes/ai"
	"github.com/poiesic/minutes/buffer"
	"github.com/poiesic/minutes/embedding"
	"github.com/poiesic/minutes/jobs"
	"github.com/poiesic/minutes/rag"
	"github.com/poiesic/minutes/vector/qdrant"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for files that are neither YAML nor TOML.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Vector backends.
const (
	VectorBadger = "badger"
	VectorQdrant = "qdrant"
)

// Config is the complete service configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	AI        AIConfig        `yaml:"ai" toml:"ai"`
	Vector    VectorConfig    `yaml:"vector" toml:"vector"`
	Buffer    BufferConfig    `yaml:"buffer" toml:"buffer"`
	Jobs      JobsConfig      `yaml:"jobs" toml:"jobs"`
	Embedding EmbeddingConfig `yaml:"embedding" toml:"embedding"`
	RAG       RAGConfig       `yaml:"rag" toml:"rag"`
	Prompts   PromptsConfig   `yaml:"prompts" toml:"prompts"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// DatabaseConfig locates the Badger database.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AIConfig selects the embedding and answer backends.
type AIConfig struct {
	Backend        string   `yaml:"backend" toml:"backend"`
	EmbeddingHost  string   `yaml:"embedding_host" toml:"embedding_host"`
	AnswerHost     string   `yaml:"answer_host" toml:"answer_host"`
	EmbeddingModel string   `yaml:"embedding_model" toml:"embedding_model"`
	AnswerModel    string   `yaml:"answer_model" toml:"answer_model"`
	APIKey         string   `yaml:"api_key" toml:"api_key"`
	Dimensions     int      `yaml:"dimensions" toml:"dimensions"`
	Temperature    float64  `yaml:"temperature" toml:"temperature"`
	MaxTokens      int      `yaml:"max_tokens" toml:"max_tokens"`
	Stop           []string `yaml:"stop" toml:"stop"`
}

// VectorConfig selects the vector store.
type VectorConfig struct {
	Backend    string `yaml:"backend" toml:"backend"`
	Collection string `yaml:"collection" toml:"collection"`
	OnDisk     bool   `yaml:"on_disk" toml:"on_disk"`
	QdrantHost string `yaml:"qdrant_host" toml:"qdrant_host"`
	QdrantPort int    `yaml:"qdrant_port" toml:"qdrant_port"`
	QdrantKey  string `yaml:"qdrant_api_key" toml:"qdrant_api_key"`
	QdrantTLS  bool   `yaml:"qdrant_tls" toml:"qdrant_tls"`
}

// BufferConfig mirrors buffer.Config.
type BufferConfig struct {
	MaxBufferSize int           `yaml:"max_buffer_size" toml:"max_buffer_size"`
	MaxBufferAge  time.Duration `yaml:"max_buffer_age" toml:"max_buffer_age"`
	FlushInterval time.Duration `yaml:"flush_interval" toml:"flush_interval"`
	MaxMeetings   int           `yaml:"max_meetings" toml:"max_meetings"`
}

// JobsConfig mirrors jobs.Config.
type JobsConfig struct {
	Concurrency int           `yaml:"concurrency" toml:"concurrency"`
	MaxAttempts int           `yaml:"max_attempts" toml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" toml:"base_delay"`
}

// EmbeddingConfig tunes the embedding pool and cache.
type EmbeddingConfig struct {
	PoolSize  int           `yaml:"pool_size" toml:"pool_size"`
	BatchSize int           `yaml:"batch_size" toml:"batch_size"`
	CacheSize int           `yaml:"cache_size" toml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl" toml:"cache_ttl"`
}

// RAGConfig tunes retrieval.
type RAGConfig struct {
	SearchLimit    int     `yaml:"search_limit" toml:"search_limit"`
	ScoreThreshold float32 `yaml:"score_threshold" toml:"score_threshold"`
	SourceLength   int     `yaml:"source_length" toml:"source_length"`
	SummaryEntries int     `yaml:"summary_entries" toml:"summary_entries"`
	ChunkWindow    int64   `yaml:"chunk_window_ms" toml:"chunk_window_ms"`
}

// PromptsConfig points at a directory of prompt templates.
// An empty Dir uses the built-in templates.
type PromptsConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	bufDefaults := buffer.DefaultConfig()
	jobDefaults := jobs.DefaultConfig()
	ragDefaults := rag.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{Path: "minutes.db"},
		AI: AIConfig{
			Backend:        string(aiDefaults.Backend),
			EmbeddingHost:  aiDefaults.EmbeddingHost,
			AnswerHost:     aiDefaults.AnswerHost,
			EmbeddingModel: aiDefaults.EmbeddingModel,
			AnswerModel:    aiDefaults.AnswerModel,
			APIKey:         aiDefaults.APIKey,
			Dimensions:     aiDefaults.Dimensions,
			Temperature:    aiDefaults.Temperature,
			MaxTokens:      aiDefaults.MaxTokens,
		},
		Vector: VectorConfig{
			Backend:    VectorBadger,
			Collection: ragDefaults.Collection,
			QdrantHost: "localhost",
			QdrantPort: qdrant.DefaultPort,
		},
		Buffer: BufferConfig{
			MaxBufferSize: bufDefaults.MaxBufferSize,
			MaxBufferAge:  bufDefaults.MaxBufferAge,
			FlushInterval: bufDefaults.FlushInterval,
			MaxMeetings:   bufDefaults.MaxMeetings,
		},
		Jobs: JobsConfig{
			Concurrency: jobDefaults.Concurrency,
			MaxAttempts: jobDefaults.MaxAttempts,
			BaseDelay:   jobDefaults.BaseDelay,
		},
		Embedding: EmbeddingConfig{
			PoolSize:  embedding.DefaultPoolSize,
			BatchSize: embedding.DefaultBatchSize,
			CacheSize: embedding.DefaultCacheSize,
			CacheTTL:  embedding.DefaultCacheTTL,
		},
		RAG: RAGConfig{
			SearchLimit:    ragDefaults.SearchLimit,
			SourceLength:   ragDefaults.SourceLen,
			SummaryEntries: ragDefaults.SummaryEntries,
			ChunkWindow:    ragDefaults.ChunkWindow,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. The format is chosen by file extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it is set, otherwise returns the defaults with
// environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	cfg := Default()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MINUTES_* environment variables.
func (c *Config) ApplyEnv() {
	setString(&c.Database.Path, "MINUTES_DB_PATH")
	setString(&c.AI.Backend, "MINUTES_AI_BACKEND")
	setString(&c.AI.EmbeddingHost, "MINUTES_EMBEDDING_HOST")
	setString(&c.AI.AnswerHost, "MINUTES_ANSWER_HOST")
	setString(&c.AI.EmbeddingModel, "MINUTES_EMBEDDING_MODEL")
	setString(&c.AI.AnswerModel, "MINUTES_ANSWER_MODEL")
	setString(&c.AI.APIKey, "MINUTES_API_KEY")
	setInt(&c.AI.Dimensions, "MINUTES_EMBEDDING_DIMENSIONS")
	setString(&c.Vector.Backend, "MINUTES_VECTOR_BACKEND")
	setString(&c.Vector.QdrantHost, "MINUTES_QDRANT_HOST")
	setInt(&c.Vector.QdrantPort, "MINUTES_QDRANT_PORT")
	setString(&c.Vector.QdrantKey, "MINUTES_QDRANT_API_KEY")
	setString(&c.Prompts.Dir, "MINUTES_PROMPTS_DIR")
	setString(&c.Logging.Level, "MINUTES_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database: path cannot be empty")
	}
	if err := c.AI.Validate(); err != nil {
		return fmt.Errorf("ai config: %w", err)
	}
	if err := c.Vector.Validate(); err != nil {
		return fmt.Errorf("vector config: %w", err)
	}
	if err := c.Buffer.Validate(); err != nil {
		return fmt.Errorf("buffer config: %w", err)
	}
	if err := c.Jobs.Validate(); err != nil {
		return fmt.Errorf("jobs config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates AI configuration.
func (a *AIConfig) Validate() error {
	switch ai.Backend(a.Backend) {
	case ai.BackendOpenAI, ai.BackendOllama:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", ai.BackendOpenAI, ai.BackendOllama, a.Backend)
	}
	if a.Dimensions < 1 {
		return fmt.Errorf("dimensions must be positive, got %d", a.Dimensions)
	}
	return nil
}

// Validate validates vector store configuration.
func (v *VectorConfig) Validate() error {
	switch v.Backend {
	case VectorBadger:
	case VectorQdrant:
		if v.QdrantHost == "" {
			return fmt.Errorf("qdrant_host cannot be empty when backend is qdrant")
		}
		if v.QdrantPort < 1 || v.QdrantPort > 65535 {
			return fmt.Errorf("qdrant_port must be between 1 and 65535, got %d", v.QdrantPort)
		}
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", VectorBadger, VectorQdrant, v.Backend)
	}
	if v.Collection == "" {
		return fmt.Errorf("collection cannot be empty")
	}
	return nil
}

// Validate validates buffer configuration.
func (b *BufferConfig) Validate() error {
	if b.MaxBufferSize < 1 {
		return fmt.Errorf("max_buffer_size must be at least 1, got %d", b.MaxBufferSize)
	}
	if b.MaxBufferAge <= 0 || b.FlushInterval <= 0 {
		return fmt.Errorf("max_buffer_age and flush_interval must be positive")
	}
	if b.MaxMeetings < 1 {
		return fmt.Errorf("max_meetings must be at least 1, got %d", b.MaxMeetings)
	}
	return nil
}

// Validate validates job processor configuration.
func (j *JobsConfig) Validate() error {
	if j.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", j.Concurrency)
	}
	if j.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", j.MaxAttempts)
	}
	if j.BaseDelay < 0 {
		return fmt.Errorf("base_delay cannot be negative")
	}
	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of debug, info, warn, error, got %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}
	return nil
}

// AIOptions converts the AI section to ai.Config options.
func (c *Config) AIOptions() []ai.ConfigOption {
	opts := []ai.ConfigOption{
		ai.WithBackend(ai.Backend(c.AI.Backend)),
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithAnswerHost(c.AI.AnswerHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithAnswerModel(c.AI.AnswerModel),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithDimensions(c.AI.Dimensions),
		ai.WithTemperature(c.AI.Temperature),
		ai.WithMaxTokens(c.AI.MaxTokens),
	}
	if len(c.AI.Stop) > 0 {
		opts = append(opts, ai.WithStop(c.AI.Stop...))
	}
	return opts
}

// BufferSettings converts the buffer section.
func (c *Config) BufferSettings() *buffer.Config {
	return &buffer.Config{
		MaxBufferSize: c.Buffer.MaxBufferSize,
		MaxBufferAge:  c.Buffer.MaxBufferAge,
		FlushInterval: c.Buffer.FlushInterval,
		MaxMeetings:   c.Buffer.MaxMeetings,
	}
}

// JobSettings converts the jobs section.
func (c *Config) JobSettings() *jobs.Config {
	return &jobs.Config{
		Concurrency: c.Jobs.Concurrency,
		MaxAttempts: c.Jobs.MaxAttempts,
		BaseDelay:   c.Jobs.BaseDelay,
	}
}

// EmbeddingOptions converts the embedding section.
func (c *Config) EmbeddingOptions() []embedding.Option {
	return []embedding.Option{
		embedding.WithPoolSize(c.Embedding.PoolSize),
		embedding.WithBatchSize(c.Embedding.BatchSize),
		embedding.WithCacheSize(c.Embedding.CacheSize),
		embedding.WithCacheTTL(c.Embedding.CacheTTL),
	}
}

// RAGSettings converts the rag and vector sections.
func (c *Config) RAGSettings() rag.Config {
	cfg := rag.DefaultConfig()
	cfg.Collection = c.Vector.Collection
	cfg.Dimensions = c.AI.Dimensions
	cfg.CollectionConfig.OnDisk = c.Vector.OnDisk
	cfg.SearchLimit = c.RAG.SearchLimit
	cfg.ScoreThreshold = c.RAG.ScoreThreshold
	cfg.SourceLen = c.RAG.SourceLength
	cfg.SummaryEntries = c.RAG.SummaryEntries
	cfg.ChunkWindow = c.RAG.ChunkWindow
	return cfg
}

// QdrantSettings converts the vector section to qdrant connection settings.
func (c *Config) QdrantSettings() qdrant.Config {
	return qdrant.Config{
		Host:   c.Vector.QdrantHost,
		Port:   c.Vector.QdrantPort,
		APIKey: c.Vector.QdrantKey,
		UseTLS: c.Vector.QdrantTLS,
	}
}
