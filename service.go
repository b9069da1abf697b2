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

package minutes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/minutes/ai"
	"github.com/poiesic/minutes/ai/ollama"
	"github.com/poiesic/minutes/ai/openai"
	"github.com/poiesic/minutes/buffer"
	"github.com/poiesic/minutes/config"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/embedding"
	"github.com/poiesic/minutes/jobs"
	"github.com/poiesic/minutes/lifecycle"
	"github.com/poiesic/minutes/metrics"
	"github.com/poiesic/minutes/prompts"
	"github.com/poiesic/minutes/rag"
	"github.com/poiesic/minutes/storage"
	"github.com/poiesic/minutes/storage/badger"
	"github.com/poiesic/minutes/vector"
	"github.com/poiesic/minutes/vector/qdrant"
	"github.com/prometheus/client_golang/prometheus"
)

// JobStoreTranscript persists and indexes one flushed buffer.
const JobStoreTranscript = "store_transcript"

// DefaultShutdownTimeout bounds how long Close waits for buffers and jobs.
const DefaultShutdownTimeout = 30 * time.Second

// Service wires the transcript pipeline together: fragments go into the
// buffer manager, flushes become jobs, and jobs persist, index and summarize
// transcript entries for the RAG engine to answer from.
type Service struct {
	repos     *badger.Repositories
	store     vector.Store
	provider  ai.AIProvider
	embedder  *embedding.Service
	processor *jobs.Processor
	buffers   *buffer.Manager
	engine    *rag.Engine
	machine   *lifecycle.Machine
	metrics   *metrics.Metrics

	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	inMemory        bool
	aiConfig        *ai.Config
	provider        ai.AIProvider
	qdrant          *qdrant.Config
	bufferConfig    *buffer.Config
	jobsConfig      *jobs.Config
	embeddingOpts   []embedding.Option
	ragConfig       *rag.Config
	promptsDir      string
	registerer      prometheus.Registerer
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// WithInMemory keeps every record in memory. The path passed to NewService is ignored.
func WithInMemory() Option {
	return func(o *serviceOptions) { o.inMemory = true }
}

// WithAIConfig configures the embedding and answer backends.
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *serviceOptions) { o.aiConfig = cfg }
}

// WithProvider uses an existing AI provider instead of building one from the
// AI config. The service takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *serviceOptions) { o.provider = provider }
}

// WithQdrant stores vectors in Qdrant instead of the embedded Badger store.
func WithQdrant(cfg qdrant.Config) Option {
	return func(o *serviceOptions) { o.qdrant = &cfg }
}

// WithBufferConfig sets the transcript buffer limits.
func WithBufferConfig(cfg *buffer.Config) Option {
	return func(o *serviceOptions) { o.bufferConfig = cfg }
}

// WithJobsConfig sets the job processor settings.
func WithJobsConfig(cfg *jobs.Config) Option {
	return func(o *serviceOptions) { o.jobsConfig = cfg }
}

// WithEmbeddingOptions passes options to the embedding service.
func WithEmbeddingOptions(opts ...embedding.Option) Option {
	return func(o *serviceOptions) { o.embeddingOpts = append(o.embeddingOpts, opts...) }
}

// WithRAGConfig sets retrieval and generation settings.
func WithRAGConfig(cfg rag.Config) Option {
	return func(o *serviceOptions) { o.ragConfig = &cfg }
}

// WithPromptsDir loads prompt templates from dir instead of the built-in set.
func WithPromptsDir(dir string) Option {
	return func(o *serviceOptions) { o.promptsDir = dir }
}

// WithMetrics registers Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *serviceOptions) { o.registerer = reg }
}

// WithShutdownTimeout bounds Close.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *serviceOptions) { o.shutdownTimeout = d }
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) { o.logger = logger }
}

// OptionsFromConfig translates a loaded configuration file into service options.
func OptionsFromConfig(cfg *config.Config) []Option {
	opts := []Option{
		WithAIConfig(ai.NewConfig(cfg.AIOptions()...)),
		WithBufferConfig(cfg.BufferSettings()),
		WithJobsConfig(cfg.JobSettings()),
		WithEmbeddingOptions(cfg.EmbeddingOptions()...),
		WithRAGConfig(cfg.RAGSettings()),
		WithPromptsDir(cfg.Prompts.Dir),
	}
	if cfg.Vector.Backend == config.VectorQdrant {
		opts = append(opts, WithQdrant(cfg.QdrantSettings()))
	}
	return opts
}

// NewService opens the database at dbPath and starts the pipeline.
func NewService(dbPath string, opts ...Option) (*Service, error) {
	options := &serviceOptions{
		aiConfig:        ai.DefaultConfig(),
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger

	s := &Service{
		shutdownTimeout: options.shutdownTimeout,
		logger:          logger.With("component", "service"),
	}
	// fail releases whatever has been opened so far when startup fails.
	fail := func(err error) (*Service, error) {
		if cerr := s.closeResources(); cerr != nil {
			s.logger.Error("cleanup after failed start", "err", cerr)
		}
		return nil, err
	}

	backend, err := badger.OpenBackend(dbPath, options.inMemory)
	if err != nil {
		return nil, err
	}
	s.repos = badger.NewRepositories(backend)

	s.store = s.repos.Vectors
	if options.qdrant != nil {
		store, err := qdrant.New(*options.qdrant, qdrant.WithLogger(logger))
		if err != nil {
			return fail(err)
		}
		s.store = store
	}

	s.provider = options.provider
	if s.provider == nil {
		s.provider, err = newProvider(options.aiConfig)
		if err != nil {
			return fail(err)
		}
	}

	embedOpts := append([]embedding.Option{embedding.WithLogger(logger)}, options.embeddingOpts...)
	s.embedder, err = embedding.NewService(s.provider.Embedder(), embedOpts...)
	if err != nil {
		return fail(err)
	}

	templates, err := loadPrompts(options.promptsDir)
	if err != nil {
		return fail(err)
	}

	ragConfig := rag.DefaultConfig()
	ragConfig.Dimensions = options.aiConfig.Dimensions
	if options.ragConfig != nil {
		ragConfig = *options.ragConfig
	}
	if ragConfig.Generate.Model == "" {
		ragConfig.Generate = options.aiConfig.GenerateOptions()
	}
	s.engine, err = rag.NewEngine(s.store, s.embedder, s.provider.AnswerModel(), templates,
		rag.Repositories{QA: s.repos.QA, Transcripts: s.repos.Transcripts, Summaries: s.repos.Summaries},
		rag.WithConfig(ragConfig), rag.WithLogger(logger))
	if err != nil {
		return fail(err)
	}
	if err := s.engine.EnsureCollection(context.Background()); err != nil {
		return fail(err)
	}

	jobsConfig := options.jobsConfig
	if jobsConfig == nil {
		jobsConfig = jobs.DefaultConfig()
	}
	s.processor, err = jobs.NewProcessor(jobsConfig, jobs.WithLogger(logger))
	if err != nil {
		return fail(err)
	}
	s.processor.RegisterHandler(s.handleJob)

	bufferConfig := options.bufferConfig
	if bufferConfig == nil {
		bufferConfig = buffer.DefaultConfig()
	}
	s.buffers, err = buffer.NewManager(buffer.SinkFunc(s.enqueueFlush), bufferConfig, buffer.WithLogger(logger))
	if err != nil {
		return fail(err)
	}

	s.machine, err = lifecycle.NewMachine(
		lifecycle.WithLogger(logger),
		lifecycle.WithFlusher(s.buffers),
		lifecycle.WithMeetingRepository(s.repos.Meetings),
	)
	if err != nil {
		return fail(err)
	}

	if options.registerer != nil {
		s.metrics = metrics.New(options.registerer, metrics.Sources{
			Buffer:    s.buffers.Stats,
			Jobs:      s.processor.Stats,
			Embedding: s.embedder.Stats,
		})
	}

	s.logger.Info("service started", "db", dbPath, "vector_store", fmt.Sprintf("%T", s.store))
	return s, nil
}

func newProvider(cfg *ai.Config) (ai.AIProvider, error) {
	switch cfg.Backend {
	case ai.BackendOllama:
		return ollama.NewProvider(cfg)
	default:
		return openai.NewProvider(cfg)
	}
}

func loadPrompts(dir string) (*prompts.Cache, error) {
	if dir == "" {
		return prompts.Default()
	}
	return prompts.LoadDir(dir)
}

// Close flushes every buffer, drains queued jobs, then releases the embedder,
// the AI provider, the vector store and the database, in that order.
func (s *Service) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.buffers.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close buffers: %w", err))
	}
	if err := s.processor.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown jobs: %w", err))
	}
	if err := s.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) closeResources() error {
	var errs []error
	if s.embedder != nil {
		if err := s.embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close embedder: %w", err))
		}
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close AI provider: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close vector store: %w", err))
		}
	}
	if s.repos != nil {
		if err := s.repos.Backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend storage: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("error closing service", "err", err)
		return err
	}
	return nil
}

// CreateMeeting registers a new meeting in the SCHEDULED state.
func (s *Service) CreateMeeting(ctx context.Context, id, title string) (*core.Meeting, error) {
	if _, err := s.repos.Meetings.GetMeeting(ctx, id); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrMeetingExists, id)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	meeting := &core.Meeting{Id: id, Title: title, Status: core.MeetingScheduled}
	if err := core.ValidateMeeting(meeting); err != nil {
		return nil, err
	}
	if err := s.repos.Meetings.SaveMeeting(ctx, meeting); err != nil {
		return nil, err
	}
	return meeting, nil
}

// Meeting loads a meeting by id.
func (s *Service) Meeting(ctx context.Context, id string) (*core.Meeting, error) {
	return s.repos.Meetings.GetMeeting(ctx, id)
}

// Meetings lists every stored meeting.
func (s *Service) Meetings(ctx context.Context) ([]*core.Meeting, error) {
	return s.repos.Meetings.ListMeetings(ctx)
}

// AddFragment buffers a speech-to-text fragment for a meeting. Fragments for
// a meeting in a terminal state are dropped with buffer.ErrMeetingEnded.
func (s *Service) AddFragment(ctx context.Context, meetingID string, fragment core.Fragment) error {
	if meetingID != "" && !s.buffers.Active(meetingID) {
		meeting, err := s.repos.Meetings.GetMeeting(ctx, meetingID)
		switch {
		case err == nil && lifecycle.IsTerminal(meeting.Status):
			s.logger.Warn("dropping fragment for ended meeting", "meeting", meetingID, "status", meeting.Status)
			return fmt.Errorf("%w: %s is %s", buffer.ErrMeetingEnded, meetingID, meeting.Status)
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return err
		}
	}
	return s.buffers.AddFragment(ctx, meetingID, fragment)
}

// Flush hands a meeting's buffered fragments to the job processor now.
func (s *Service) Flush(ctx context.Context, meetingID string) error {
	return s.buffers.Flush(ctx, meetingID)
}

// AskQuestion answers a question from the meeting's indexed transcript.
// The returned entry is persisted whether or not an error is returned.
func (s *Service) AskQuestion(ctx context.Context, meetingID, userID, question string) (*core.QAEntry, error) {
	started := time.Now()
	entry, err := s.engine.AskQuestion(ctx, meetingID, userID, question)
	s.metrics.ObserveQuestion(started, err)
	return entry, err
}

// History returns up to limit answered questions for a meeting, newest first.
func (s *Service) History(ctx context.Context, meetingID string, limit int) ([]*core.QAEntry, error) {
	return s.engine.History(ctx, meetingID, limit)
}

// Summary returns the meeting's rolling summary.
func (s *Service) Summary(ctx context.Context, meetingID string) (*core.Summary, error) {
	return s.engine.Summary(ctx, meetingID)
}

// RefreshSummary regenerates the meeting's rolling summary now.
func (s *Service) RefreshSummary(ctx context.Context, meetingID string) (*core.Summary, error) {
	return s.engine.RefreshSummary(ctx, meetingID)
}

// Reindex re-embeds a meeting's persisted transcript.
func (s *Service) Reindex(ctx context.Context, meetingID string) (int, error) {
	return s.engine.ReindexMeeting(ctx, meetingID)
}

// Transition moves a stored meeting to target and persists it.
func (s *Service) Transition(ctx context.Context, meetingID string, target core.MeetingStatus) lifecycle.Result {
	result := s.machine.TransitionByID(ctx, meetingID, target)
	s.metrics.ObserveTransition(string(target), result.Err)
	return result
}

// TransitionFromBotState moves a stored meeting according to a recording
// bot status label.
func (s *Service) TransitionFromBotState(ctx context.Context, meetingID, label string) lifecycle.Result {
	result := s.machine.TransitionFromBotStateByID(ctx, meetingID, label)
	s.metrics.ObserveTransition(string(result.To), result.Err)
	return result
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Buffer    buffer.Stats
	Jobs      jobs.Stats
	Embedding embedding.Stats
}

// Stats returns the current pipeline counters.
func (s *Service) Stats() Stats {
	return Stats{
		Buffer:    s.buffers.Stats(),
		Jobs:      s.processor.Stats(),
		Embedding: s.embedder.Stats(),
	}
}

func (s *Service) enqueueFlush(ctx context.Context, meetingID string, fragments []core.Fragment) error {
	return s.processor.Enqueue(jobs.Job{
		Kind:      JobStoreTranscript,
		MeetingID: meetingID,
		Payload:   fragments,
	})
}

// handleJob persists a flushed buffer as a transcript entry, indexes it and
// refreshes the rolling summary. Saving is idempotent, so retries are safe.
func (s *Service) handleJob(ctx context.Context, job *jobs.Job) error {
	if job.Kind != JobStoreTranscript {
		return fmt.Errorf("%w: %q", ErrUnknownJobKind, job.Kind)
	}
	fragments, ok := job.Payload.([]core.Fragment)
	if !ok {
		return fmt.Errorf("%w: %T", ErrInvalidPayload, job.Payload)
	}

	entry := core.NewTranscriptEntry(job.MeetingID, fragments)
	if err := s.repos.Transcripts.SaveTranscriptEntry(ctx, entry); err != nil {
		return fmt.Errorf("save transcript entry: %w", err)
	}
	if err := s.engine.StoreTranscripts(ctx, job.MeetingID, fragments); err != nil {
		return err
	}
	if _, err := s.engine.RefreshSummary(ctx, job.MeetingID); err != nil {
		s.logger.Warn("summary refresh failed", "meeting", job.MeetingID, "err", err)
	}
	return nil
}
