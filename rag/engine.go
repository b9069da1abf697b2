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

// Package rag stores meeting transcripts as vectors and answers questions
// about them.
//
// Flushed fragments are chunked per speaker, embedded and upserted into a
// single collection with the meeting id in each payload. Questions are
// embedded, matched against the meeting's chunks and passed to the answer
// model together with the matching excerpts. Every question is recorded as a
// core.QAEntry, including the ones that fail.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/minutes/ai"
	"github.com/poiesic/minutes/chunking"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/prompts"
	"github.com/poiesic/minutes/storage"
	"github.com/poiesic/minutes/vector"
)

// Defaults for Config.
const (
	DefaultCollection  = "meeting_transcripts"
	DefaultDimensions  = 384
	DefaultSearchLimit = 10
	DefaultSourceLen   = 100
	// DefaultSummaryEntries bounds how many recent flushes feed a summary.
	DefaultSummaryEntries = 50
)

// NoDataAnswer is recorded when a meeting has no matching transcript.
const NoDataAnswer = "I don't have any transcript content for this meeting yet, so I can't answer that question."

// ErrorAnswer is the user-facing answer recorded when a question fails.
const ErrorAnswer = "Sorry, something went wrong while answering this question. Please try again."

// Config tunes the engine.
type Config struct {
	Collection       string
	Dimensions       int
	CollectionConfig vector.CollectionConfig
	SearchLimit      int
	// ScoreThreshold drops weak matches when greater than zero.
	ScoreThreshold float32
	// ChunkWindow is the same-speaker merge window in milliseconds.
	ChunkWindow    int64
	SourceLen      int
	SummaryEntries int
	Generate       ai.GenerateOptions
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Collection:       DefaultCollection,
		Dimensions:       DefaultDimensions,
		CollectionConfig: vector.DefaultCollectionConfig(),
		SearchLimit:      DefaultSearchLimit,
		ChunkWindow:      chunking.DefaultWindow,
		SourceLen:        DefaultSourceLen,
		SummaryEntries:   DefaultSummaryEntries,
	}
}

// Repositories are the persistence collaborators of the engine.
type Repositories struct {
	QA          storage.QARepository
	Transcripts storage.TranscriptRepository
	Summaries   storage.SummaryRepository
}

// Option configures an Engine.
type Option func(*Engine) error

// WithConfig replaces the engine configuration. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(e *Engine) error {
		def := DefaultConfig()
		if cfg.Collection == "" {
			cfg.Collection = def.Collection
		}
		if cfg.Dimensions <= 0 {
			cfg.Dimensions = def.Dimensions
		}
		if cfg.CollectionConfig.Distance == "" {
			cfg.CollectionConfig.Distance = def.CollectionConfig.Distance
		}
		if cfg.SearchLimit <= 0 {
			cfg.SearchLimit = def.SearchLimit
		}
		if cfg.ChunkWindow <= 0 {
			cfg.ChunkWindow = def.ChunkWindow
		}
		if cfg.SourceLen <= 0 {
			cfg.SourceLen = def.SourceLen
		}
		if cfg.SummaryEntries <= 0 {
			cfg.SummaryEntries = def.SummaryEntries
		}
		e.config = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger.With("component", "rag")
		return nil
	}
}

// WithClock overrides time.Now for created and updated stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		if now != nil {
			e.now = now
		}
		return nil
	}
}

// Engine implements retrieval and answering over meeting transcripts.
// It is safe for concurrent use.
type Engine struct {
	store       vector.Store
	embedder    ai.Embedder
	model       ai.AnswerModel
	templates   *prompts.Cache
	qa          storage.QARepository
	transcripts storage.TranscriptRepository
	summaries   storage.SummaryRepository
	config      Config
	now         func() time.Time
	logger      *slog.Logger
}

// NewEngine creates an engine. Every collaborator is required.
func NewEngine(
	store vector.Store,
	embedder ai.Embedder,
	model ai.AnswerModel,
	templates *prompts.Cache,
	repos Repositories,
	opts ...Option,
) (*Engine, error) {
	switch {
	case store == nil:
		return nil, ErrVectorStoreRequired
	case embedder == nil:
		return nil, ErrEmbedderRequired
	case model == nil:
		return nil, ErrAnswerModelRequired
	case templates == nil:
		return nil, ErrPromptsRequired
	case repos.QA == nil:
		return nil, ErrQARepositoryRequired
	case repos.Transcripts == nil:
		return nil, ErrTranscriptRepositoryRequired
	case repos.Summaries == nil:
		return nil, ErrSummaryRepositoryRequired
	}
	for _, name := range prompts.Required {
		if _, ok := templates.Get(name); !ok {
			return nil, fmt.Errorf("%w: %s", prompts.ErrTemplateNotFound, name)
		}
	}

	e := &Engine{
		store:       store,
		embedder:    embedder,
		model:       model,
		templates:   templates,
		qa:          repos.QA,
		transcripts: repos.Transcripts,
		summaries:   repos.Summaries,
		config:      DefaultConfig(),
		now:         time.Now,
		logger:      slog.Default().With("component", "rag"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// EnsureCollection creates the collection and its payload indexes.
// It is safe to call on every startup.
func (e *Engine) EnsureCollection(ctx context.Context) error {
	name := e.config.Collection
	if err := e.store.InitializeCollection(ctx, name, e.config.Dimensions, e.config.CollectionConfig); err != nil {
		return fmt.Errorf("initialize collection %s: %w", name, err)
	}
	indexes := []struct {
		field string
		typ   vector.FieldType
	}{
		{vector.FieldMeetingID, vector.FieldTypeKeyword},
		{vector.FieldSpeakerID, vector.FieldTypeKeyword},
		{vector.FieldTimestamp, vector.FieldTypeInteger},
	}
	for _, idx := range indexes {
		if err := e.store.CreateIndex(ctx, name, idx.field, idx.typ); err != nil {
			return fmt.Errorf("create index %s: %w", idx.field, err)
		}
	}
	e.logger.Info("collection ready", "collection", name, "dimension", e.config.Dimensions)
	return nil
}

// StoreTranscripts chunks, embeds and upserts a batch of fragments.
// Point ids are derived from chunk content, so storing the same fragments
// again overwrites the existing points.
func (e *Engine) StoreTranscripts(ctx context.Context, meetingID string, fragments []core.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}
	if meetingID == "" {
		return core.ErrEmptyMeetingID
	}

	chunks := chunking.ChunkWithWindow(fragments, e.config.ChunkWindow)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content()
	}

	vectors, err := e.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embed %d chunks: got %d vectors", len(chunks), len(vectors))
	}

	points := make([]vector.Point, 0, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != e.config.Dimensions {
			e.logger.Warn("skipping chunk with wrong embedding dimension",
				"meeting", meetingID, "speaker", c.SpeakerID, "timestamp", c.Timestamp,
				"got", len(vectors[i]), "want", e.config.Dimensions)
			continue
		}
		points = append(points, vector.Point{
			ID:     vector.PointID(meetingID, c.Content(), c.Timestamp),
			Vector: vectors[i],
			Payload: map[string]any{
				vector.FieldMeetingID:    meetingID,
				vector.FieldSpeakerID:    c.SpeakerID,
				vector.FieldSpeakerName:  c.SpeakerName,
				vector.FieldText:         c.Text,
				vector.FieldTimestamp:    c.Timestamp,
				vector.FieldSegmentCount: c.SegmentCount,
			},
		})
	}
	if len(points) == 0 {
		return nil
	}

	if err := e.store.Upsert(ctx, e.config.Collection, points); err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	e.logger.Debug("stored transcript chunks",
		"meeting", meetingID, "fragments", len(fragments), "chunks", len(chunks), "points", len(points))
	return nil
}

// DeleteMeetingData removes every vector stored for a meeting.
func (e *Engine) DeleteMeetingData(ctx context.Context, meetingID string) error {
	if meetingID == "" {
		return core.ErrEmptyMeetingID
	}
	if err := e.store.DeleteByFilter(ctx, e.config.Collection, vector.MeetingFilter(meetingID)); err != nil {
		return fmt.Errorf("delete vectors of meeting %s: %w", meetingID, err)
	}
	return nil
}

// ReindexMeeting rebuilds a meeting's vectors from its persisted transcript.
// Use it after changing the embedding model. Returns the number of
// transcript entries re-embedded.
func (e *Engine) ReindexMeeting(ctx context.Context, meetingID string) (int, error) {
	entries, err := e.transcripts.GetTranscriptEntries(ctx, meetingID)
	if err != nil {
		return 0, fmt.Errorf("load transcript of meeting %s: %w", meetingID, err)
	}
	if err := e.DeleteMeetingData(ctx, meetingID); err != nil {
		return 0, err
	}
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := e.StoreTranscripts(ctx, meetingID, entry.Fragments); err != nil {
			return i, fmt.Errorf("reindex entry %d of meeting %s: %w", entry.Id, meetingID, err)
		}
	}
	e.logger.Info("reindexed meeting", "meeting", meetingID, "entries", len(entries))
	return len(entries), nil
}
