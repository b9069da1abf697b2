package vector

import (
	"context"
	"strconv"

	"github.com/google/uuid"
)

// Payload field names written by the RAG engine.
const (
	FieldMeetingID    = "meetingId"
	FieldSpeakerID    = "speakerId"
	FieldSpeakerName  = "speakerName"
	FieldText         = "text"
	FieldTimestamp    = "timestamp"
	FieldSegmentCount = "segmentCount"
)

// Distance selects the similarity metric of a collection.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceDot    Distance = "dot"
)

// CollectionConfig carries backend options for InitializeCollection.
type CollectionConfig struct {
	Distance Distance
	// OnDisk asks the backend to keep vectors on disk where supported.
	OnDisk bool
}

// DefaultCollectionConfig returns cosine distance with in-memory vectors.
func DefaultCollectionConfig() CollectionConfig {
	return CollectionConfig{Distance: DistanceCosine}
}

// FieldType is the payload index type for CreateIndex.
type FieldType int

const (
	FieldTypeKeyword FieldType = iota + 1
	FieldTypeInteger
	FieldTypeFloat
)

// Point is a vector plus metadata stored for similarity search.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// SearchRequest describes a nearest neighbour query.
type SearchRequest struct {
	Vector []float32
	Limit  int
	Filter *Filter
	// ScoreThreshold drops results scoring below it when greater than zero.
	ScoreThreshold float32
}

// Result is one ranked hit.
type Result struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Store is a named-collection similarity index.
// Implementations must be safe for concurrent use.
type Store interface {
	// InitializeCollection ensures the collection exists with the given dimension.
	// Calling it for an existing collection is a no-op.
	InitializeCollection(ctx context.Context, name string, dim int, cfg CollectionConfig) error

	// Upsert writes or overwrites points by id.
	Upsert(ctx context.Context, name string, points []Point) error

	// Search returns up to req.Limit points ordered by descending similarity.
	Search(ctx context.Context, name string, req SearchRequest) ([]Result, error)

	// Delete removes points by id. Unknown ids are ignored.
	Delete(ctx context.Context, name string, ids ...string) error

	// DeleteByFilter removes every point whose payload matches the filter.
	DeleteByFilter(ctx context.Context, name string, filter Filter) error

	// CreateIndex declares a payload field as filterable.
	// It succeeds silently when the index already exists.
	CreateIndex(ctx context.Context, name, field string, fieldType FieldType) error

	// Close releases backend resources.
	Close() error
}

var pointNamespace = uuid.MustParse("6f1c9c2e-4a55-5b8e-9d3a-8f2e7c1b0a64")

// PointID derives the deterministic id of a chunk point from its meeting,
// text and timestamp. Re-upserting the same chunk of the same meeting
// overwrites the existing point; identical chunks of different meetings get
// distinct ids.
func PointID(meetingID, text string, timestamp int64) string {
	key := meetingID + "\x00" + text + "\x00" + strconv.FormatInt(timestamp, 10)
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}
