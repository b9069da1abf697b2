package badger

import (
	"context"
	"testing"

	"github.com/poiesic/minutes/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVectorStore(t *testing.T) *VectorStore {
	t.Helper()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	store := NewVectorStore(backend)
	require.NoError(t, store.InitializeCollection(context.Background(), "chunks", 3, vector.DefaultCollectionConfig()))
	return store
}

func point(id, meetingID string, v ...float32) vector.Point {
	return vector.Point{
		ID:     id,
		Vector: v,
		Payload: map[string]any{
			vector.FieldMeetingID: meetingID,
			vector.FieldText:      id,
			vector.FieldTimestamp: int64(1000),
		},
	}
}

func TestVectorStore_InitializeIsIdempotent(t *testing.T) {
	store := newTestVectorStore(t)
	ctx := context.Background()

	// A second call with another dimension must not redefine the collection
	require.NoError(t, store.InitializeCollection(ctx, "chunks", 8, vector.DefaultCollectionConfig()))
	err := store.Upsert(ctx, "chunks", []vector.Point{point("a", "m1", 1, 0, 0)})
	require.NoError(t, err)

	assert.ErrorIs(t, store.InitializeCollection(ctx, "", 3, vector.CollectionConfig{}), vector.ErrEmptyCollectionName)
	assert.ErrorIs(t, store.InitializeCollection(ctx, "x", 0, vector.CollectionConfig{}), vector.ErrInvalidDimension)
}

func TestVectorStore_SearchRanksAndFilters(t *testing.T) {
	store := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "chunks", []vector.Point{
		point("close", "m1", 1, 0.1, 0),
		point("far", "m1", 0, 1, 0),
		point("mid", "m1", 1, 1, 0),
		point("other-meeting", "m2", 1, 0, 0),
	}))

	filter := vector.MeetingFilter("m1")
	results, err := store.Search(ctx, "chunks", vector.SearchRequest{Vector: []float32{1, 0, 0}, Limit: 10, Filter: &filter})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "close", results[0].ID)
	assert.Equal(t, "mid", results[1].ID)
	assert.Equal(t, "far", results[2].ID)
	for _, r := range results {
		assert.Equal(t, "m1", vector.PayloadString(r.Payload, vector.FieldMeetingID))
	}
	assert.Equal(t, int64(1000), vector.PayloadInt(results[0].Payload, vector.FieldTimestamp))

	limited, err := store.Search(ctx, "chunks", vector.SearchRequest{Vector: []float32{1, 0, 0}, Limit: 1, Filter: &filter})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	thresholded, err := store.Search(ctx, "chunks", vector.SearchRequest{Vector: []float32{1, 0, 0}, Filter: &filter, ScoreThreshold: 0.5})
	require.NoError(t, err)
	assert.Len(t, thresholded, 2)
}

func TestVectorStore_UpsertOverwrites(t *testing.T) {
	store := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "chunks", []vector.Point{point("a", "m1", 1, 0, 0)}))
	require.NoError(t, store.Upsert(ctx, "chunks", []vector.Point{point("a", "m1", 0, 1, 0)}))

	results, err := store.Search(ctx, "chunks", vector.SearchRequest{Vector: []float32{0, 1, 0}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestVectorStore_DimensionChecks(t *testing.T) {
	store := newTestVectorStore(t)
	ctx := context.Background()

	err := store.Upsert(ctx, "chunks", []vector.Point{point("a", "m1", 1, 0)})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)

	_, err = store.Search(ctx, "chunks", vector.SearchRequest{Vector: []float32{1}})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)

	err = store.Upsert(ctx, "missing", []vector.Point{point("a", "m1", 1, 0, 0)})
	assert.ErrorIs(t, err, vector.ErrCollectionNotFound)
}

func TestVectorStore_Delete(t *testing.T) {
	store := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "chunks", []vector.Point{
		point("a", "m1", 1, 0, 0),
		point("b", "m1", 0, 1, 0),
		point("c", "m2", 0, 0, 1),
	}))

	require.NoError(t, store.Delete(ctx, "chunks", "a", "unknown"))
	require.NoError(t, store.DeleteByFilter(ctx, "chunks", vector.MeetingFilter("m2")))

	results, err := store.Search(ctx, "chunks", vector.SearchRequest{Vector: []float32{1, 1, 1}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestVectorStore_CreateIndex(t *testing.T) {
	store := newTestVectorStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateIndex(ctx, "chunks", vector.FieldMeetingID, vector.FieldTypeKeyword))
	require.NoError(t, store.CreateIndex(ctx, "chunks", vector.FieldMeetingID, vector.FieldTypeKeyword))
	require.NoError(t, store.CreateIndex(ctx, "chunks", vector.FieldTimestamp, vector.FieldTypeInteger))

	indexes, err := store.Indexes("chunks")
	require.NoError(t, err)
	assert.Equal(t, map[string]vector.FieldType{
		vector.FieldMeetingID: vector.FieldTypeKeyword,
		vector.FieldTimestamp: vector.FieldTypeInteger,
	}, indexes)
}
