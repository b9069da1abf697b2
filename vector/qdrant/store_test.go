package qdrant

import (
	"errors"
	"testing"

	"github.com/poiesic/minutes/vector"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresHost(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrHostRequired)
}

func TestToFilter(t *testing.T) {
	f := toFilter(vector.Filter{Must: []vector.Match{
		vector.MatchKeyword(vector.FieldMeetingID, "m1"),
		vector.MatchInteger(vector.FieldTimestamp, 42),
		{Key: "isHost", Value: true},
	}})
	require.Len(t, f.Must, 3)

	keyword := f.Must[0].GetField()
	require.NotNil(t, keyword)
	assert.Equal(t, vector.FieldMeetingID, keyword.GetKey())
	assert.Equal(t, "m1", keyword.GetMatch().GetKeyword())

	integer := f.Must[1].GetField()
	require.NotNil(t, integer)
	assert.Equal(t, int64(42), integer.GetMatch().GetInteger())

	boolean := f.Must[2].GetField()
	require.NotNil(t, boolean)
	assert.True(t, boolean.GetMatch().GetBoolean())
}

func TestFromValueMap(t *testing.T) {
	payload := qdrant.NewValueMap(map[string]any{
		vector.FieldText:      "Alice: hello",
		vector.FieldTimestamp: int64(1500),
		"score":               0.5,
		"isHost":              true,
		"tags":                []any{"a", "b"},
	})

	out := fromValueMap(payload)
	assert.Equal(t, "Alice: hello", vector.PayloadString(out, vector.FieldText))
	assert.Equal(t, int64(1500), vector.PayloadInt(out, vector.FieldTimestamp))
	assert.Equal(t, 0.5, out["score"])
	assert.Equal(t, true, out["isHost"])
	assert.Equal(t, []any{"a", "b"}, out["tags"])
}

func TestDistanceAndFieldType(t *testing.T) {
	assert.Equal(t, qdrant.Distance_Cosine, distance(vector.DistanceCosine))
	assert.Equal(t, qdrant.Distance_Dot, distance(vector.DistanceDot))
	assert.Equal(t, qdrant.Distance_Cosine, distance(""))

	assert.Equal(t, qdrant.FieldType_FieldTypeKeyword, fieldTypeOf(vector.FieldTypeKeyword))
	assert.Equal(t, qdrant.FieldType_FieldTypeInteger, fieldTypeOf(vector.FieldTypeInteger))
	assert.Equal(t, qdrant.FieldType_FieldTypeFloat, fieldTypeOf(vector.FieldTypeFloat))
}

func TestAlreadyExists(t *testing.T) {
	assert.True(t, alreadyExists(errors.New("rpc error: code = AlreadyExists desc = Index already exists")))
	assert.False(t, alreadyExists(errors.New("connection refused")))
}
