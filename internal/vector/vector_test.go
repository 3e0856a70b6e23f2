package vector

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChromemIndexQueryFiltersAndRanks(t *testing.T) {
	ctx := context.Background()
	idx := NewChromemIndex(chromem.NewDB(), "test")

	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0, 0}, map[string]string{"sessionId": "alice"}))
	require.NoError(t, idx.Upsert(ctx, "b", []float32{0.9, 0.1, 0}, map[string]string{"sessionId": "bob"}))
	require.NoError(t, idx.Upsert(ctx, "c", []float32{0, 1, 0}, map[string]string{"sessionId": "alice"}))

	hits, err := idx.Query(ctx, []float32{1, 0, 0}, 3, 0.5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "b", hits[1].ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)

	hits, err = idx.Query(ctx, []float32{1, 0, 0}, 3, 0.5, map[string]string{"sessionId": "bob"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
	assert.Equal(t, "bob", hits[0].Attributes["sessionId"])
}

func TestChromemIndexUpsertReplacesAndDeletes(t *testing.T) {
	ctx := context.Background()
	idx := NewChromemIndex(chromem.NewDB(), "test")

	require.NoError(t, idx.Upsert(ctx, "a", []float32{1, 0}, nil))
	require.NoError(t, idx.Upsert(ctx, "a", []float32{0, 1}, nil))

	hits, err := idx.Query(ctx, []float32{0, 1}, 5, 0.9, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	require.NoError(t, idx.Delete(ctx, "a", "missing"))
	hits, err = idx.Query(ctx, []float32{0, 1}, 5, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemIndexEmpty(t *testing.T) {
	hits, err := NewChromemIndex(chromem.NewDB(), "empty").Query(context.Background(), []float32{1}, 3, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRedisIndexQueryArgs(t *testing.T) {
	idx := NewRedisIndex(nil, RedisIndexConfig{
		IndexName: "idx:semcache",
		KeyPrefix: "semcache:vec:",
		TagFields: []string{"sessionId"},
	})

	args := idx.queryArgs([]float32{1, 2}, 3, map[string]string{"sessionId": "alice-1"})
	assert.Equal(t, "FT.SEARCH", args[0])
	assert.Equal(t, "idx:semcache", args[1])
	assert.Equal(t, `(@sessionId:{alice\-1})=>[KNN 3 @embedding $vec AS score]`, args[2])
	assert.Contains(t, args, "DIALECT")

	unfiltered := idx.queryArgs([]float32{1}, 1, nil)
	assert.Equal(t, "*=>[KNN 1 @embedding $vec AS score]", unfiltered[2])
}

func TestEncodeFloat32(t *testing.T) {
	b := []byte(EncodeFloat32([]float32{1.5, -2}))
	require.Len(t, b, 8)
	assert.Equal(t, float32(1.5), math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])))
	assert.Equal(t, float32(-2), math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])))
}
