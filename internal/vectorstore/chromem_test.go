package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoontopia/superdaddy/internal/logging"
)

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{}, logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.EnsureCollection(context.Background(), "chunks", 3))
	return store
}

func testDocs() []Document {
	return []Document{
		{
			ID:        "doc-0",
			Content:   "feeding schedules for newborns",
			Embedding: []float32{1, 0, 0},
			Metadata:  map[string]string{"source": "guide.txt", "chunk_index": "0"},
		},
		{
			ID:        "doc-1",
			Content:   "sleep training basics",
			Embedding: []float32{0, 1, 0},
			Metadata:  map[string]string{"source": "guide.txt", "chunk_index": "1"},
		},
		{
			ID:        "doc-2",
			Content:   "teething remedies",
			Embedding: []float32{0, 0, 1},
			Metadata:  map[string]string{"source": "other.txt", "chunk_index": "0"},
		},
	}
}

func TestChromemUpsertAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "chunks", testDocs()))

	results, err := store.Search(ctx, "chunks", []float32{1, 0, 0}, 3, 0, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc-0", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.01)
}

func TestChromemSearchThresholdDropsWeakMatches(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "chunks", testDocs()))

	// Only the exactly-matching vector clears a 0.9 threshold; orthogonal
	// vectors have similarity 0.
	results, err := store.Search(ctx, "chunks", []float32{0, 1, 0}, 3, 0.9, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].ID)
}

func TestChromemSearchWithMetadataFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "chunks", testDocs()))

	results, err := store.Search(ctx, "chunks", []float32{0, 0, 1}, 3, 0, map[string]string{"source": "other.txt"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-2", results[0].ID)
}

func TestChromemSearchEmptyCollectionIsNotAnError(t *testing.T) {
	store := newTestStore(t)

	results, err := store.Search(context.Background(), "chunks", []float32{1, 0, 0}, 5, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemGetSkipsMissingIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "chunks", testDocs()))

	docs, err := store.Get(ctx, "chunks", []string{"doc-1", "no-such-id", "doc-2"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc-1", docs[0].ID)
	assert.Equal(t, "doc-2", docs[1].ID)
}

func TestChromemUpsertIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "chunks", testDocs()))
	require.NoError(t, store.Upsert(ctx, "chunks", testDocs()))

	results, err := store.Search(ctx, "chunks", []float32{1, 0, 0}, 3, 0, nil)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestChromemUpsertRejectsWrongDimension(t *testing.T) {
	store := newTestStore(t)

	err := store.Upsert(context.Background(), "chunks", []Document{
		{ID: "bad", Content: "x", Embedding: []float32{1, 0}},
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestChromemUpsertRequiresDocuments(t *testing.T) {
	store := newTestStore(t)
	err := store.Upsert(context.Background(), "chunks", nil)
	assert.ErrorIs(t, err, ErrEmptyDocuments)
}
