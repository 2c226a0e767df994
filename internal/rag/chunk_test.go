package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoontopia/superdaddy/internal/vectorstore"
)

func TestChunkIDIsDeterministic(t *testing.T) {
	a := ChunkID("guide.txt", 4)
	b := ChunkID("guide.txt", 4)
	c := ChunkID("guide.txt", 5)
	d := ChunkID("other.txt", 4)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestChunkMetadataRoundTrip(t *testing.T) {
	chunk := Chunk{
		Text:          "Start tummy time early.",
		SourceID:      "guide.txt",
		SequenceIndex: 7,
		SectionTitle:  "Tummy time",
		Keywords:      []string{"tummy time", "motor development"},
		Entities:      []string{"tummy time"},
	}

	doc := vectorstore.Document{
		ID:       chunk.ID(),
		Content:  chunk.Text,
		Metadata: chunk.Metadata(),
	}

	got, ok := ChunkFromDocument(doc)
	require.True(t, ok)
	assert.Equal(t, chunk, got)
}

func TestChunkFromDocumentRejectsMalformedMetadata(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]string
	}{
		{"missing source", map[string]string{MetaChunkIndex: "0"}},
		{"missing index", map[string]string{MetaSource: "guide.txt"}},
		{"non-numeric index", map[string]string{MetaSource: "guide.txt", MetaChunkIndex: "first"}},
		{"negative index", map[string]string{MetaSource: "guide.txt", MetaChunkIndex: "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ChunkFromDocument(vectorstore.Document{Content: "x", Metadata: tt.meta})
			assert.False(t, ok)
		})
	}
}

func TestKeyOrdering(t *testing.T) {
	a := Key{SourceID: "a.txt", SequenceIndex: 9}
	b := Key{SourceID: "b.txt", SequenceIndex: 0}
	c := Key{SourceID: "b.txt", SequenceIndex: 1}

	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(b))
}
