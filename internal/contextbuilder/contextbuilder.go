// Package contextbuilder turns selected candidates into the context block
// given to the answering model.
//
// Each selected chunk is expanded with its immediate neighbors in the source
// document so answers do not start or stop mid-thought. The merged set is
// deduplicated by (source, sequence) with the selected chunk winning over a
// neighbor copy, ordered the way the document reads, and joined with blank
// lines.
package contextbuilder

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/zoontopia/superdaddy/internal/logging"
	"github.com/zoontopia/superdaddy/internal/metrics"
	"github.com/zoontopia/superdaddy/internal/rag"
	"github.com/zoontopia/superdaddy/internal/vectorstore"
)

// Builder assembles the answer context from selected candidates.
type Builder struct {
	store      vectorstore.Store
	collection string
	logger     *logging.Logger
}

// New creates a Builder reading neighbors from the given collection.
func New(store vectorstore.Store, collection string, logger *logging.Logger) *Builder {
	return &Builder{store: store, collection: collection, logger: logger}
}

// Build expands the selection with adjacent chunks and returns the joined
// context text plus the chunks it was built from, in document order. An
// empty selection yields an empty context; neighbor fetch failures degrade
// to the selection alone.
func (b *Builder) Build(ctx context.Context, selected []rag.Candidate) (string, []rag.Chunk) {
	if len(selected) == 0 {
		return "", nil
	}

	merged := make(map[rag.Key]rag.Chunk, len(selected)*3)
	for _, c := range selected {
		key := c.Chunk.Key()
		if _, exists := merged[key]; !exists {
			merged[key] = c.Chunk
		}
	}

	for _, neighbor := range b.fetchNeighbors(ctx, selected, merged) {
		key := neighbor.Key()
		if _, exists := merged[key]; !exists {
			merged[key] = neighbor
		}
	}

	chunks := make([]rag.Chunk, 0, len(merged))
	for _, chunk := range merged {
		chunks = append(chunks, chunk)
	}
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Key().Less(chunks[j].Key())
	})

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	metrics.ContextChunks.Observe(float64(len(chunks)))
	return strings.Join(texts, "\n\n"), chunks
}

// fetchNeighbors loads the chunks adjacent to each selected candidate in one
// store round trip. Neighbors already in the merge set are not requested,
// and a fetch failure returns nothing rather than failing the build.
func (b *Builder) fetchNeighbors(ctx context.Context, selected []rag.Candidate, merged map[rag.Key]rag.Chunk) []rag.Chunk {
	wanted := make(map[string]bool)
	var ids []string
	for _, c := range selected {
		for _, seq := range []int{c.Chunk.SequenceIndex - 1, c.Chunk.SequenceIndex + 1} {
			if seq < 0 {
				continue
			}
			key := rag.Key{SourceID: c.Chunk.SourceID, SequenceIndex: seq}
			if _, exists := merged[key]; exists {
				continue
			}
			id := rag.ChunkID(c.Chunk.SourceID, seq)
			if wanted[id] {
				continue
			}
			wanted[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	docs, err := b.store.Get(ctx, b.collection, ids)
	if err != nil {
		b.logger.Warn(ctx, "neighbor fetch failed, answering from selection only",
			zap.Int("neighbors", len(ids)), zap.Error(err))
		return nil
	}

	neighbors := make([]rag.Chunk, 0, len(docs))
	for _, doc := range docs {
		chunk, ok := rag.ChunkFromDocument(doc)
		if !ok {
			b.logger.Warn(ctx, "skipping neighbor with malformed metadata",
				zap.String("id", doc.ID))
			continue
		}
		neighbors = append(neighbors, chunk)
	}
	return neighbors
}

// Preview returns a short log-friendly description of the built context.
func Preview(chunks []rag.Chunk) string {
	if len(chunks) == 0 {
		return "empty"
	}
	first := chunks[0]
	last := chunks[len(chunks)-1]
	return fmt.Sprintf("%d chunks [%s#%d..%s#%d]",
		len(chunks), first.SourceID, first.SequenceIndex, last.SourceID, last.SequenceIndex)
}
