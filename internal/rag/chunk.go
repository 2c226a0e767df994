// Package rag holds the retrieval domain model shared by ingestion and the
// query pipeline: chunks, retrieval candidates and the assembled context.
package rag

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/zoontopia/superdaddy/internal/vectorstore"
)

// Metadata keys for chunk records in the vector store.
const (
	MetaSource       = "source"
	MetaChunkIndex   = "chunk_index"
	MetaSectionTitle = "section_title"
	MetaKeywords     = "keywords"
	MetaEntities     = "entities"
)

// listSeparator joins keyword and entity lists into a single metadata value.
const listSeparator = ", "

// chunkNamespace derives deterministic chunk IDs. Re-ingesting the same
// source writes the same IDs, making persistence an upsert rather than an
// append.
var chunkNamespace = uuid.MustParse("8a9e9a3e-4a62-5f9d-9c66-0d1f4a1a7b3c")

// Chunk is one retrieval unit: a slice of the source document with its
// enrichment metadata and position.
type Chunk struct {
	// Text is the final enriched text, the unit shown to the embedding
	// model and ultimately to the answering model.
	Text string

	SourceID string
	// SequenceIndex is the zero-based position within the source, unique
	// and contiguous per source. Neighbor expansion walks this index.
	SequenceIndex int

	SectionTitle string
	Keywords     []string
	// Entities are canonical entity names mentioned by this chunk. Only
	// populated when entity-graph mode is enabled.
	Entities []string
}

// ID returns the deterministic store ID for this chunk.
func (c Chunk) ID() string {
	return ChunkID(c.SourceID, c.SequenceIndex)
}

// Key returns the (source, sequence) identity used for merge deduplication.
func (c Chunk) Key() Key {
	return Key{SourceID: c.SourceID, SequenceIndex: c.SequenceIndex}
}

// Key identifies a chunk by source and position.
type Key struct {
	SourceID      string
	SequenceIndex int
}

// Less orders keys by (sourceID, sequenceIndex), the order a document reads
// in.
func (k Key) Less(other Key) bool {
	if k.SourceID != other.SourceID {
		return k.SourceID < other.SourceID
	}
	return k.SequenceIndex < other.SequenceIndex
}

// ChunkID returns the deterministic store ID for a (source, sequence) pair.
// Qdrant requires UUID point IDs, so IDs are name-based UUIDs.
func ChunkID(sourceID string, sequenceIndex int) string {
	name := sourceID + "#" + strconv.Itoa(sequenceIndex)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// Metadata converts the chunk's attributes into store metadata.
func (c Chunk) Metadata() map[string]string {
	meta := map[string]string{
		MetaSource:     c.SourceID,
		MetaChunkIndex: strconv.Itoa(c.SequenceIndex),
	}
	if c.SectionTitle != "" {
		meta[MetaSectionTitle] = c.SectionTitle
	}
	if len(c.Keywords) > 0 {
		meta[MetaKeywords] = strings.Join(c.Keywords, listSeparator)
	}
	if len(c.Entities) > 0 {
		meta[MetaEntities] = strings.Join(c.Entities, listSeparator)
	}
	return meta
}

// ChunkFromDocument reconstructs a Chunk from a stored record. Records with
// missing or malformed positional metadata yield ok=false and are skipped by
// callers; they cannot participate in neighbor expansion.
func ChunkFromDocument(doc vectorstore.Document) (Chunk, bool) {
	source := doc.Metadata[MetaSource]
	if source == "" {
		return Chunk{}, false
	}
	index, err := strconv.Atoi(doc.Metadata[MetaChunkIndex])
	if err != nil || index < 0 {
		return Chunk{}, false
	}

	return Chunk{
		Text:          doc.Content,
		SourceID:      source,
		SequenceIndex: index,
		SectionTitle:  doc.Metadata[MetaSectionTitle],
		Keywords:      splitList(doc.Metadata[MetaKeywords]),
		Entities:      splitList(doc.Metadata[MetaEntities]),
	}, true
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Candidate is a query-scoped retrieval result: a chunk with its vector
// similarity and the lexical overlap used by hybrid ranking. Not persisted.
type Candidate struct {
	Chunk Chunk
	// Score is the vector similarity, possibly boosted by keyword overlap
	// in hybrid mode.
	Score float32
	// KeywordOverlap counts query keywords matching the chunk's keywords
	// or entities.
	KeywordOverlap int
	// VectorRank is the candidate's position in the raw vector ranking,
	// used as a stable tie-break after re-scoring.
	VectorRank int
}
