// Package vectorstore defines the interface for vector storage operations.
//
// Two implementations are provided: an embedded chromem-go store (default,
// zero external services) and an external Qdrant store over gRPC. Both are
// transport details behind the same Store interface; the ingestion and query
// pipelines do not know which one they talk to.
package vectorstore

import (
	"context"
	"errors"
)

var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrConnectionFailed indicates the store is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to vector store")
)

// Document is a stored record: text, its embedding and flat string metadata.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// SearchResult is a document with its similarity score.
type SearchResult struct {
	Document
	Score float32
}

// Store is the vector storage capability.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	// Implementations that track vector size reject a mismatch against an
	// existing collection; that is a configuration error, not retryable.
	EnsureCollection(ctx context.Context, name string, vectorSize int) error

	// Upsert writes documents into the collection. Existing IDs are
	// overwritten; the write is idempotent for identical input.
	Upsert(ctx context.Context, collection string, docs []Document) error

	// Search returns up to k documents ranked by similarity descending,
	// dropping results below threshold. filter is an exact-match metadata
	// filter; nil means unfiltered. An empty result is a valid outcome.
	Search(ctx context.Context, collection string, vector []float32, k int, threshold float32, filter map[string]string) ([]SearchResult, error)

	// Get fetches documents by ID. Missing IDs are simply absent from the
	// result, not an error.
	Get(ctx context.Context, collection string, ids []string) ([]Document, error)

	// Close releases resources held by the store.
	Close() error
}
