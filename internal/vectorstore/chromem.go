package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/zoontopia/superdaddy/internal/logging"
)

var chromemTracer = otel.Tracer("superdaddy.vectorstore.chromem")

// ChromemConfig holds configuration for the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means in-memory
	// only, which is what the tests use.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ChromemStore implements Store using chromem-go, an embeddable pure-Go
// vector database. No external service is required; data persists to gob
// files under the configured path.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *logging.Logger

	mu    sync.Mutex
	sizes map[string]int // collection -> expected vector size
}

// NewChromemStore creates a chromem-backed store.
func NewChromemStore(cfg ChromemConfig, logger *logging.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandHome(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("resolving store path: %w", err)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem db at %s: %w", path, err)
		}
	}

	return &ChromemStore{
		db:     db,
		config: cfg,
		logger: logger.Named("chromem"),
		sizes:  make(map[string]int),
	}, nil
}

// noEmbedFunc rejects embedding requests: all vectors are computed upstream
// by the embeddings service and handed to the store precomputed.
func noEmbedFunc(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("store does not embed; vectors are precomputed")
}

// EnsureCollection creates the collection if missing and records its
// expected vector size.
func (s *ChromemStore) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}

	if _, err := s.db.GetOrCreateCollection(name, nil, noEmbedFunc); err != nil {
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	s.mu.Lock()
	s.sizes[name] = vectorSize
	s.mu.Unlock()

	s.logger.Debug(ctx, "collection ready",
		zap.String("collection", name),
		zap.Int("vector_size", vectorSize),
	)
	return nil
}

// Upsert writes documents into the collection. Documents with an ID that
// already exists overwrite the stored record.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, docs []Document) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("documents", len(docs)),
	)

	if len(docs) == 0 {
		return fmt.Errorf("%w: nothing to upsert", ErrEmptyDocuments)
	}

	col := s.db.GetCollection(collection, noEmbedFunc)
	if col == nil {
		span.SetStatus(codes.Error, "collection not found")
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	expected := s.expectedSize(collection)
	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		if expected > 0 && len(doc.Embedding) != expected {
			err := fmt.Errorf("%w: document %s has %d-dim vector, collection %s expects %d",
				ErrInvalidConfig, doc.ID, len(doc.Embedding), collection, expected)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: doc.Embedding,
			Metadata:  doc.Metadata,
		}
	}

	if err := col.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents to %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug(ctx, "upserted documents",
		zap.String("collection", collection),
		zap.Int("count", len(docs)),
	)
	return nil
}

// Search performs similarity search with an optional metadata filter.
func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, k int, threshold float32, filter map[string]string) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("k", k),
	)

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	col := s.db.GetCollection(collection, noEmbedFunc)
	if col == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	// chromem requires nResults <= document count.
	count := col.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if k > count {
		k = count
	}

	results, err := col.QueryEmbedding(ctx, vector, k, filter, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	searchResults := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		searchResults = append(searchResults, SearchResult{
			Document: Document{
				ID:        r.ID,
				Content:   r.Content,
				Embedding: r.Embedding,
				Metadata:  r.Metadata,
			},
			Score: r.Similarity,
		})
	}

	span.SetAttributes(attribute.Int("results", len(searchResults)))
	span.SetStatus(codes.Ok, "success")
	return searchResults, nil
}

// Get fetches documents by ID. Missing IDs are skipped.
func (s *ChromemStore) Get(ctx context.Context, collection string, ids []string) ([]Document, error) {
	col := s.db.GetCollection(collection, noEmbedFunc)
	if col == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		doc, err := col.GetByID(ctx, id)
		if err != nil {
			// chromem reports missing IDs as errors; absence is not an
			// error for this interface.
			continue
		}
		docs = append(docs, Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: doc.Embedding,
			Metadata:  doc.Metadata,
		})
	}
	return docs, nil
}

// Close is a no-op; chromem persists on write.
func (s *ChromemStore) Close() error {
	return nil
}

func (s *ChromemStore) expectedSize(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sizes[collection]
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
