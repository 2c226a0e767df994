// Package embeddings provides embedding generation via langchaingo.
//
// Query and document embeddings must share one fixed dimension; the service
// verifies every returned vector against the configured dimension and treats
// a mismatch as a fatal configuration error rather than a retryable failure.
package embeddings

import (
	"context"
	"errors"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/zoontopia/superdaddy/internal/config"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDimensionMismatch indicates the model returned vectors of a
	// different dimension than configured. This is fatal: an index built
	// with one dimension cannot serve queries embedded with another.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Provider generates fixed-dimension embeddings for documents and queries.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts, one vector
	// per input, same order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query using the same
	// model and dimension as document embedding.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the fixed embedding dimension.
	Dimension() int
}

// Service implements Provider on top of a langchaingo embedder.
type Service struct {
	embedder  lcembeddings.Embedder
	dimension int
}

// New creates an embedding service from configuration.
func New(ctx context.Context, cfg config.EmbeddingConfig) (*Service, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}

	var client lcembeddings.EmbedderClient
	var err error
	switch cfg.Provider {
	case "googleai":
		if !cfg.APIKey.IsSet() {
			return nil, fmt.Errorf("%w: embedding api key required", ErrInvalidConfig)
		}
		client, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey.Value()),
			googleai.WithDefaultEmbeddingModel(cfg.Model),
		)
	case "openai":
		apiKey := cfg.APIKey.Value()
		if apiKey == "" {
			// langchaingo requires a token; TEI-style endpoints ignore it.
			apiKey = "placeholder"
		}
		opts := []openai.Option{
			openai.WithEmbeddingModel(cfg.Model),
			openai.WithToken(apiKey),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		client, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s embedding client: %w", cfg.Provider, err)
	}

	embedder, err := lcembeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &Service{embedder: embedder, dimension: cfg.Dimension}, nil
}

// NewFromEmbedder wraps an existing langchaingo embedder. Used by tests.
func NewFromEmbedder(embedder lcembeddings.Embedder, dimension int) *Service {
	return &Service{embedder: embedder, dimension: dimension}
}

// EmbedDocuments generates embeddings for the given texts.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding documents: got %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != s.dimension {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(v), s.dimension)
		}
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrEmptyInput)
	}

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}
	return vector, nil
}

// Dimension returns the configured embedding dimension.
func (s *Service) Dimension() int {
	return s.dimension
}

// Ensure Service implements Provider.
var _ Provider = (*Service)(nil)
