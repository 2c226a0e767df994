// Package retriever finds candidate chunks for a question.
//
// Three strategies share one vector search core. Plain vector retrieval
// returns the similarity ranking as is. The hybrid strategy over-fetches a
// candidate pool and re-scores it with lexical keyword overlap before
// cutting to the top K. The entity strategy does the same with
// LLM-extracted entity mentions, degrading to plain vector retrieval when
// the question names no entities.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/zoontopia/superdaddy/internal/config"
	"github.com/zoontopia/superdaddy/internal/logging"
	"github.com/zoontopia/superdaddy/internal/metrics"
	"github.com/zoontopia/superdaddy/internal/rag"
	"github.com/zoontopia/superdaddy/internal/vectorstore"
)

// QueryEmbedder embeds the question with the same model as the documents.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EntityExtractor names the entities a question mentions. Best effort; an
// empty result means no entity signal.
type EntityExtractor interface {
	Extract(ctx context.Context, text string) []string
}

// Strategy retrieves ranked candidates for a question.
type Strategy interface {
	// Retrieve returns up to the configured top K candidates ranked by
	// final score descending. An empty result is a valid outcome.
	Retrieve(ctx context.Context, question string) ([]rag.Candidate, error)

	// Name identifies the strategy in logs.
	Name() string
}

// New builds the strategy selected by the retrieval configuration. The
// extractor is only required for entity mode.
func New(
	cfg config.RetrievalConfig,
	store vectorstore.Store,
	embedder QueryEmbedder,
	collection string,
	extractor EntityExtractor,
	logger *logging.Logger,
) (Strategy, error) {
	core := searcher{
		store:      store,
		embedder:   embedder,
		collection: collection,
		threshold:  cfg.SimilarityThreshold,
		logger:     logger,
	}
	switch cfg.Mode {
	case config.ModeVector:
		return &vectorStrategy{searcher: core, topK: cfg.TopK}, nil
	case config.ModeHybrid:
		return &hybridStrategy{
			searcher: core,
			topK:     cfg.TopK,
			pool:     cfg.CandidatePool,
			weight:   cfg.KeywordWeight,
		}, nil
	case config.ModeEntity:
		if extractor == nil {
			return nil, fmt.Errorf("entity retrieval mode requires an entity extractor")
		}
		return &entityStrategy{
			searcher:  core,
			topK:      cfg.TopK,
			pool:      cfg.CandidatePool,
			weight:    cfg.KeywordWeight,
			extractor: extractor,
		}, nil
	default:
		return nil, fmt.Errorf("unknown retrieval mode %q", cfg.Mode)
	}
}

// searcher is the shared vector search core.
type searcher struct {
	store      vectorstore.Store
	embedder   QueryEmbedder
	collection string
	threshold  float32
	logger     *logging.Logger
}

// search embeds the question and returns candidates in similarity order,
// each tagged with its vector rank. Records without positional metadata are
// dropped.
func (s *searcher) search(ctx context.Context, question string, k int) ([]rag.Candidate, error) {
	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	results, err := s.store.Search(ctx, s.collection, vector, k, s.threshold, nil)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}

	candidates := make([]rag.Candidate, 0, len(results))
	for _, res := range results {
		chunk, ok := rag.ChunkFromDocument(res.Document)
		if !ok {
			s.logger.Warn(ctx, "dropping chunk with malformed metadata",
				zap.String("id", res.ID))
			continue
		}
		candidates = append(candidates, rag.Candidate{
			Chunk:      chunk,
			Score:      res.Score,
			VectorRank: len(candidates),
		})
	}
	metrics.RetrievalCandidates.Observe(float64(len(candidates)))
	return candidates, nil
}

type vectorStrategy struct {
	searcher
	topK int
}

func (s *vectorStrategy) Name() string { return "vector" }

func (s *vectorStrategy) Retrieve(ctx context.Context, question string) ([]rag.Candidate, error) {
	return s.search(ctx, question, s.topK)
}

type hybridStrategy struct {
	searcher
	topK   int
	pool   int
	weight float32
}

func (s *hybridStrategy) Name() string { return "hybrid" }

func (s *hybridStrategy) Retrieve(ctx context.Context, question string) ([]rag.Candidate, error) {
	candidates, err := s.search(ctx, question, s.pool)
	if err != nil {
		return nil, err
	}
	terms := queryTerms(question)
	return rescore(candidates, terms, s.weight, s.topK), nil
}

type entityStrategy struct {
	searcher
	topK      int
	pool      int
	weight    float32
	extractor EntityExtractor
}

func (s *entityStrategy) Name() string { return "entity" }

func (s *entityStrategy) Retrieve(ctx context.Context, question string) ([]rag.Candidate, error) {
	entities := s.extractor.Extract(ctx, question)
	if len(entities) == 0 {
		// No entity signal; behave like plain vector retrieval.
		return s.search(ctx, question, s.topK)
	}

	candidates, err := s.search(ctx, question, s.pool)
	if err != nil {
		return nil, err
	}
	return rescore(candidates, entities, s.weight, s.topK), nil
}

// rescore boosts each candidate's vector score by weight per matching term
// and cuts the list to topK. The sort is stable, so candidates with equal
// final scores keep their vector rank order.
func rescore(candidates []rag.Candidate, terms []string, weight float32, topK int) []rag.Candidate {
	for i := range candidates {
		overlap := matchCount(candidates[i].Chunk, terms)
		candidates[i].KeywordOverlap = overlap
		candidates[i].Score += weight * float32(overlap)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

// matchCount counts query terms present in the chunk's keywords or entities,
// case insensitively.
func matchCount(chunk rag.Chunk, terms []string) int {
	if len(terms) == 0 {
		return 0
	}
	index := make(map[string]bool, len(chunk.Keywords)+len(chunk.Entities))
	for _, k := range chunk.Keywords {
		index[strings.ToLower(strings.TrimSpace(k))] = true
	}
	for _, e := range chunk.Entities {
		index[strings.ToLower(strings.TrimSpace(e))] = true
	}

	count := 0
	for _, term := range terms {
		if index[strings.ToLower(strings.TrimSpace(term))] {
			count++
		}
	}
	return count
}

// queryTerms derives lexical match terms from the question: lowercased
// words, single characters dropped, duplicates removed.
func queryTerms(question string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, word := range strings.Fields(strings.ToLower(question)) {
		word = strings.Trim(word, ".,!?\"'()[]{}:;")
		if len([]rune(word)) < 2 || seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
	}
	return out
}
