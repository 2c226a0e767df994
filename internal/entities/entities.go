// Package entities extracts named entities from text and maintains the
// entity collection used by entity-graph retrieval.
//
// Entities are canonical names (people, concepts, routines) mentioned by a
// chunk. During ingestion each chunk's entities are registered once in the
// entity collection and recorded on the chunk's metadata; at query time the
// same extractor runs over the user's question and the overlap drives
// retrieval filtering.
package entities

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zoontopia/superdaddy/internal/llm"
	"github.com/zoontopia/superdaddy/internal/logging"
	"github.com/zoontopia/superdaddy/internal/vectorstore"
)

const extractSystemPrompt = `You extract named entities from parenting guidebook text.
Return the distinct entities (people, concepts, methods, developmental stages)
mentioned in the text as a single comma-separated list, most important first.
Use the text's own language. Return at most %LIMIT% entities. If the text
mentions no clear entities, return the single word NONE. Output only the list.`

// entityNamespace derives deterministic entity IDs from canonical names.
var entityNamespace = uuid.MustParse("3f1d2b60-77c4-5c1e-8e0a-6b2f9d41c5aa")

// EntityID returns the deterministic store ID for an entity name.
func EntityID(name string) string {
	return uuid.NewSHA1(entityNamespace, []byte(Canonical(name))).String()
}

// Canonical normalizes an entity name for identity comparison.
func Canonical(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Extractor pulls entity names out of free text via the LLM.
type Extractor struct {
	completer llm.Completer
	logger    *logging.Logger
	limit     int
}

// NewExtractor creates an Extractor that returns at most limit entities per
// call.
func NewExtractor(completer llm.Completer, logger *logging.Logger, limit int) *Extractor {
	if limit <= 0 {
		limit = 5
	}
	return &Extractor{completer: completer, logger: logger, limit: limit}
}

// Extract returns the entities mentioned in text, canonicalized and
// deduplicated. Extraction is best effort: model failures and empty results
// yield an empty list, never an error, so callers degrade to plain retrieval.
func (e *Extractor) Extract(ctx context.Context, text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	system := strings.ReplaceAll(extractSystemPrompt, "%LIMIT%", strconv.Itoa(e.limit))
	raw, err := e.completer.Complete(ctx, system, text)
	if err != nil {
		e.logger.Warn(ctx, "entity extraction failed", zap.Error(err))
		return nil
	}
	return ParseList(raw, e.limit)
}

// ParseList parses a comma-separated entity list from model output. The
// NONE sentinel and blank output yield an empty list. Duplicate names after
// canonicalization are dropped, keeping the first occurrence's casing.
func ParseList(raw string, limit int) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "NONE") {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(trimmed, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		key := Canonical(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Embedder is the subset of the embedding service the registry needs.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Registry get-or-creates entities in the entity collection. Creation is
// serialized per canonical name so concurrent ingestion of the same entity
// writes it once, and a run-scoped cache skips store round trips for names
// already handled.
type Registry struct {
	store      vectorstore.Store
	embedder   Embedder
	collection string
	logger     *logging.Logger

	mu    sync.Mutex
	known map[string]bool
	locks map[string]*sync.Mutex
}

// NewRegistry creates a Registry over the given entity collection.
func NewRegistry(store vectorstore.Store, embedder Embedder, collection string, logger *logging.Logger) *Registry {
	return &Registry{
		store:      store,
		embedder:   embedder,
		collection: collection,
		logger:     logger,
		known:      make(map[string]bool),
		locks:      make(map[string]*sync.Mutex),
	}
}

// Register ensures every named entity exists in the entity collection and
// returns the canonical forms actually registered. Individual failures are
// logged and skipped; registration never blocks ingestion.
func (r *Registry) Register(ctx context.Context, names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		canonical := Canonical(name)
		if canonical == "" {
			continue
		}
		if err := r.getOrCreate(ctx, name, canonical); err != nil {
			r.logger.Warn(ctx, "entity registration failed",
				zap.String("entity", canonical), zap.Error(err))
			continue
		}
		out = append(out, canonical)
	}
	return out
}

func (r *Registry) getOrCreate(ctx context.Context, name, canonical string) error {
	lock := r.nameLock(canonical)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	done := r.known[canonical]
	r.mu.Unlock()
	if done {
		return nil
	}

	id := EntityID(name)
	existing, err := r.store.Get(ctx, r.collection, []string{id})
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		vector, err := r.embedder.EmbedQuery(ctx, canonical)
		if err != nil {
			return err
		}
		doc := vectorstore.Document{
			ID:        id,
			Content:   canonical,
			Embedding: vector,
			Metadata:  map[string]string{"name": canonical},
		}
		if err := r.store.Upsert(ctx, r.collection, []vectorstore.Document{doc}); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.known[canonical] = true
	r.mu.Unlock()
	return nil
}

// Tagger combines extraction and registration: extract entities from text,
// register them, return the canonical names to record on the chunk.
type Tagger struct {
	Extractor *Extractor
	Registry  *Registry
}

// Tag extracts and registers the entities mentioned in text.
func (t *Tagger) Tag(ctx context.Context, text string) []string {
	names := t.Extractor.Extract(ctx, text)
	if len(names) == 0 {
		return nil
	}
	return t.Registry.Register(ctx, names)
}

func (r *Registry) nameLock(canonical string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[canonical]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[canonical] = lock
	}
	return lock
}
