// Package ingest turns a source document into embedded chunks in the vector
// store.
//
// A run walks a fixed sequence of stages: check for an existing ingestion,
// load pages, split, refine, merge, then embed and persist in paced batches.
// Persistence is best effort per batch so one bad batch does not lose the
// document, and chunk IDs are deterministic so re-running a source upserts
// instead of duplicating.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zoontopia/superdaddy/internal/config"
	"github.com/zoontopia/superdaddy/internal/enrich"
	"github.com/zoontopia/superdaddy/internal/logging"
	"github.com/zoontopia/superdaddy/internal/metrics"
	"github.com/zoontopia/superdaddy/internal/rag"
	"github.com/zoontopia/superdaddy/internal/vectorstore"
)

// Status is the terminal state of an ingestion run.
type Status string

const (
	// StatusCompleted means the run persisted at least one chunk.
	StatusCompleted Status = "completed"
	// StatusSkipped means no work was needed: the source was already
	// ingested (and force was not set), or its document does not exist.
	StatusSkipped Status = "skipped"
	// StatusFailed means the run aborted before persisting anything.
	StatusFailed Status = "failed"
)

// Report summarizes an ingestion run.
type Report struct {
	SourceID  string `json:"source_id"`
	Status    Status `json:"status"`
	Pages     int    `json:"pages"`
	Chunks    int    `json:"chunks"`
	Persisted int    `json:"persisted"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// Refiner enriches raw chunks, one enrichment per input.
type Refiner interface {
	EnrichAll(ctx context.Context, chunks []string) ([]enrich.Enrichment, error)
}

// Splitter splits page text into chunks.
type Splitter interface {
	Split(text string) []string
}

// Embedder is the document-embedding capability the pipeline needs.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// EntityTagger extracts and registers entities for a chunk. Nil disables
// entity tagging.
type EntityTagger interface {
	Tag(ctx context.Context, text string) []string
}

// Pipeline ingests sources into the chunk collection.
type Pipeline struct {
	splitter   Splitter
	refiner    Refiner
	embedder   Embedder
	store      vectorstore.Store
	tagger     EntityTagger
	logger     *logging.Logger
	collection string

	persistBatch int
	persistPause time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEntityTagger enables entity tagging during ingestion.
func WithEntityTagger(t EntityTagger) Option {
	return func(p *Pipeline) { p.tagger = t }
}

// WithSleeper replaces the inter-batch sleep, for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) { p.sleep = sleep }
}

// New creates a Pipeline from its stages and the ingestion settings.
func New(
	splitter Splitter,
	refiner Refiner,
	embedder Embedder,
	store vectorstore.Store,
	collection string,
	cfg config.IngestionConfig,
	logger *logging.Logger,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		splitter:     splitter,
		refiner:      refiner,
		embedder:     embedder,
		store:        store,
		collection:   collection,
		logger:       logger,
		persistBatch: cfg.PersistBatchSize,
		persistPause: cfg.PersistPause.Duration(),
		sleep:        sleepContext,
	}
	if p.persistBatch <= 0 {
		p.persistBatch = 5
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run ingests a source end to end. It never panics: a panic in any stage is
// recovered into a failed report so one bad document cannot take down the
// server's startup ingestion.
func (p *Pipeline) Run(ctx context.Context, source Source, force bool) (report Report) {
	report = Report{SourceID: source.ID(), Status: StatusFailed}
	defer func() {
		if r := recover(); r != nil {
			report.Status = StatusFailed
			report.Error = fmt.Sprintf("panic: %v", r)
			p.logger.Error(ctx, "ingestion panicked",
				zap.String("source", report.SourceID),
				zap.Any("panic", r))
		}
		metrics.IngestRuns.WithLabelValues(string(report.Status)).Inc()
	}()

	ctx = logging.WithSourceID(ctx, source.ID())
	start := time.Now()

	if err := p.store.EnsureCollection(ctx, p.collection, p.embedder.Dimension()); err != nil {
		report.Error = err.Error()
		return report
	}

	if !force {
		ingested, err := p.alreadyIngested(ctx, source.ID())
		if err != nil {
			report.Error = err.Error()
			return report
		}
		if ingested {
			p.logger.Info(ctx, "source already ingested, skipping")
			report.Status = StatusSkipped
			return report
		}
	}

	pages, err := source.Pages(ctx)
	if err != nil {
		report.Error = err.Error()
		if errors.Is(err, fs.ErrNotExist) {
			// A missing document is an expected condition (first boot
			// before the guidebook is mounted), not a pipeline failure.
			p.logger.Warn(ctx, "source document not found, skipping", zap.Error(err))
			report.Status = StatusSkipped
		}
		return report
	}
	report.Pages = len(pages)
	if len(pages) == 0 {
		report.Error = "source has no pages"
		return report
	}

	var raw []string
	for _, page := range pages {
		raw = append(raw, p.splitter.Split(page)...)
	}
	report.Chunks = len(raw)
	if len(raw) == 0 {
		report.Error = "source produced no chunks"
		return report
	}
	p.logger.Info(ctx, "source loaded",
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(raw)))

	enriched, err := p.refiner.EnrichAll(ctx, raw)
	if err != nil {
		report.Error = err.Error()
		return report
	}

	chunks := p.assemble(ctx, source.ID(), enriched)

	persisted, failed := p.persist(ctx, chunks)
	report.Persisted = persisted
	report.Failed = failed
	if persisted == 0 {
		report.Error = "no chunks persisted"
		return report
	}

	report.Status = StatusCompleted
	p.logger.Info(ctx, "ingestion completed",
		zap.Int("persisted", persisted),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)))
	return report
}

// alreadyIngested checks whether the source's first chunk is present. The
// first chunk exists for every successfully ingested source, so it doubles
// as the idempotency marker.
func (p *Pipeline) alreadyIngested(ctx context.Context, sourceID string) (bool, error) {
	docs, err := p.store.Get(ctx, p.collection, []string{rag.ChunkID(sourceID, 0)})
	if err != nil {
		return false, fmt.Errorf("checking existing ingestion: %w", err)
	}
	return len(docs) > 0, nil
}

// assemble merges enrichments into ordered chunks and tags entities when a
// tagger is configured.
func (p *Pipeline) assemble(ctx context.Context, sourceID string, enriched []enrich.Enrichment) []rag.Chunk {
	chunks := make([]rag.Chunk, 0, len(enriched))
	for i, e := range enriched {
		chunk := rag.Chunk{
			Text:          mergedText(e),
			SourceID:      sourceID,
			SequenceIndex: i,
			SectionTitle:  e.SectionTitle,
			Keywords:      e.Keywords,
		}
		if p.tagger != nil {
			chunk.Entities = p.tagger.Tag(ctx, e.RefinedText)
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// mergedText folds the enrichment metadata into the embedded text so titles
// and keywords contribute to similarity.
func mergedText(e enrich.Enrichment) string {
	var b strings.Builder
	if e.SectionTitle != "" {
		b.WriteString(e.SectionTitle)
		b.WriteString("\n")
	}
	if len(e.Keywords) > 0 {
		b.WriteString(strings.Join(e.Keywords, ", "))
		b.WriteString("\n")
	}
	b.WriteString(e.RefinedText)
	return b.String()
}

// persist embeds and writes chunks in paced batches. A failed batch is
// logged and skipped; later batches still run.
func (p *Pipeline) persist(ctx context.Context, chunks []rag.Chunk) (persisted, failed int) {
	for start := 0; start < len(chunks); start += p.persistBatch {
		if start > 0 && p.persistPause > 0 {
			if err := p.sleep(ctx, p.persistPause); err != nil {
				failed += len(chunks) - start
				return persisted, failed
			}
		}
		end := start + p.persistBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		if err := p.persistBatchOf(ctx, batch); err != nil {
			p.logger.Warn(ctx, "persist batch failed",
				zap.Int("batch_offset", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			failed += len(batch)
			metrics.IngestChunksFailed.Add(float64(len(batch)))
			continue
		}
		persisted += len(batch)
		metrics.IngestChunksPersisted.Add(float64(len(batch)))
	}
	return persisted, failed
}

func (p *Pipeline) persistBatchOf(ctx context.Context, batch []rag.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding batch: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embedding batch: got %d vectors for %d chunks", len(vectors), len(batch))
	}

	docs := make([]vectorstore.Document, len(batch))
	for i, c := range batch {
		docs[i] = vectorstore.Document{
			ID:        c.ID(),
			Content:   c.Text,
			Embedding: vectors[i],
			Metadata:  c.Metadata(),
		}
	}
	if err := p.store.Upsert(ctx, p.collection, docs); err != nil {
		return fmt.Errorf("writing batch: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
