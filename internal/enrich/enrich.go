// Package enrich refines raw text chunks through an LLM before they are
// embedded. Each chunk gains a section title, a keyword list, and a cleaned
// body with OCR artifacts removed.
//
// Enrichment is best effort by contract: any model or parse failure falls
// back to the whitespace-normalized original text so ingestion never loses a
// chunk to a flaky upstream.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zoontopia/superdaddy/internal/llm"
	"github.com/zoontopia/superdaddy/internal/logging"
)

const systemPrompt = `You are a document refinement assistant for a parenting guidebook.
For each text fragment you receive, produce a JSON object with exactly these fields:
  "section_title": a short title describing the fragment (same language as the fragment),
  "keywords": up to 5 topical keywords as a JSON array of strings,
  "refined_text": the fragment with OCR artifacts, broken hyphenation and stray
    whitespace removed. Preserve the meaning and wording; do not summarize.
Respond with a JSON array of these objects, one per input fragment, in input
order. Output only the JSON array, nothing else.`

// Enrichment is the refined form of a single chunk.
type Enrichment struct {
	SectionTitle string
	Keywords     []string
	RefinedText  string
}

// payload mirrors the JSON schema the model is asked to produce.
type payload struct {
	SectionTitle string   `json:"section_title"`
	Keywords     []string `json:"keywords"`
	RefinedText  string   `json:"refined_text"`
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithBatchSize sets how many chunks are sent per model call.
func WithBatchSize(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithPause sets the delay between consecutive model calls.
func WithPause(d time.Duration) Option {
	return func(e *Enricher) { e.pause = d }
}

// WithSleeper replaces the inter-batch sleep, for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Enricher) { e.sleep = sleep }
}

// Enricher batches chunks through an LLM for refinement.
type Enricher struct {
	completer llm.Completer
	logger    *logging.Logger
	batchSize int
	pause     time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates an Enricher with the given completer.
func New(completer llm.Completer, logger *logging.Logger, opts ...Option) *Enricher {
	e := &Enricher{
		completer: completer,
		logger:    logger,
		batchSize: 5,
		pause:     time.Second,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EnrichAll refines chunks in batches, pausing between batches to stay
// under provider rate limits. The result always has one entry per input
// chunk, in input order. The only error returned is context cancellation.
func (e *Enricher) EnrichAll(ctx context.Context, chunks []string) ([]Enrichment, error) {
	out := make([]Enrichment, 0, len(chunks))
	for start := 0; start < len(chunks); start += e.batchSize {
		if start > 0 && e.pause > 0 {
			if err := e.sleep(ctx, e.pause); err != nil {
				return nil, err
			}
		}
		end := start + e.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		out = append(out, e.enrichBatch(ctx, batch, start)...)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// enrichBatch refines a single batch, falling back to Fallback for the whole
// batch on model failure and per item on partial or malformed responses.
func (e *Enricher) enrichBatch(ctx context.Context, batch []string, offset int) []Enrichment {
	prompt, err := buildPrompt(batch)
	if err != nil {
		e.logger.Warn(ctx, "failed to encode refinement batch, keeping originals",
			zap.Int("batch_offset", offset), zap.Error(err))
		return fallbackAll(batch)
	}

	raw, err := e.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		e.logger.Warn(ctx, "refinement call failed, keeping originals",
			zap.Int("batch_offset", offset),
			zap.Int("batch_size", len(batch)),
			zap.Error(err))
		return fallbackAll(batch)
	}

	parsed, err := parseResponse(raw)
	if err != nil {
		e.logger.Warn(ctx, "unparseable refinement response, keeping originals",
			zap.Int("batch_offset", offset), zap.Error(err))
		return fallbackAll(batch)
	}
	if len(parsed) != len(batch) {
		e.logger.Warn(ctx, "refinement response length mismatch",
			zap.Int("batch_offset", offset),
			zap.Int("want", len(batch)),
			zap.Int("got", len(parsed)))
	}

	out := make([]Enrichment, len(batch))
	for i, original := range batch {
		if i < len(parsed) && strings.TrimSpace(parsed[i].RefinedText) != "" {
			out[i] = Enrichment{
				SectionTitle: strings.TrimSpace(parsed[i].SectionTitle),
				Keywords:     cleanKeywords(parsed[i].Keywords),
				RefinedText:  strings.TrimSpace(parsed[i].RefinedText),
			}
			continue
		}
		out[i] = Fallback(original)
	}
	return out
}

// Fallback is the enrichment used when the model cannot improve a chunk:
// the whitespace-normalized original with no title or keywords.
func Fallback(original string) Enrichment {
	return Enrichment{RefinedText: NormalizeWhitespace(original)}
}

// NormalizeWhitespace collapses all runs of whitespace to single spaces.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func fallbackAll(batch []string) []Enrichment {
	out := make([]Enrichment, len(batch))
	for i, c := range batch {
		out[i] = Fallback(c)
	}
	return out
}

func buildPrompt(batch []string) (string, error) {
	encoded, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("encoding batch: %w", err)
	}
	return fmt.Sprintf("Refine these %d fragments:\n%s", len(batch), encoded), nil
}

// parseResponse decodes the model's JSON array, tolerating markdown code
// fences around the payload.
func parseResponse(raw string) ([]payload, error) {
	cleaned := stripCodeFence(raw)
	var parsed []payload
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("decoding refinement response: %w", err)
	}
	return parsed, nil
}

// stripCodeFence removes a surrounding markdown fence such as ```json ... ```.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func cleanKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k != "" {
			out = append(out, k)
		}
	}
	return out
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
