// Package chat runs the question answering pipeline: retrieve candidates,
// judge their relevance, expand the survivors into a reading context, and
// ask the answering model.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zoontopia/superdaddy/internal/contextbuilder"
	"github.com/zoontopia/superdaddy/internal/llm"
	"github.com/zoontopia/superdaddy/internal/logging"
	"github.com/zoontopia/superdaddy/internal/metrics"
	"github.com/zoontopia/superdaddy/internal/rag"
)

const systemPrompt = `You are Superdaddy, a warm and practical parenting assistant.
Answer the parent's question using the guidebook context provided. Prefer the
guidebook's advice over general knowledge and keep the answer concrete and
reassuring. If the context says no guidebook information was found, say so
openly and give careful general guidance instead. For anything that sounds
medical (fever, injuries, unusual symptoms), always recommend consulting a
pediatrician. Answer in the language the question was asked in.`

// emptyContextSentinel replaces the context block when retrieval found
// nothing relevant, so the model is told explicitly instead of being handed
// an empty string.
const emptyContextSentinel = "No relevant guidebook information was found for this question."

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("question is empty")

// Retriever finds candidate chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string) ([]rag.Candidate, error)
	Name() string
}

// Selector filters candidates by relevance.
type Selector interface {
	Select(ctx context.Context, question string, candidates []rag.Candidate) []rag.Candidate
}

// ContextBuilder expands a selection into the answer context.
type ContextBuilder interface {
	Build(ctx context.Context, selected []rag.Candidate) (string, []rag.Chunk)
}

// Answer is the pipeline's result.
type Answer struct {
	Text string `json:"answer"`
	// Grounded reports whether the answer was built from guidebook
	// context rather than the empty-context fallback.
	Grounded bool `json:"grounded"`
	// ContextChunks is the number of chunks behind the answer.
	ContextChunks int `json:"context_chunks"`
}

// Service orchestrates the question answering pipeline.
type Service struct {
	retriever Retriever
	selector  Selector
	builder   ContextBuilder
	completer llm.Completer
	logger    *logging.Logger
}

// New creates a chat Service.
func New(retriever Retriever, selector Selector, builder ContextBuilder, completer llm.Completer, logger *logging.Logger) *Service {
	return &Service{
		retriever: retriever,
		selector:  selector,
		builder:   builder,
		completer: completer,
		logger:    logger,
	}
}

// Ask answers a question from the ingested guidebook. When nothing relevant
// is found the model is asked to answer from general guidance and the result
// is marked ungrounded.
func (s *Service) Ask(ctx context.Context, question string) (Answer, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	candidates, err := s.retriever.Retrieve(ctx, question)
	if err != nil {
		metrics.ChatRequests.WithLabelValues(metrics.OutcomeError).Inc()
		return Answer{}, fmt.Errorf("retrieving candidates: %w", err)
	}

	selected := s.selector.Select(ctx, question, candidates)
	contextText, chunks := s.builder.Build(ctx, selected)

	s.logger.Info(ctx, "context assembled",
		zap.String("strategy", s.retriever.Name()),
		zap.Int("candidates", len(candidates)),
		zap.Int("selected", len(selected)),
		zap.String("context", contextbuilder.Preview(chunks)))

	grounded := contextText != ""
	text, err := s.completer.Complete(ctx, systemPrompt, buildPrompt(question, contextText))
	if err != nil {
		metrics.ChatRequests.WithLabelValues(metrics.OutcomeError).Inc()
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}

	outcome := metrics.OutcomeAnswered
	if !grounded {
		outcome = metrics.OutcomeNoMatch
	}
	metrics.ChatRequests.WithLabelValues(outcome).Inc()
	metrics.ChatDuration.Observe(time.Since(start).Seconds())

	return Answer{
		Text:          strings.TrimSpace(text),
		Grounded:      grounded,
		ContextChunks: len(chunks),
	}, nil
}

// buildPrompt renders the context block and the question. An empty context
// becomes the explicit sentinel.
func buildPrompt(question, contextText string) string {
	if contextText == "" {
		contextText = emptyContextSentinel
	}
	return fmt.Sprintf("Guidebook context:\n%s\n\nQuestion: %s", contextText, question)
}
