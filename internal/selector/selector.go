// Package selector asks the LLM which retrieved candidates actually answer
// the question.
//
// The model sees the numbered candidates and replies with the relevant
// numbers, or NONE when nothing applies. Selection never fails: a model
// error or an unparseable reply falls back to the single best vector match
// rather than dropping the request.
package selector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zoontopia/superdaddy/internal/llm"
	"github.com/zoontopia/superdaddy/internal/logging"
	"github.com/zoontopia/superdaddy/internal/rag"
)

const systemPrompt = `You judge which guidebook excerpts are relevant to a parent's question.
You will receive a question and a numbered list of excerpts. Reply with the
numbers of the excerpts that help answer the question, comma separated, most
relevant first. If none of the excerpts are relevant, reply with the single
word NONE. Output only the numbers or NONE.`

// noneSentinel is the model's explicit "nothing relevant" reply.
const noneSentinel = "NONE"

// Selector filters candidates by LLM relevance judgment.
type Selector struct {
	completer llm.Completer
	logger    *logging.Logger
}

// New creates a Selector.
func New(completer llm.Completer, logger *logging.Logger) *Selector {
	return &Selector{completer: completer, logger: logger}
}

// Select returns the candidates the model judged relevant, in the model's
// preference order. An explicit NONE reply returns an empty selection. Any
// failure keeps the top vector match, so retrieval output is never lost to
// a flaky judgment call.
func (s *Selector) Select(ctx context.Context, question string, candidates []rag.Candidate) []rag.Candidate {
	if len(candidates) == 0 {
		return nil
	}

	raw, err := s.completer.Complete(ctx, systemPrompt, buildPrompt(question, candidates))
	if err != nil {
		s.logger.Warn(ctx, "relevance judgment failed, keeping top candidate", zap.Error(err))
		return candidates[:1]
	}

	// The reply counts as an explicit "nothing relevant" whenever it
	// contains the sentinel, so wordy refusals like "NONE of these apply"
	// still produce an empty selection. The top-1 fallback below is
	// reserved for replies that neither refuse nor name a candidate.
	if strings.Contains(strings.ToUpper(strings.TrimSpace(raw)), noneSentinel) {
		return nil
	}

	indices := parseIndices(raw, len(candidates))
	if len(indices) == 0 {
		s.logger.Warn(ctx, "unparseable relevance reply, keeping top candidate",
			zap.String("reply", raw))
		return candidates[:1]
	}

	out := make([]rag.Candidate, 0, len(indices))
	for _, idx := range indices {
		out = append(out, candidates[idx])
	}
	return out
}

// buildPrompt renders the question and the numbered candidate list.
func buildPrompt(question string, candidates []rag.Candidate) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nExcerpts:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c.Chunk.Text)
	}
	return b.String()
}

// parseIndices extracts zero-based candidate indices from the model's reply.
// Tokens are stripped to their digits, so replies like "1." or "[2]" still
// parse. Out-of-range and duplicate numbers are dropped.
func parseIndices(raw string, count int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, token := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == ' '
	}) {
		digits := keepDigits(token)
		if digits == "" {
			continue
		}
		n, err := strconv.Atoi(digits)
		if err != nil || n < 1 || n > count || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n-1)
	}
	return out
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
