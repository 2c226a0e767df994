package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoontopia/superdaddy/internal/logging"
	"github.com/zoontopia/superdaddy/internal/rag"
)

type fakeRetriever struct {
	candidates []rag.Candidate
	err        error
	gotQuery   string
}

func (f *fakeRetriever) Retrieve(_ context.Context, question string) ([]rag.Candidate, error) {
	f.gotQuery = question
	return f.candidates, f.err
}

func (f *fakeRetriever) Name() string { return "fake" }

type passSelector struct{ none bool }

func (s passSelector) Select(_ context.Context, _ string, candidates []rag.Candidate) []rag.Candidate {
	if s.none {
		return nil
	}
	return candidates
}

type joinBuilder struct{}

func (joinBuilder) Build(_ context.Context, selected []rag.Candidate) (string, []rag.Chunk) {
	var texts []string
	var chunks []rag.Chunk
	for _, c := range selected {
		texts = append(texts, c.Chunk.Text)
		chunks = append(chunks, c.Chunk)
	}
	return strings.Join(texts, "\n\n"), chunks
}

type fakeCompleter struct {
	response string
	err      error
	system   string
	prompt   string
}

func (f *fakeCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	f.system = system
	f.prompt = prompt
	return f.response, f.err
}

func candidate(text string, seq int) rag.Candidate {
	return rag.Candidate{Chunk: rag.Chunk{Text: text, SourceID: "guide", SequenceIndex: seq}}
}

func TestAsk_GroundedAnswer(t *testing.T) {
	retriever := &fakeRetriever{candidates: []rag.Candidate{
		candidate("Start a consistent bedtime routine.", 3),
	}}
	completer := &fakeCompleter{response: "  Try a consistent routine.  "}
	s := New(retriever, passSelector{}, joinBuilder{}, completer, logging.NewNop())

	answer, err := s.Ask(context.Background(), "How do I get my baby to sleep?")
	require.NoError(t, err)
	assert.Equal(t, "Try a consistent routine.", answer.Text)
	assert.True(t, answer.Grounded)
	assert.Equal(t, 1, answer.ContextChunks)
	assert.Equal(t, "How do I get my baby to sleep?", retriever.gotQuery)
	assert.Contains(t, completer.prompt, "Start a consistent bedtime routine.")
	assert.Contains(t, completer.prompt, "Question: How do I get my baby to sleep?")
	assert.NotContains(t, completer.prompt, emptyContextSentinel)
}

func TestAsk_EmptyContextUsesSentinel(t *testing.T) {
	retriever := &fakeRetriever{candidates: []rag.Candidate{candidate("irrelevant", 0)}}
	completer := &fakeCompleter{response: "General guidance only."}
	s := New(retriever, passSelector{none: true}, joinBuilder{}, completer, logging.NewNop())

	answer, err := s.Ask(context.Background(), "question about something else")
	require.NoError(t, err)
	assert.False(t, answer.Grounded)
	assert.Zero(t, answer.ContextChunks)
	assert.Contains(t, completer.prompt, emptyContextSentinel)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	s := New(&fakeRetriever{}, passSelector{}, joinBuilder{}, &fakeCompleter{}, logging.NewNop())
	_, err := s.Ask(context.Background(), "   \n ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestAsk_RetrieverError(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("store down")}
	s := New(retriever, passSelector{}, joinBuilder{}, &fakeCompleter{}, logging.NewNop())
	_, err := s.Ask(context.Background(), "question")
	assert.Error(t, err)
}

func TestAsk_CompleterError(t *testing.T) {
	retriever := &fakeRetriever{candidates: []rag.Candidate{candidate("text", 0)}}
	completer := &fakeCompleter{err: errors.New("model down")}
	s := New(retriever, passSelector{}, joinBuilder{}, completer, logging.NewNop())
	_, err := s.Ask(context.Background(), "question")
	assert.Error(t, err)
}

func TestAsk_SystemPromptMentionsPediatrician(t *testing.T) {
	retriever := &fakeRetriever{}
	completer := &fakeCompleter{response: "ok"}
	s := New(retriever, passSelector{}, joinBuilder{}, completer, logging.NewNop())

	_, err := s.Ask(context.Background(), "question")
	require.NoError(t, err)
	assert.Contains(t, completer.system, "pediatrician")
}
