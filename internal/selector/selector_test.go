package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoontopia/superdaddy/internal/logging"
	"github.com/zoontopia/superdaddy/internal/rag"
)

type fakeCompleter struct {
	response string
	err      error
	prompt   string
}

func (f *fakeCompleter) Complete(_ context.Context, _, userPrompt string) (string, error) {
	f.prompt = userPrompt
	return f.response, f.err
}

func candidates(n int) []rag.Candidate {
	out := make([]rag.Candidate, n)
	for i := range out {
		out[i] = rag.Candidate{
			Chunk: rag.Chunk{
				Text:          "chunk " + string(rune('A'+i)),
				SourceID:      "guide",
				SequenceIndex: i,
			},
			Score:      1 - float32(i)*0.1,
			VectorRank: i,
		}
	}
	return out
}

func TestSelect_PicksInModelOrder(t *testing.T) {
	completer := &fakeCompleter{response: "3, 1"}
	s := New(completer, logging.NewNop())

	got := s.Select(context.Background(), "question", candidates(3))
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Chunk.SequenceIndex)
	assert.Equal(t, 0, got[1].Chunk.SequenceIndex)

	// The prompt numbers candidates from 1.
	assert.Contains(t, completer.prompt, "1. chunk A")
	assert.Contains(t, completer.prompt, "3. chunk C")
}

func TestSelect_NoneMeansEmpty(t *testing.T) {
	replies := []string{
		"NONE",
		"none",
		"  None \n",
		"NONE.",
		"NONE of the excerpts are relevant",
		"I think none of these apply here.",
	}
	for _, reply := range replies {
		s := New(&fakeCompleter{response: reply}, logging.NewNop())
		got := s.Select(context.Background(), "question", candidates(2))
		assert.Empty(t, got, "reply %q", reply)
	}
}

func TestSelect_ToleratesDecoratedNumbers(t *testing.T) {
	s := New(&fakeCompleter{response: "[2], 1."}, logging.NewNop())
	got := s.Select(context.Background(), "question", candidates(3))
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Chunk.SequenceIndex)
	assert.Equal(t, 0, got[1].Chunk.SequenceIndex)
}

func TestSelect_DropsOutOfRangeAndDuplicates(t *testing.T) {
	s := New(&fakeCompleter{response: "2, 9, 2, 0"}, logging.NewNop())
	got := s.Select(context.Background(), "question", candidates(3))
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Chunk.SequenceIndex)
}

func TestSelect_UnparseableFallsBackToTop(t *testing.T) {
	s := New(&fakeCompleter{response: "the second excerpt seems best"}, logging.NewNop())
	got := s.Select(context.Background(), "question", candidates(3))
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Chunk.SequenceIndex)
}

func TestSelect_ModelErrorFallsBackToTop(t *testing.T) {
	s := New(&fakeCompleter{err: errors.New("model down")}, logging.NewNop())
	got := s.Select(context.Background(), "question", candidates(2))
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Chunk.SequenceIndex)
}

func TestSelect_NoCandidates(t *testing.T) {
	completer := &fakeCompleter{response: "1"}
	s := New(completer, logging.NewNop())
	assert.Nil(t, s.Select(context.Background(), "question", nil))
	assert.Empty(t, completer.prompt, "no model call without candidates")
}
