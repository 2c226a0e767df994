// Package chunker splits cleaned document text into overlapping retrieval
// units.
//
// Sizes are word counts, not bytes: embedding models budget tokens, and word
// counts are the stable approximation that survives OCR noise. The splitter
// prefers ending a chunk on a sentence boundary within a small tolerance
// window before falling back to a hard cut.
package chunker

import (
	"fmt"
	"strings"
)

// Splitter splits text into overlapping chunks.
type Splitter struct {
	// TargetSize is the chunk size in words.
	TargetSize int
	// Overlap is the number of words shared between consecutive chunks.
	// Must be strictly less than TargetSize.
	Overlap int
}

// New creates a Splitter, validating its parameters.
func New(targetSize, overlap int) (*Splitter, error) {
	if targetSize <= 0 {
		return nil, fmt.Errorf("target size must be positive, got %d", targetSize)
	}
	if overlap < 0 || overlap >= targetSize {
		return nil, fmt.Errorf("overlap must be in [0, target size), got %d", overlap)
	}
	return &Splitter{TargetSize: targetSize, Overlap: overlap}, nil
}

// Split splits text into ordered, overlapping chunks that fully cover the
// input. Input shorter than the target size yields exactly one chunk; empty
// input yields none.
func (s *Splitter) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= s.TargetSize {
		return []string{strings.Join(words, " ")}
	}

	// Tolerance window for the sentence-boundary search: back off at most
	// a fifth of the target size before hard-cutting.
	tolerance := s.TargetSize / 5
	if tolerance < 1 {
		tolerance = 1
	}

	var chunks []string
	start := 0
	for {
		end := start + s.TargetSize
		if end >= len(words) {
			chunks = append(chunks, strings.Join(words[start:], " "))
			break
		}

		if cut := findBoundary(words, start, end, tolerance); cut > start {
			end = cut
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))

		next := end - s.Overlap
		if next <= start {
			// Boundary search shrank the chunk below the overlap;
			// step forward without overlap to guarantee progress.
			next = end
		}
		start = next
	}
	return chunks
}

// findBoundary searches backwards from end (exclusive) within the tolerance
// window for a word that closes a sentence. Returns the cut position after
// that word, or 0 when no boundary is found.
func findBoundary(words []string, start, end, tolerance int) int {
	lowest := end - 1 - tolerance
	if lowest < start {
		lowest = start
	}
	for i := end - 1; i > lowest; i-- {
		if endsSentence(words[i]) {
			return i + 1
		}
	}
	return 0
}

// endsSentence reports whether a word ends with sentence-closing
// punctuation, allowing for trailing quotes and brackets.
func endsSentence(word string) bool {
	trimmed := strings.TrimRight(word, `"')]}`)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}
