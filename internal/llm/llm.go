// Package llm provides the language-model capability used for answer
// generation and auxiliary text transforms (refinement, keyword extraction,
// relevance judging).
package llm

import (
	"context"
	"errors"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyResponse indicates the model returned no content.
	ErrEmptyResponse = errors.New("empty response from model")
)

// Completer is the single capability the rest of the system depends on:
// one blocking completion call with a system and a user prompt.
//
// Implementations must support long-context prompts; candidate dumps built by
// the relevance selector can be large.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// retryableError marks an error as transient so the retry loop keeps going.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re *retryableError
	if errors.As(err, &re) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
