package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Source supplies the raw document to ingest as an ordered list of pages.
type Source interface {
	// ID identifies the source. Chunk IDs and idempotency checks key on it,
	// so it must be stable across runs.
	ID() string

	// Pages returns the document's pages in reading order. Empty pages are
	// already filtered out.
	Pages(ctx context.Context) ([]string, error)
}

// FileSource reads a pre-extracted text file. Pages are separated by form
// feeds, the convention PDF-to-text extractors use; a file without form
// feeds is a single page.
type FileSource struct {
	path string
	id   string
}

// NewFileSource creates a FileSource. When id is empty, the file's base name
// without extension is used.
func NewFileSource(path, id string) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("source path is required")
	}
	if id == "" {
		base := filepath.Base(path)
		id = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &FileSource{path: path, id: id}, nil
}

// ID returns the source identifier.
func (s *FileSource) ID() string { return s.id }

// Pages reads the file and splits it on form feeds.
func (s *FileSource) Pages(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading source %s: %w", s.path, err)
	}

	var pages []string
	for _, page := range strings.Split(string(data), "\f") {
		if strings.TrimSpace(page) != "" {
			pages = append(pages, page)
		}
	}
	return pages, nil
}

// StaticSource serves fixed pages, for tests and programmatic ingestion.
type StaticSource struct {
	SourceID  string
	PageTexts []string
}

// ID returns the source identifier.
func (s *StaticSource) ID() string { return s.SourceID }

// Pages returns the fixed pages.
func (s *StaticSource) Pages(context.Context) ([]string, error) {
	return s.PageTexts, nil
}
