package entities

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoontopia/superdaddy/internal/logging"
	"github.com/zoontopia/superdaddy/internal/vectorstore"
)

type fakeCompleter struct {
	response string
	err      error
	calls    int
}

func (f *fakeCompleter) Complete(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.response, f.err
}

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

// memStore is an in-memory Store covering just what the registry uses.
type memStore struct {
	mu      sync.Mutex
	docs    map[string]vectorstore.Document
	upserts int
	getErr  error
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]vectorstore.Document)}
}

func (m *memStore) EnsureCollection(context.Context, string, int) error { return nil }

func (m *memStore) Upsert(_ context.Context, _ string, docs []vectorstore.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return nil
}

func (m *memStore) Search(context.Context, string, []float32, int, float32, map[string]string) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (m *memStore) Get(_ context.Context, _ string, ids []string) ([]vectorstore.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []vectorstore.Document
	for _, id := range ids {
		if d, ok := m.docs[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func TestParseList(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		limit int
		want  []string
	}{
		{name: "simple list", raw: "sleep training, tantrums, weaning", limit: 5,
			want: []string{"sleep training", "tantrums", "weaning"}},
		{name: "none sentinel", raw: "NONE", limit: 5, want: nil},
		{name: "none lowercase", raw: "none", limit: 5, want: nil},
		{name: "empty", raw: "   ", limit: 5, want: nil},
		{name: "dedupes case insensitively", raw: "Tantrums, tantrums, TANTRUMS", limit: 5,
			want: []string{"Tantrums"}},
		{name: "caps at limit", raw: "a, b, c, d", limit: 2, want: []string{"a", "b"}},
		{name: "skips blanks", raw: "a, , b,", limit: 5, want: []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseList(tt.raw, tt.limit))
		})
	}
}

func TestExtract(t *testing.T) {
	completer := &fakeCompleter{response: "sleep training, bedtime routine"}
	e := NewExtractor(completer, logging.NewNop(), 5)

	got := e.Extract(context.Background(), "How do I start sleep training?")
	assert.Equal(t, []string{"sleep training", "bedtime routine"}, got)
	assert.Equal(t, 1, completer.calls)
}

func TestExtract_FailureIsEmpty(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("model down")}
	e := NewExtractor(completer, logging.NewNop(), 5)

	assert.Nil(t, e.Extract(context.Background(), "anything"))
}

func TestExtract_EmptyTextSkipsModel(t *testing.T) {
	completer := &fakeCompleter{response: "should not be called"}
	e := NewExtractor(completer, logging.NewNop(), 5)

	assert.Nil(t, e.Extract(context.Background(), "  \n "))
	assert.Zero(t, completer.calls)
}

func TestEntityID_Deterministic(t *testing.T) {
	assert.Equal(t, EntityID("Sleep Training"), EntityID("sleep  training"))
	assert.NotEqual(t, EntityID("sleep training"), EntityID("tantrums"))
}

func TestRegister_CreatesOnce(t *testing.T) {
	store := newMemStore()
	embedder := &fakeEmbedder{}
	r := NewRegistry(store, embedder, "entities", logging.NewNop())

	got := r.Register(context.Background(), []string{"Sleep Training", "Tantrums"})
	assert.Equal(t, []string{"sleep training", "tantrums"}, got)
	assert.Equal(t, 2, store.upserts)

	// Second registration hits the run cache, no extra writes or embeds.
	got = r.Register(context.Background(), []string{"sleep training"})
	assert.Equal(t, []string{"sleep training"}, got)
	assert.Equal(t, 2, store.upserts)
	assert.Equal(t, 2, embedder.calls)
}

func TestRegister_ExistingEntityNotRewritten(t *testing.T) {
	store := newMemStore()
	id := EntityID("weaning")
	store.docs[id] = vectorstore.Document{ID: id, Content: "weaning"}

	r := NewRegistry(store, &fakeEmbedder{}, "entities", logging.NewNop())
	got := r.Register(context.Background(), []string{"Weaning"})
	require.Equal(t, []string{"weaning"}, got)
	assert.Zero(t, store.upserts)
}

func TestRegister_FailuresAreSkipped(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("store unavailable")

	r := NewRegistry(store, &fakeEmbedder{}, "entities", logging.NewNop())
	got := r.Register(context.Background(), []string{"sleep training"})
	assert.Empty(t, got)
}

func TestRegister_ConcurrentSameName(t *testing.T) {
	store := newMemStore()
	embedder := &fakeEmbedder{}
	r := NewRegistry(store, embedder, "entities", logging.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register(context.Background(), []string{"tantrums"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.upserts)
	assert.Equal(t, 1, embedder.calls)
}
