package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoontopia/superdaddy/internal/chat"
	"github.com/zoontopia/superdaddy/internal/config"
	"github.com/zoontopia/superdaddy/internal/ingest"
	"github.com/zoontopia/superdaddy/internal/logging"
)

type fakeChatter struct {
	answer chat.Answer
	err    error
}

func (f *fakeChatter) Ask(_ context.Context, question string) (chat.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return chat.Answer{}, chat.ErrEmptyQuestion
	}
	return f.answer, f.err
}

type fakeIngester struct {
	report  ingest.Report
	block   chan struct{}
	started sync.WaitGroup
}

func (f *fakeIngester) Run(_ context.Context, source ingest.Source, _ bool) ingest.Report {
	if f.block != nil {
		f.started.Done()
		<-f.block
	}
	report := f.report
	if report.SourceID == "" {
		report.SourceID = source.ID()
	}
	return report
}

func newTestServer(t *testing.T, chatter Chatter, ingester Ingester, ingestCfg config.IngestionConfig) *Server {
	t.Helper()
	s, err := New(chatter, ingester, config.ServerConfig{Host: "localhost", Port: 0}, ingestCfg, logging.NewNop())
	require.NoError(t, err)
	return s
}

func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func sourceFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guide.txt")
	require.NoError(t, os.WriteFile(path, []byte("some text"), 0o600))
	return path
}

func TestNew_RequiresDependencies(t *testing.T) {
	logger := logging.NewNop()
	_, err := New(nil, &fakeIngester{}, config.ServerConfig{}, config.IngestionConfig{}, logger)
	assert.Error(t, err)
	_, err = New(&fakeChatter{}, nil, config.ServerConfig{}, config.IngestionConfig{}, logger)
	assert.Error(t, err)
	_, err = New(&fakeChatter{}, &fakeIngester{}, config.ServerConfig{}, config.IngestionConfig{}, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeChatter{}, &fakeIngester{}, config.IngestionConfig{})
	rec := doJSON(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeChatter{}, &fakeIngester{}, config.IngestionConfig{})
	rec := doJSON(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestChat(t *testing.T) {
	chatter := &fakeChatter{answer: chat.Answer{Text: "Try a routine.", Grounded: true, ContextChunks: 2}}
	s := newTestServer(t, chatter, &fakeIngester{}, config.IngestionConfig{})

	rec := doJSON(s, http.MethodPost, "/api/chat", `{"question":"how to sleep train?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var answer chat.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.Equal(t, "Try a routine.", answer.Text)
	assert.True(t, answer.Grounded)
	assert.Equal(t, 2, answer.ContextChunks)
}

func TestChat_EmptyQuestion(t *testing.T) {
	s := newTestServer(t, &fakeChatter{}, &fakeIngester{}, config.IngestionConfig{})
	rec := doJSON(s, http.MethodPost, "/api/chat", `{"question":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_PipelineError(t *testing.T) {
	s := newTestServer(t, &fakeChatter{err: errors.New("boom")}, &fakeIngester{}, config.IngestionConfig{})
	rec := doJSON(s, http.MethodPost, "/api/chat", `{"question":"q"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChat_MalformedBody(t *testing.T) {
	s := newTestServer(t, &fakeChatter{}, &fakeIngester{}, config.IngestionConfig{})
	rec := doJSON(s, http.MethodPost, "/api/chat", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest_UsesConfiguredSource(t *testing.T) {
	path := sourceFile(t)
	ingester := &fakeIngester{report: ingest.Report{Status: ingest.StatusCompleted, Persisted: 3}}
	s := newTestServer(t, &fakeChatter{}, ingester, config.IngestionConfig{SourcePath: path, SourceID: "guide"})

	rec := doJSON(s, http.MethodPost, "/api/ingest", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var report ingest.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, ingest.StatusCompleted, report.Status)
	assert.Equal(t, 3, report.Persisted)
}

func TestIngest_NoSourceConfigured(t *testing.T) {
	s := newTestServer(t, &fakeChatter{}, &fakeIngester{}, config.IngestionConfig{})
	rec := doJSON(s, http.MethodPost, "/api/ingest", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest_FailureReturns500(t *testing.T) {
	path := sourceFile(t)
	ingester := &fakeIngester{report: ingest.Report{Status: ingest.StatusFailed, Error: "no chunks persisted"}}
	s := newTestServer(t, &fakeChatter{}, ingester, config.IngestionConfig{SourcePath: path})

	rec := doJSON(s, http.MethodPost, "/api/ingest", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIngest_ConcurrentRunRejected(t *testing.T) {
	path := sourceFile(t)
	ingester := &fakeIngester{
		report: ingest.Report{Status: ingest.StatusCompleted},
		block:  make(chan struct{}),
	}
	ingester.started.Add(1)
	s := newTestServer(t, &fakeChatter{}, ingester, config.IngestionConfig{SourcePath: path})

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- doJSON(s, http.MethodPost, "/api/ingest", `{}`) }()
	ingester.started.Wait()

	rec := doJSON(s, http.MethodPost, "/api/ingest", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(ingester.block)
	first := <-done
	assert.Equal(t, http.StatusOK, first.Code)
}
