package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9999
retrieval:
  mode: vector
  top_k: 3
  candidate_pool: 3
ingestion:
  chunk_size: 200
  chunk_overlap: 40
  persist_pause: 2s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, ModeVector, cfg.Retrieval.Mode)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 200, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 2*time.Second, cfg.Ingestion.PersistPause.Duration())

	// Untouched sections keep defaults.
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9999
`)
	t.Setenv("SERVER_PORT", "7777")
	t.Setenv("RETRIEVAL_TOP_K", "2")
	t.Setenv("RETRIEVAL_CANDIDATE_POOL", "4")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Retrieval.TopK)
	assert.Equal(t, 4, cfg.Retrieval.CandidatePool)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeConfigFile(t, `
ingestion:
  chunk_size: 100
  chunk_overlap: 100
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadDerivesSourceID(t *testing.T) {
	path := writeConfigFile(t, `
ingestion:
  source_path: /data/guides/parenting_guide.txt
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "parenting_guide.txt", cfg.Ingestion.SourceID)
}
