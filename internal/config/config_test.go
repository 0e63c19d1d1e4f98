package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragkb/internal/domain"
	"ragkb/internal/scoring"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	opts, err := cfg.EngineOptions()
	require.NoError(t, err)
	assert.Equal(t, scoring.BM25(1.4, 0.75), opts.Strategy)
	assert.Equal(t, 900, opts.ChunkSize)
	assert.Equal(t, 120, opts.Overlap)
	assert.Equal(t, 4, opts.TopK)
	assert.Equal(t, 0.35, opts.Threshold)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
retrieval:
  strategy: cosine
  overlap: 0
  top_k: 8
store:
  type: sqlite
  sqlite:
    path: /tmp/kb.db
`))
	require.NoError(t, err)

	assert.Equal(t, 900, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 0, cfg.Retrieval.Overlap, "explicit zero overlap is kept")
	assert.Equal(t, "/tmp/kb.db", cfg.Store.SQLite.Path)

	opts, err := cfg.EngineOptions()
	require.NoError(t, err)
	assert.Equal(t, scoring.Cosine(), opts.Strategy)
	assert.Equal(t, 0.05, opts.Threshold)
	assert.Equal(t, 8, opts.TopK)
}

func TestParse_SQLiteGetsDefaultPath(t *testing.T) {
	cfg, err := Parse([]byte("store:\n  type: sqlite\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.Store.SQLite)
	assert.NotEmpty(t, cfg.Store.SQLite.Path)
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("RAGKB_TEST_DIR", "/srv/notes")

	cfg, err := Parse([]byte(`
loader:
  dir: ${RAGKB_TEST_DIR}
server:
  addr: ${RAGKB_TEST_UNSET_ADDR:-127.0.0.1:9000}
`))
	require.NoError(t, err)
	assert.Equal(t, "/srv/notes", cfg.Loader.Dir)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"overlap equals size", "retrieval:\n  chunk_size: 100\n  overlap: 100\n"},
		{"zero chunk size", "retrieval:\n  chunk_size: 0\n"},
		{"negative overlap", "retrieval:\n  overlap: -5\n"},
		{"unknown strategy", "retrieval:\n  strategy: dense\n"},
		{"b out of range", "retrieval:\n  bm25:\n    b: 1.5\n"},
		{"negative k1", "retrieval:\n  bm25:\n    k1: -1\n"},
		{"negative top k", "retrieval:\n  top_k: -1\n"},
		{"nan threshold", "retrieval:\n  thresholds:\n    bm25: .nan\n"},
		{"negative cache", "retrieval:\n  cache_size: -1\n"},
		{"unknown store", "store:\n  type: redis\n"},
		{"extension without dot", "loader:\n  extensions: [txt]\n"},
		{"unknown summarizer", "summarizer:\n  type: llm\n"},
		{"unknown env", "logging:\n  env: staging\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("retrieval: [unclosed"))
	assert.Error(t, err)
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Retrieval.Strategy = "cosine"
	cfg.Loader.Dir = "/data/kb"
	require.NoError(t, Save(path, cfg))

	_, err := os.Stat(path)
	require.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestDebounce(t *testing.T) {
	cfg := Default()
	cfg.Watch.DebounceMS = 250
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce())
}
