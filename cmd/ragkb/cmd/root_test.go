package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragkb/internal/domain"
	"ragkb/internal/loader"
)

// fixture writes a sqlite-backed config and a small notes directory.
func fixture(t *testing.T) (cfgPath, notes string) {
	t.Helper()
	root := t.TempDir()
	notes = filepath.Join(root, "notes")
	require.NoError(t, os.MkdirAll(notes, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(notes, "cells.txt"),
		[]byte("Mitochondria produce energy for the cell.\n\nMitochondria have their own DNA."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(notes, "proteins.md"),
		[]byte("Ribosomes synthesize proteins from amino acids."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(notes, "image.png"), []byte("binary"), 0o644))

	cfgPath = filepath.Join(root, "config.yaml")
	cfg := "store:\n  type: sqlite\n  sqlite:\n    path: " + filepath.Join(root, "kb.db") + "\n" +
		"logging:\n  env: local\n  level: error\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath, notes
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestIndexThenSearch(t *testing.T) {
	cfg, notes := fixture(t)

	out, err := run(t, "", "--config", cfg, "index", notes)
	require.NoError(t, err)
	var indexed struct {
		Sync  loader.Result `json:"sync"`
		Stats domain.Stats  `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &indexed))
	assert.Equal(t, 2, indexed.Sync.Added)
	assert.Equal(t, 2, indexed.Stats.Documents)
	assert.Equal(t, uint64(1), indexed.Stats.Generation)

	// the sqlite store keeps the documents for the next run
	out, err = run(t, "", "--config", cfg, "search", "mitochondria", "energy", "--threshold", "0")
	require.NoError(t, err)
	var found struct {
		Query   string                `json:"query"`
		K       int                   `json:"k"`
		Results []domain.SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &found))
	assert.Equal(t, "mitochondria energy", found.Query)
	assert.Equal(t, 4, found.K)
	require.NotEmpty(t, found.Results)
	assert.Equal(t, "cells.txt", found.Results[0].Title)

	out, err = run(t, "", "--config", cfg, "index", notes)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &indexed))
	assert.Equal(t, 2, indexed.Sync.Unchanged)
	assert.Zero(t, indexed.Sync.Added)
}

func TestSearch_StrategyOverrideAndLimit(t *testing.T) {
	cfg, notes := fixture(t)

	out, err := run(t, "", "--config", cfg, "--strategy", "cosine", "search", "ribosomes", "--dir", notes, "-k", "1")
	require.NoError(t, err)
	var found struct {
		K         int                   `json:"k"`
		Threshold float64               `json:"threshold"`
		Results   []domain.SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &found))
	assert.Equal(t, 1, found.K)
	assert.Equal(t, 0.05, found.Threshold)
	require.Len(t, found.Results, 1)
	assert.Equal(t, "proteins.md", found.Results[0].Title)
}

func TestSearch_Errors(t *testing.T) {
	cfg, _ := fixture(t)

	_, err := run(t, "", "--config", cfg, "--strategy", "lsa", "search", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = run(t, "", "--config", cfg, "search", "x", "-k", "-1")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = run(t, "", "--config", cfg, "search")
	assert.Error(t, err)
}

func TestIndex_RequiresDirectory(t *testing.T) {
	cfg, _ := fixture(t)

	_, err := run(t, "", "--config", cfg, "index")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestDocsLifecycle(t *testing.T) {
	cfg, _ := fixture(t)

	out, err := run(t, "Ribosomes build proteins.", "--config", cfg, "docs", "add", "-", "--title", "Doc B", "--id", "b")
	require.NoError(t, err)
	assert.Equal(t, "b\n", out)

	_, err = run(t, "   ", "--config", cfg, "docs", "add", "-")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	out, err = run(t, "", "--config", cfg, "docs", "list")
	require.NoError(t, err)
	var docs []domain.Document
	require.NoError(t, json.Unmarshal([]byte(out), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "Doc B", docs[0].Title)

	out, err = run(t, "", "--config", cfg, "stats")
	require.NoError(t, err)
	var st domain.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 1, st.Documents)

	_, err = run(t, "", "--config", cfg, "docs", "rm", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = run(t, "", "--config", cfg, "docs", "rm", "b")
	require.NoError(t, err)

	out, err = run(t, "", "--config", cfg, "docs", "list")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}
