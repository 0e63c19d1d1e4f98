package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ragkb/internal/domain"
	"ragkb/internal/scoring"
	"ragkb/internal/store/memory"
)

type failingStore struct {
	*memory.Storage
	err error
}

func (s failingStore) GetAll(context.Context) ([]domain.Document, error) { return nil, s.err }

func newEngine(t *testing.T, store domain.DocumentStore, mutate ...func(*Options)) *Engine {
	t.Helper()
	opts := DefaultOptions()
	for _, m := range mutate {
		m(&opts)
	}
	e, err := New(store, opts, zaptest.NewLogger(t))
	require.NoError(t, err)
	return e
}

func addDocs(t *testing.T, store *memory.Storage, docs ...domain.Document) {
	t.Helper()
	for _, d := range docs {
		_, err := store.Add(context.Background(), d)
		require.NoError(t, err)
	}
}

func biologyStore(t *testing.T) *memory.Storage {
	store := memory.NewStorage()
	addDocs(t, store,
		domain.Document{ID: "a", Title: "Doc A", Text: "Mitochondria produce energy for the cell."},
		domain.Document{ID: "b", Title: "Doc B", Text: "Ribosomes synthesize proteins."},
	)
	return store
}

func TestSearch_RanksMatchingDocumentFirst(t *testing.T) {
	for _, s := range []scoring.Strategy{scoring.Cosine(), scoring.BM25(scoring.DefaultK1, scoring.DefaultB)} {
		t.Run(string(s.Kind), func(t *testing.T) {
			e := newEngine(t, biologyStore(t), func(o *Options) { o.Strategy = s })
			require.NoError(t, e.RebuildIndex(context.Background()))

			results, err := e.Search("mitochondria energy", 2, 0)
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.Equal(t, "a", results[0].DocumentID)
			assert.Equal(t, "a#0", results[0].ChunkID)
			for _, r := range results[1:] {
				assert.LessOrEqual(t, r.Score, results[0].Score)
			}

			passages, err := e.RetrieveTopK("mitochondria energy", 2, 0)
			require.NoError(t, err)
			require.NotEmpty(t, passages)
			assert.Equal(t, domain.Passage{Title: "Doc A", Text: "Mitochondria produce energy for the cell."}, passages[0])
		})
	}
}

// lineChunker emits one chunk per non-empty line.
type lineChunker struct{}

func (lineChunker) Chunk(doc domain.Document) []domain.Chunk {
	var out []domain.Chunk
	for _, line := range strings.Split(doc.Text, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		n := len(out)
		out = append(out, domain.Chunk{
			ID:         fmt.Sprintf("%s#%d", doc.ID, n),
			DocumentID: doc.ID,
			Ordinal:    n,
			Title:      doc.Title,
			Text:       line,
		})
	}
	return out
}

func TestRebuildIndex_UsesConfiguredChunker(t *testing.T) {
	store := memory.NewStorage()
	addDocs(t, store, domain.Document{ID: "a", Title: "Doc A", Text: "Cells divide.\nMitochondria produce energy.\nRibosomes make proteins."})
	e := newEngine(t, store, func(o *Options) {
		o.Chunker = lineChunker{}
		// ignored when a chunker is given
		o.ChunkSize, o.Overlap = 0, 0
	})
	require.NoError(t, e.RebuildIndex(context.Background()))

	assert.Equal(t, 3, e.Stats().ChunkCount)
	results, err := e.Search("mitochondria", 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a#1", results[0].ChunkID)
	assert.Equal(t, "Mitochondria produce energy.", results[0].Text)
}

func TestSearch_EmptyStore(t *testing.T) {
	e := newEngine(t, memory.NewStorage())
	require.NoError(t, e.RebuildIndex(context.Background()))

	passages, err := e.RetrieveTopK("anything", 4, 0.05)
	require.NoError(t, err)
	assert.NotNil(t, passages)
	assert.Empty(t, passages)

	st := e.Stats()
	assert.Equal(t, 0, st.ChunkCount)
	assert.Equal(t, 0, st.Documents)
	assert.Equal(t, uint64(1), st.Generation)
}

func TestSearch_BeforeFirstRebuild(t *testing.T) {
	e := newEngine(t, biologyStore(t))

	results, err := e.Search("mitochondria", 4, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, uint64(0), e.Stats().Generation)
}

func TestSearch_DegenerateQueries(t *testing.T) {
	e := newEngine(t, biologyStore(t))
	require.NoError(t, e.RebuildIndex(context.Background()))

	for _, tc := range []struct {
		name  string
		query string
		k     int
	}{
		{"zero k", "mitochondria", 0},
		{"empty query", "", 4},
		{"punctuation only", "?!...", 4},
		{"unknown words", "zebra giraffe", 4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			results, err := e.Search(tc.query, tc.k, 0)
			require.NoError(t, err)
			assert.NotNil(t, results)
			assert.Empty(t, results)
		})
	}
}

func TestSearch_InvalidArguments(t *testing.T) {
	e := newEngine(t, biologyStore(t))
	require.NoError(t, e.RebuildIndex(context.Background()))

	_, err := e.Search("cell", -1, 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	for _, th := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := e.Search("cell", 4, th)
		assert.True(t, errors.Is(err, domain.ErrInvalidArgument), "threshold %v", th)
	}
}

func TestSearch_ThresholdIsStrict(t *testing.T) {
	e := newEngine(t, biologyStore(t))
	require.NoError(t, e.RebuildIndex(context.Background()))

	results, err := e.Search("mitochondria", 4, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)

	exact, err := e.Search("mitochondria", 4, results[0].Score)
	require.NoError(t, err)
	assert.Empty(t, exact, "score equal to threshold is excluded")
}

func TestSearch_TopKAndOrdering(t *testing.T) {
	store := memory.NewStorage()
	for i := range 6 {
		addDocs(t, store, domain.Document{
			ID:    fmt.Sprintf("d%d", i),
			Title: fmt.Sprintf("Doc %d", i),
			Text:  strings.Repeat("cell ", i+1) + "filler text about biology",
		})
	}
	e := newEngine(t, store)
	require.NoError(t, e.RebuildIndex(context.Background()))

	results, err := e.Search("cell", 3, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.Equal(t, "d5", results[0].DocumentID)
}

func TestSearch_TiesKeepIndexOrder(t *testing.T) {
	store := memory.NewStorage()
	addDocs(t, store,
		domain.Document{ID: "x", Text: "same words here"},
		domain.Document{ID: "y", Text: "same words here"},
		domain.Document{ID: "z", Text: "same words here"},
	)
	e := newEngine(t, store, func(o *Options) { o.Strategy = scoring.Cosine() })
	require.NoError(t, e.RebuildIndex(context.Background()))

	results, err := e.Search("words", 3, -1)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"x", "y", "z"}, []string{results[0].DocumentID, results[1].DocumentID, results[2].DocumentID})
}

func TestRebuildIndex_RemovedDocumentDisappears(t *testing.T) {
	store := biologyStore(t)
	e := newEngine(t, store)
	ctx := context.Background()
	require.NoError(t, e.RebuildIndex(ctx))

	before, err := e.Search("mitochondria energy", 4, 0)
	require.NoError(t, err)
	require.NotEmpty(t, before)
	old := e.Snapshot()

	require.NoError(t, store.Remove(ctx, "a"))
	require.NoError(t, e.RebuildIndex(ctx))

	after, err := e.Search("mitochondria energy", 4, 0)
	require.NoError(t, err)
	for _, r := range after {
		assert.NotEqual(t, "a", r.DocumentID)
	}

	// earlier results and snapshots are untouched by the swap
	assert.Equal(t, "a", before[0].DocumentID)
	assert.Equal(t, "Mitochondria produce energy for the cell.", before[0].Text)
	assert.Equal(t, 2, old.ChunkCount())
	assert.Equal(t, 1, e.Snapshot().ChunkCount())
	assert.Equal(t, old.Generation()+1, e.Snapshot().Generation())
}

func TestRebuildIndex_StoreErrorKeepsPreviousIndex(t *testing.T) {
	mem := biologyStore(t)
	e := newEngine(t, mem)
	require.NoError(t, e.RebuildIndex(context.Background()))
	good := e.Snapshot()

	boom := errors.New("disk on fire")
	e.store = failingStore{Storage: mem, err: boom}

	err := e.RebuildIndex(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Same(t, good, e.Snapshot())
}

func TestRebuildIndex_Deterministic(t *testing.T) {
	ctx := context.Background()
	a := newEngine(t, biologyStore(t), func(o *Options) { o.Workers = 1 })
	b := newEngine(t, biologyStore(t), func(o *Options) { o.Workers = 8 })
	require.NoError(t, a.RebuildIndex(ctx))
	require.NoError(t, b.RebuildIndex(ctx))

	ra, err := a.Search("cell energy proteins", 4, 0)
	require.NoError(t, err)
	rb, err := b.Search("cell energy proteins", 4, 0)
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
}

func TestRebuildIndex_ChunksLongDocumentsInOrder(t *testing.T) {
	store := memory.NewStorage()
	var paras []string
	for i := range 10 {
		paras = append(paras, fmt.Sprintf("paragraph %d talks about topic%d in some detail", i, i))
	}
	addDocs(t, store,
		domain.Document{ID: "long", Title: "Long", Text: strings.Join(paras, "\n\n")},
		domain.Document{ID: "short", Title: "Short", Text: "tiny note"},
	)
	e := newEngine(t, store, func(o *Options) {
		o.ChunkSize = 60
		o.Overlap = 10
	})
	require.NoError(t, e.RebuildIndex(context.Background()))

	chunks := e.Snapshot().Chunks()
	require.Greater(t, len(chunks), 2)
	last := chunks[len(chunks)-1]
	assert.Equal(t, "short", last.DocumentID)
	for i, c := range chunks[:len(chunks)-1] {
		assert.Equal(t, "long", c.DocumentID)
		assert.Equal(t, i, c.Ordinal)
		assert.Equal(t, i, c.Position)
	}
	assert.Equal(t, 2, e.Stats().Documents)
}

func TestSearch_ConcurrentWithRebuild(t *testing.T) {
	store := biologyStore(t)
	e := newEngine(t, store)
	ctx := context.Background()
	require.NoError(t, e.RebuildIndex(ctx))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				results, err := e.Search("mitochondria energy", 4, 0)
				assert.NoError(t, err)
				for _, r := range results {
					assert.NotEmpty(t, r.Text)
				}
			}
		}()
	}
	for i := range 20 {
		_, err := store.Add(ctx, domain.Document{Title: fmt.Sprintf("extra %d", i), Text: "energy budget of the cell"})
		require.NoError(t, err)
		require.NoError(t, e.RebuildIndex(ctx))
	}
	wg.Wait()

	assert.Equal(t, uint64(21), e.Stats().Generation)
	assert.Equal(t, 22, e.Stats().Documents)
}

func TestSearch_CacheServesUntilRebuild(t *testing.T) {
	store := biologyStore(t)
	e := newEngine(t, store)
	ctx := context.Background()
	require.NoError(t, e.RebuildIndex(ctx))

	first, err := e.Search("proteins", 4, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)
	first[0].Title = "mutated by caller"

	second, err := e.Search("Proteins!", 4, 0)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "Doc B", second[0].Title, "cached results are not shared with callers")

	addDocs(t, store, domain.Document{ID: "c", Title: "Doc C", Text: "Proteins fold into shapes."})
	require.NoError(t, e.RebuildIndex(ctx))

	third, err := e.Search("proteins", 4, 0)
	require.NoError(t, err)
	assert.Len(t, third, 2)
}

func TestRetrieve_UsesConfiguredDefaults(t *testing.T) {
	e := newEngine(t, biologyStore(t), func(o *Options) {
		o.TopK = 1
		o.Threshold = 0
	})
	require.NoError(t, e.RebuildIndex(context.Background()))

	passages, err := e.Retrieve("cell proteins energy")
	require.NoError(t, err)
	assert.Len(t, passages, 1)
}

func TestStats_DescribesStrategy(t *testing.T) {
	e := newEngine(t, biologyStore(t))
	require.NoError(t, e.RebuildIndex(context.Background()))

	st := e.Stats()
	assert.Equal(t, "bm25(k1=1.4,b=0.75)", st.Strategy)
	assert.Equal(t, 2, st.ChunkCount)
	assert.Positive(t, st.VocabularySize)
	assert.Positive(t, st.AverageChunkLength)
	assert.False(t, st.BuiltAt.IsZero())
}

func TestNew_RejectsInvalidOptions(t *testing.T) {
	store := memory.NewStorage()
	for _, tc := range []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero chunk size", func(o *Options) { o.ChunkSize = 0 }},
		{"overlap equals size", func(o *Options) { o.Overlap = o.ChunkSize }},
		{"negative overlap", func(o *Options) { o.Overlap = -1 }},
		{"bad k1", func(o *Options) { o.Strategy = scoring.BM25(-1, 0.5) }},
		{"bad b", func(o *Options) { o.Strategy = scoring.BM25(1.2, 2) }},
		{"unknown strategy", func(o *Options) { o.Strategy = scoring.Strategy{Kind: "dense"} }},
		{"negative top k", func(o *Options) { o.TopK = -1 }},
		{"nan threshold", func(o *Options) { o.Threshold = math.NaN() }},
		{"negative cache", func(o *Options) { o.CacheSize = -1 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.mutate(&opts)
			_, err := New(store, opts, nil)
			assert.True(t, errors.Is(err, domain.ErrInvalidConfig), "got %v", err)
		})
	}

	_, err := New(nil, DefaultOptions(), nil)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
}

func TestNew_CacheDisabled(t *testing.T) {
	e := newEngine(t, biologyStore(t), func(o *Options) { o.CacheSize = 0 })
	require.NoError(t, e.RebuildIndex(context.Background()))

	results, err := e.Search("ribosomes", 4, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
