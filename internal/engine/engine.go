// Package engine owns the active index and answers retrieval queries against it.
//
// Rebuilds are serialized and construct a complete new index off to the side
// before swapping it in with a single atomic store. Queries load the current
// index once and score against that snapshot, so they never observe a
// half-built index and never block on a rebuild.
package engine

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ragkb/internal/chunker"
	"ragkb/internal/domain"
	"ragkb/internal/index"
	"ragkb/internal/metrics"
	"ragkb/internal/scoring"
	"ragkb/internal/tokenizer"
)

// DefaultTopK is the number of passages returned by Retrieve.
const DefaultTopK = 4

// Options configures an Engine.
type Options struct {
	Strategy  scoring.Strategy
	ChunkSize int
	Overlap   int
	// Chunker replaces the paragraph chunker built from ChunkSize and Overlap.
	Chunker domain.Chunker
	// MinTokenLength drops shorter tokens from both documents and queries.
	MinTokenLength int
	// TopK and Threshold are used by Retrieve.
	TopK      int
	Threshold float64
	// CacheSize bounds the query result cache; 0 disables it.
	CacheSize int
	// Workers bounds parallel chunking during rebuild; 0 means GOMAXPROCS.
	Workers int
}

// DefaultOptions returns BM25 scoring with 900/120 chunking.
func DefaultOptions() Options {
	s := scoring.BM25(scoring.DefaultK1, scoring.DefaultB)
	return Options{
		Strategy:  s,
		ChunkSize: chunker.DefaultChunkSize,
		Overlap:   chunker.DefaultOverlap,
		TopK:      DefaultTopK,
		Threshold: s.DefaultThreshold(),
		CacheSize: 256,
	}
}

type cacheKey struct {
	generation uint64
	terms      string
	k          int
	threshold  float64
}

type scoredChunk struct {
	chunk *index.Chunk
	score float64
}

// Engine is the retrieval engine. It is safe for concurrent use.
type Engine struct {
	store     domain.DocumentStore
	chunker   domain.Chunker
	tok       tokenizer.Tokenizer
	strategy  scoring.Strategy
	scorer    scoring.Scorer
	topK      int
	threshold float64
	workers   int
	logger    *zap.Logger

	mu      sync.Mutex // serializes rebuilds
	current atomic.Pointer[index.Index]
	cache   *lru.Cache[cacheKey, []domain.SearchResult]
}

var _ domain.Retriever = (*Engine)(nil)

// New validates opts and returns an engine with an empty index.
func New(store domain.DocumentStore, opts Options, logger *zap.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: document store is required", domain.ErrInvalidConfig)
	}
	if err := opts.Strategy.Validate(); err != nil {
		return nil, err
	}
	var ch domain.Chunker = opts.Chunker
	if ch == nil {
		pc, err := chunker.New(opts.ChunkSize, opts.Overlap)
		if err != nil {
			return nil, err
		}
		ch = pc
	}
	if err := validateQuery(opts.TopK, opts.Threshold); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	if opts.CacheSize < 0 {
		return nil, fmt.Errorf("%w: cache size must not be negative", domain.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	e := &Engine{
		store:     store,
		chunker:   ch,
		tok:       tokenizer.New(opts.MinTokenLength),
		strategy:  opts.Strategy,
		scorer:    opts.Strategy.Scorer(),
		topK:      opts.TopK,
		threshold: opts.Threshold,
		workers:   workers,
		logger:    logger.Named("engine"),
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[cacheKey, []domain.SearchResult](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create query cache: %w", err)
		}
		e.cache = cache
	}
	e.current.Store(index.Empty())
	return e, nil
}

// Strategy returns the active scoring strategy.
func (e *Engine) Strategy() scoring.Strategy { return e.strategy }

// Snapshot returns the index queries currently run against.
func (e *Engine) Snapshot() *index.Index { return e.current.Load() }

// RebuildIndex pulls every document from the store, builds a fresh index and
// swaps it in. On error the previous index stays active.
func (e *Engine) RebuildIndex(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	docs, err := e.store.GetAll(ctx)
	if err != nil {
		metrics.RebuildsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("load documents: %w", err)
	}

	chunks := e.chunkAll(docs)
	prev := e.current.Load()
	ix := index.Build(chunks, e.tok,
		index.WithGeneration(prev.Generation()+1),
		index.WithDocumentCount(len(docs)),
	)
	e.current.Store(ix)
	if e.cache != nil {
		e.cache.Purge()
	}

	took := time.Since(start)
	metrics.RebuildsTotal.WithLabelValues("ok").Inc()
	metrics.RebuildDuration.Observe(took.Seconds())
	metrics.IndexChunks.Set(float64(ix.ChunkCount()))
	metrics.IndexVocabulary.Set(float64(ix.VocabularySize()))
	e.logger.Info("index rebuilt",
		zap.Uint64("generation", ix.Generation()),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", ix.ChunkCount()),
		zap.Int("vocabulary", ix.VocabularySize()),
		zap.Float64("avg_chunk_length", ix.AvgChunkLength()),
		zap.Duration("took", took),
	)
	return nil
}

// chunkAll chunks documents in parallel and flattens them in document order.
func (e *Engine) chunkAll(docs []domain.Document) []domain.Chunk {
	parts := make([][]domain.Chunk, len(docs))
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, doc := range docs {
		g.Go(func() error {
			parts[i] = e.chunker.Chunk(doc)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]domain.Chunk, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Retrieve returns the top passages for query using the configured k and threshold.
func (e *Engine) Retrieve(query string) ([]domain.Passage, error) {
	return e.RetrieveTopK(query, e.topK, e.threshold)
}

// RetrieveTopK returns the titles and texts of the k best chunks scoring above threshold.
func (e *Engine) RetrieveTopK(query string, k int, threshold float64) ([]domain.Passage, error) {
	results, err := e.Search(query, k, threshold)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Passage, len(results))
	for i, r := range results {
		out[i] = domain.Passage{Title: r.Title, Text: r.Text}
	}
	return out, nil
}

// Search scores every chunk of the current index against query and returns
// at most k results with score > threshold, best first. Ties keep index order.
func (e *Engine) Search(query string, k int, threshold float64) ([]domain.SearchResult, error) {
	if err := validateQuery(k, threshold); err != nil {
		return nil, err
	}
	ix := e.current.Load()
	tokens := e.tok.Tokenize(query)
	if k == 0 || len(tokens) == 0 || ix.ChunkCount() == 0 {
		return []domain.SearchResult{}, nil
	}

	key := cacheKey{generation: ix.Generation(), terms: strings.Join(tokens, " "), k: k, threshold: threshold}
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			metrics.QueryCacheTotal.WithLabelValues("hit").Inc()
			return slices.Clone(cached), nil
		}
		metrics.QueryCacheTotal.WithLabelValues("miss").Inc()
	}

	start := time.Now()
	results := e.rank(ix, tokens, k, threshold)
	strategy := string(e.strategy.Kind)
	metrics.QueryDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
	outcome := "hit"
	if len(results) == 0 {
		outcome = "empty"
	}
	metrics.QueriesTotal.WithLabelValues(strategy, outcome).Inc()
	e.logger.Debug("query scored",
		zap.Strings("terms", tokens),
		zap.Int("k", k),
		zap.Float64("threshold", threshold),
		zap.Int("results", len(results)),
		zap.Uint64("generation", ix.Generation()),
	)

	if e.cache != nil {
		e.cache.Add(key, results)
	}
	return slices.Clone(results), nil
}

func (e *Engine) rank(ix *index.Index, tokens []string, k int, threshold float64) []domain.SearchResult {
	q := scoring.NewQuery(ix, tokens)
	scored := make([]scoredChunk, 0, ix.ChunkCount())
	for _, c := range ix.Chunks() {
		if s := e.scorer.Score(q, c); s > threshold {
			scored = append(scored, scoredChunk{chunk: c, score: s})
		}
	}
	// stable: equal scores keep document order, then chunk ordinal
	slices.SortStableFunc(scored, func(a, b scoredChunk) int {
		return cmp.Compare(b.score, a.score)
	})
	if len(scored) > k {
		scored = scored[:k]
	}

	out := make([]domain.SearchResult, len(scored))
	for i, sc := range scored {
		out[i] = domain.SearchResult{
			ChunkID:    sc.chunk.ID,
			DocumentID: sc.chunk.DocumentID,
			Ordinal:    sc.chunk.Ordinal,
			Title:      sc.chunk.Title,
			Text:       sc.chunk.Text,
			Score:      sc.score,
		}
	}
	return out
}

// Stats describes the current index.
func (e *Engine) Stats() domain.Stats {
	ix := e.current.Load()
	return domain.Stats{
		Documents:          ix.Documents(),
		ChunkCount:         ix.ChunkCount(),
		VocabularySize:     ix.VocabularySize(),
		AverageChunkLength: ix.AvgChunkLength(),
		Strategy:           e.strategy.String(),
		Generation:         ix.Generation(),
		BuiltAt:            ix.BuiltAt(),
	}
}

func validateQuery(k int, threshold float64) error {
	if k < 0 {
		return fmt.Errorf("%w: k must not be negative, got %d", domain.ErrInvalidArgument, k)
	}
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return fmt.Errorf("%w: threshold must be finite, got %v", domain.ErrInvalidArgument, threshold)
	}
	return nil
}
