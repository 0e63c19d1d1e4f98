// Package index holds the immutable term statistics that queries are scored against.
//
// An Index is built in one pass from the complete chunk set and never modified
// afterwards; a rebuild produces a new Index that replaces the old one wholesale.
package index

import (
	"math"
	"sort"
	"time"

	"ragkb/internal/domain"
)

// Tokenizer is the subset of tokenizer.Tokenizer the index needs.
type Tokenizer interface {
	Tokenize(text string) []string
}

// Weights holds the inverse document frequency of a term under both smoothing conventions.
type Weights struct {
	// TFIDF is ln((N+1)/(df+1)) + 1, strictly positive.
	TFIDF float64
	// BM25 is ln(1 + (N-df+0.5)/(df+0.5)); it approaches zero for ubiquitous terms.
	BM25 float64
}

// Chunk is an indexed chunk together with its term-frequency vector.
type Chunk struct {
	domain.Chunk
	// TF maps each token to its number of occurrences in the chunk.
	TF map[string]int
	// TokenCount is the sum of TF values.
	TokenCount int
	// Norm is the Euclidean norm of the chunk's TF-IDF vector.
	Norm float64
	// Position is the chunk's place in build order, used for tie-breaking.
	Position int
}

// Index is a snapshot of chunk statistics.
type Index struct {
	chunks      []*Chunk
	df          map[string]int
	idf         map[string]Weights
	totalTokens int
	avgLen      float64
	documents   int
	generation  uint64
	builtAt     time.Time
}

// Option configures Build.
type Option func(*Index)

// WithGeneration stamps the index with a rebuild counter.
func WithGeneration(g uint64) Option {
	return func(ix *Index) { ix.generation = g }
}

// WithDocumentCount records how many documents the chunks came from.
func WithDocumentCount(n int) Option {
	return func(ix *Index) { ix.documents = n }
}

// WithBuildTime overrides the build timestamp.
func WithBuildTime(t time.Time) Option {
	return func(ix *Index) { ix.builtAt = t }
}

// Empty returns an index with no chunks.
func Empty() *Index {
	return Build(nil, nil)
}

// Build tokenizes each chunk once and computes document frequencies, idf
// weights and length statistics over the whole set.
func Build(chunks []domain.Chunk, tok Tokenizer, opts ...Option) *Index {
	ix := &Index{
		chunks:  make([]*Chunk, 0, len(chunks)),
		df:      make(map[string]int),
		builtAt: time.Now(),
	}
	for _, opt := range opts {
		opt(ix)
	}

	for i, ch := range chunks {
		tokens := tok.Tokenize(ch.Text)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		// df counts chunks, not occurrences
		for t := range tf {
			ix.df[t]++
		}
		ix.chunks = append(ix.chunks, &Chunk{
			Chunk:      ch,
			TF:         tf,
			TokenCount: len(tokens),
			Position:   i,
		})
		ix.totalTokens += len(tokens)
	}

	n := float64(len(ix.chunks))
	ix.idf = make(map[string]Weights, len(ix.df))
	for term, d := range ix.df {
		ix.idf[term] = weights(n, float64(d))
	}
	if len(ix.chunks) > 0 {
		ix.avgLen = float64(ix.totalTokens) / n
	}

	for _, c := range ix.chunks {
		c.Norm = ix.tfidfNorm(c.TF)
	}
	return ix
}

func weights(n, df float64) Weights {
	return Weights{
		TFIDF: math.Log((n+1)/(df+1)) + 1,
		BM25:  math.Log(1 + (n-df+0.5)/(df+0.5)),
	}
}

// tfidfNorm sums in sorted term order so equal inputs give bit-identical norms.
func (ix *Index) tfidfNorm(tf map[string]int) float64 {
	terms := make([]string, 0, len(tf))
	for t := range tf {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	sum := 0.0
	for _, t := range terms {
		w := float64(tf[t]) * ix.IDF(t).TFIDF
		sum += w * w
	}
	return math.Sqrt(sum)
}

// IDF returns the weights of term. Terms absent from the index get df = 0.
func (ix *Index) IDF(term string) Weights {
	if w, ok := ix.idf[term]; ok {
		return w
	}
	return weights(float64(len(ix.chunks)), 0)
}

// DocumentFrequency returns the number of chunks containing term.
func (ix *Index) DocumentFrequency(term string) int { return ix.df[term] }

// Chunks returns the indexed chunks in build order. Callers must not modify them.
func (ix *Index) Chunks() []*Chunk { return ix.chunks }

// ChunkCount returns the number of indexed chunks.
func (ix *Index) ChunkCount() int { return len(ix.chunks) }

// VocabularySize returns the number of distinct terms.
func (ix *Index) VocabularySize() int { return len(ix.df) }

// AvgChunkLength returns the mean chunk token count, 0 for an empty index.
func (ix *Index) AvgChunkLength() float64 { return ix.avgLen }

// TotalTokens returns the token count over all chunks.
func (ix *Index) TotalTokens() int { return ix.totalTokens }

// Documents returns the number of source documents.
func (ix *Index) Documents() int { return ix.documents }

// Generation returns the rebuild counter the index was stamped with.
func (ix *Index) Generation() uint64 { return ix.generation }

// BuiltAt returns when the index was built.
func (ix *Index) BuiltAt() time.Time { return ix.builtAt }

// DocumentFrequencies returns a copy of the document-frequency table.
func (ix *Index) DocumentFrequencies() map[string]int {
	out := make(map[string]int, len(ix.df))
	for t, d := range ix.df {
		out[t] = d
	}
	return out
}
