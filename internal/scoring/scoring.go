// Package scoring ranks indexed chunks against a query.
//
// Two strategies share the tokenizer, chunker and document-frequency tables
// and differ only in the final formula:
//
//   - Cosine: cosine similarity of sparse tf×idf vectors, idf = ln((N+1)/(df+1)) + 1.
//     Scores lie in [0, 1].
//   - BM25: Okapi BM25 with idf = ln(1 + (N-df+0.5)/(df+0.5)) and tunable k1, b.
//     Scores are unbounded above.
//
// Because the two ranges differ, relevance thresholds are configured per strategy.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"ragkb/internal/domain"
	"ragkb/internal/index"
	"ragkb/internal/tokenizer"
)

// Kind names a scoring strategy.
type Kind string

const (
	KindCosine Kind = "cosine"
	KindBM25   Kind = "bm25"
)

const (
	// DefaultK1 controls term-frequency saturation.
	DefaultK1 = 1.4
	// DefaultB controls length normalization.
	DefaultB = 0.75

	// DefaultCosineThreshold is the relevance cut-off for cosine scores.
	DefaultCosineThreshold = 0.05
	// DefaultBM25Threshold is the relevance cut-off for BM25 scores.
	DefaultBM25Threshold = 0.35
)

// Strategy selects a scoring formula. K1 and B are only meaningful for BM25.
type Strategy struct {
	Kind Kind
	K1   float64
	B    float64
}

// Cosine returns the TF-IDF cosine strategy.
func Cosine() Strategy { return Strategy{Kind: KindCosine} }

// BM25 returns the BM25 strategy with the given constants.
func BM25(k1, b float64) Strategy { return Strategy{Kind: KindBM25, K1: k1, B: b} }

// Parse builds a strategy from its name, applying default BM25 constants.
func Parse(name string) (Strategy, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(name))) {
	case KindCosine, "tfidf", "tf-idf":
		return Cosine(), nil
	case KindBM25, "":
		return BM25(DefaultK1, DefaultB), nil
	default:
		return Strategy{}, fmt.Errorf("%w: unknown scoring strategy %q", domain.ErrInvalidConfig, name)
	}
}

// Validate rejects unknown kinds and out-of-range BM25 constants.
func (s Strategy) Validate() error {
	switch s.Kind {
	case KindCosine:
		return nil
	case KindBM25:
		if math.IsNaN(s.K1) || math.IsInf(s.K1, 0) || s.K1 < 0 {
			return fmt.Errorf("%w: bm25 k1 must be a finite non-negative number, got %v", domain.ErrInvalidConfig, s.K1)
		}
		if math.IsNaN(s.B) || s.B < 0 || s.B > 1 {
			return fmt.Errorf("%w: bm25 b must be within [0, 1], got %v", domain.ErrInvalidConfig, s.B)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown scoring strategy %q", domain.ErrInvalidConfig, s.Kind)
	}
}

// DefaultThreshold returns the conventional relevance cut-off for the strategy.
func (s Strategy) DefaultThreshold() float64 {
	if s.Kind == KindCosine {
		return DefaultCosineThreshold
	}
	return DefaultBM25Threshold
}

// String describes the strategy, e.g. "bm25(k1=1.4,b=0.75)".
func (s Strategy) String() string {
	if s.Kind == KindBM25 {
		return fmt.Sprintf("bm25(k1=%g,b=%g)", s.K1, s.B)
	}
	return string(s.Kind)
}

// Scorer returns the scorer implementing the strategy.
func (s Strategy) Scorer() Scorer {
	if s.Kind == KindCosine {
		return cosineScorer{}
	}
	return bm25Scorer{k1: s.K1, b: s.B}
}

// Scorer computes the relevance of one chunk for a prepared query.
type Scorer interface {
	Score(q *Query, c *index.Chunk) float64
}

// Query is a tokenized query bound to one index snapshot.
type Query struct {
	ix *index.Index
	// terms are the distinct query tokens in ascending order.
	terms []string
	// weights holds tf×idf of each term, parallel to terms.
	weights []float64
	norm    float64
}

// NewQuery prepares tokens for scoring against ix.
func NewQuery(ix *index.Index, tokens []string) *Query {
	tf := tokenizer.Frequencies(tokens)
	terms := tokenizer.Set(tokens)
	q := &Query{ix: ix, terms: terms, weights: make([]float64, len(terms))}
	sum := 0.0
	for i, t := range terms {
		w := float64(tf[t]) * ix.IDF(t).TFIDF
		q.weights[i] = w
		sum += w * w
	}
	q.norm = math.Sqrt(sum)
	return q
}

// Terms returns the distinct query terms.
func (q *Query) Terms() []string { return q.terms }

// Empty reports whether the query has no terms.
func (q *Query) Empty() bool { return len(q.terms) == 0 }

type cosineScorer struct{}

func (cosineScorer) Score(q *Query, c *index.Chunk) float64 {
	if q.norm == 0 || c.Norm == 0 {
		return 0
	}
	dot := 0.0
	for i, t := range q.terms {
		f := c.TF[t]
		if f == 0 {
			continue
		}
		dot += q.weights[i] * float64(f) * q.ix.IDF(t).TFIDF
	}
	return dot / (q.norm * c.Norm)
}

type bm25Scorer struct {
	k1, b float64
}

// Score iterates distinct query terms so repeated words are not double counted.
func (s bm25Scorer) Score(q *Query, c *index.Chunk) float64 {
	avg := q.ix.AvgChunkLength()
	if avg == 0 {
		return 0
	}
	lengthNorm := s.k1 * (1 - s.b + s.b*float64(c.TokenCount)/avg)
	score := 0.0
	for _, t := range q.terms {
		f := float64(c.TF[t])
		if f == 0 {
			continue
		}
		score += q.ix.IDF(t).BM25 * (f * (s.k1 + 1)) / (f + lengthNorm)
	}
	return score
}
