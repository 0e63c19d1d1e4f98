package domain

import (
	"context"
	"time"
	"unicode/utf8"
)

// Document is a single knowledge-base entry as kept by the document store.
type Document struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Text      string    `json:"text" db:"text"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Chunk is a bounded passage of a document, the unit of retrieval.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Title      string
	Text       string
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Ordinal    int     `json:"ordinal"`
	Title      string  `json:"title"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Snippet returns at most n runes of the result text, marking truncation with an ellipsis.
func (r SearchResult) Snippet(n int) string {
	if n <= 0 || utf8.RuneCountInString(r.Text) <= n {
		return r.Text
	}
	return string([]rune(r.Text)[:n]) + "…"
}

// Passage is the context unit handed to the answer-generation layer.
type Passage struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Stats describes the currently active index.
type Stats struct {
	Documents          int       `json:"documents"`
	ChunkCount         int       `json:"chunk_count"`
	VocabularySize     int       `json:"vocabulary_size"`
	AverageChunkLength float64   `json:"average_chunk_length"`
	Strategy           string    `json:"strategy"`
	Generation         uint64    `json:"generation"`
	BuiltAt            time.Time `json:"built_at"`
}

// Chunker splits a document into ordered chunks. Chunk IDs must be unique
// within the document and ordinals start at 0.
type Chunker interface {
	Chunk(doc Document) []Chunk
}

// DocumentStore is the key-ordered document collection the index is rebuilt from.
// GetAll must return documents in insertion order.
type DocumentStore interface {
	GetAll(ctx context.Context) ([]Document, error)
	Get(ctx context.Context, id string) (Document, error)
	Add(ctx context.Context, doc Document) (Document, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Close() error
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Retriever defines the operations exposed by the retrieval engine.
type Retriever interface {
	RebuildIndex(ctx context.Context) error
	RetrieveTopK(query string, k int, threshold float64) ([]Passage, error)
	Search(query string, k int, threshold float64) ([]SearchResult, error)
	Stats() Stats
}
