package chunker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"ragkb/internal/domain"
)

const (
	// DefaultChunkSize is the default maximum chunk length in characters.
	DefaultChunkSize = 900
	// DefaultOverlap is the default number of characters shared by consecutive windows.
	DefaultOverlap = 120

	paragraphSeparator = "\n\n"
)

var blankLine = regexp.MustCompile(`\n[^\S\n]*\n`)

// ParagraphChunker splits text on blank lines and packs paragraphs into chunks
// of at most size characters. Paragraphs longer than size are cut into
// overlapping fixed windows. Lengths are measured in runes.
// The zero value uses DefaultChunkSize and DefaultOverlap.
type ParagraphChunker struct {
	size    int
	overlap int
}

var _ domain.Chunker = (*ParagraphChunker)(nil)

// New returns a chunker, rejecting combinations that could not make progress.
func New(size, overlap int) (*ParagraphChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", domain.ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", domain.ErrInvalidConfig, overlap, size)
	}
	return &ParagraphChunker{size: size, overlap: overlap}, nil
}

// Size returns the maximum chunk length.
func (c *ParagraphChunker) Size() int {
	size, _ := c.limits()
	return size
}

// Overlap returns the window overlap used for oversized paragraphs.
func (c *ParagraphChunker) Overlap() int {
	_, overlap := c.limits()
	return overlap
}

// limits returns size and overlap such that windows always advance. A zero
// ParagraphChunker uses the defaults.
func (c *ParagraphChunker) limits() (size, overlap int) {
	if c.size <= 0 {
		return DefaultChunkSize, DefaultOverlap
	}
	size, overlap = c.size, c.overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return size, overlap
}

// Chunk splits a document into chunks carrying the document's ID and title.
func (c *ParagraphChunker) Chunk(document domain.Document) []domain.Chunk {
	parts := c.Split(document.Text)
	if len(parts) == 0 {
		return nil
	}
	chunks := make([]domain.Chunk, len(parts))
	for i, text := range parts {
		chunks[i] = domain.Chunk{
			ID:         document.ID + "#" + strconv.Itoa(i),
			DocumentID: document.ID,
			Ordinal:    i,
			Title:      document.Title,
			Text:       text,
		}
	}
	return chunks
}

// Split returns the chunk texts of text in source order.
func (c *ParagraphChunker) Split(text string) []string {
	var (
		out    []string
		buf    strings.Builder
		bufLen int
	)
	size, _ := c.limits()
	flush := func() {
		if bufLen > 0 {
			out = append(out, buf.String())
		}
		buf.Reset()
		bufLen = 0
	}

	for _, para := range paragraphs(text) {
		n := utf8.RuneCountInString(para)
		switch {
		case n > size:
			flush()
			out = append(out, c.windows(para)...)
		case bufLen == 0:
			buf.WriteString(para)
			bufLen = n
		case bufLen+len(paragraphSeparator)+n <= size:
			buf.WriteString(paragraphSeparator)
			buf.WriteString(para)
			bufLen += len(paragraphSeparator) + n
		default:
			flush()
			buf.WriteString(para)
			bufLen = n
		}
	}
	flush()
	return out
}

// SplitWindows ignores paragraph structure and cuts the whole normalized text
// into fixed overlapping windows.
func (c *ParagraphChunker) SplitWindows(text string) []string {
	clean := normalize(norm.NFC.String(text))
	if clean == "" {
		return nil
	}
	return c.windows(clean)
}

// windows emits runes [i, i+size) and advances by size-overlap until a window
// reaches the end of s.
func (c *ParagraphChunker) windows(s string) []string {
	runes := []rune(s)
	size, overlap := c.limits()
	step := size - overlap
	if step <= 0 {
		return []string{s}
	}
	var out []string
	for i := 0; i < len(runes); i += step {
		end := min(i+size, len(runes))
		out = append(out, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

func paragraphs(text string) []string {
	text = strings.ReplaceAll(norm.NFC.String(text), "\r\n", "\n")
	raw := blankLine.Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = normalize(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalize collapses whitespace runs into single spaces and trims the ends.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
