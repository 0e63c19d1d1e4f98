// Package tokenizer turns natural-language text into normalized word tokens.
//
// Tokens are runs of Unicode letters, numbers and combining marks, lower-cased
// and NFC-normalized. Everything else (punctuation, markdown markup, symbols)
// separates tokens the same way whitespace does, regardless of script.
// Combining marks are deliberately kept inside tokens: treating them as
// separators would split Indic words and decomposed accents into fragments.
package tokenizer

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultQuestionMinLen is the minimum token length used for question-token filtering.
const DefaultQuestionMinLen = 3

// Tokenizer splits text into tokens, dropping tokens shorter than MinLen runes.
// The zero value keeps every token.
type Tokenizer struct {
	MinLen int
}

// New returns a tokenizer that drops tokens shorter than minLen runes.
func New(minLen int) Tokenizer {
	if minLen < 0 {
		minLen = 0
	}
	return Tokenizer{MinLen: minLen}
}

// Tokenize splits text using the tokenizer's minimum length.
func (t Tokenizer) Tokenize(text string) []string {
	return TokenizeMin(text, t.MinLen)
}

// Tokenize splits text into lower-case tokens without a length filter.
func Tokenize(text string) []string {
	return TokenizeMin(text, 0)
}

// QuestionTokens returns the tokens of a question that carry enough signal for
// overlap heuristics such as sentence highlighting.
func QuestionTokens(text string) []string {
	return TokenizeMin(text, DefaultQuestionMinLen)
}

// TokenizeMin splits text into lower-case tokens of at least minLen runes.
// It never returns nil.
func TokenizeMin(text string, minLen int) []string {
	if text == "" {
		return []string{}
	}
	lower := strings.ToLower(norm.NFC.String(text))

	var b strings.Builder
	b.Grow(len(lower))
	separated := false
	for _, r := range lower {
		if isWordRune(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
			separated = false
			continue
		}
		if !separated {
			b.WriteByte(' ')
			separated = true
		}
	}

	fields := strings.Fields(b.String())
	if minLen <= 1 {
		return fields
	}
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= minLen {
			out = append(out, f)
		}
	}
	return out
}

// Set returns the distinct tokens in ascending order.
func Set(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// Frequencies counts token occurrences.
func Frequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	return tf
}

// isWordRune reports whether r belongs inside a token. Combining marks are kept
// so that scripts with dependent vowel signs are not split mid-word.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r)
}
