package summarizer

import (
	"cmp"
	"math"
	"regexp"
	"slices"
	"strings"

	"ragkb/internal/domain"
	"ragkb/internal/tokenizer"
)

var sentencePattern = regexp.MustCompile(`(?m)[^.!?\n]+(?:[.!?]+|$)`)

// FrequencySummarizer ranks sentences by word frequency (stopwords filtered).
type FrequencySummarizer struct {
	tok       tokenizer.Tokenizer
	stopwords map[string]struct{}
}

var _ domain.Summarizer = (*FrequencySummarizer)(nil)

// NewFrequencySummarizer creates a frequency-based sentence ranker summarizer.
// Words shorter than the question-token length are ignored.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{
		tok:       tokenizer.New(tokenizer.DefaultQuestionMinLen),
		stopwords: defaultStopwords(),
	}
}

// Summarize returns a short summary by ranking sentences using token frequency.
// Selected sentences keep their original order.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	var sentences []string
	for _, m := range sentencePattern.FindAllString(text, -1) {
		if t := strings.TrimSpace(m); t != "" {
			sentences = append(sentences, t)
		}
	}
	if len(sentences) == 0 {
		return strings.TrimSpace(text), nil
	}

	tokens := make([][]string, len(sentences))
	freq := map[string]float64{}
	for i, sent := range sentences {
		tokens[i] = s.tokens(sent)
		for _, tok := range tokens[i] {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, toks := range tokens {
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
		}
		// normalize by sentence length to avoid bias
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		scores[i] = pair{i, score}
	}
	slices.SortStableFunc(scores, func(a, b pair) int { return cmp.Compare(b.score, a.score) })
	maxSentences = min(maxSentences, len(scores))

	selected := make([]int, maxSentences)
	for i := range maxSentences {
		selected[i] = scores[i].idx
	}
	slices.Sort(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

// SummarizeDocuments summarizes the concatenated text of docs with s.
func SummarizeDocuments(s domain.Summarizer, docs []domain.Document, maxSentences int) (string, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	return s.Summarize(strings.Join(texts, "\n"), maxSentences)
}

func (s *FrequencySummarizer) tokens(text string) []string {
	all := s.tok.Tokenize(text)
	out := all[:0]
	for _, t := range all {
		if _, stop := s.stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"and", "but", "then", "else", "for", "the", "are", "was", "were", "been", "being", "this", "that", "these", "those", "from", "down", "over", "under", "again", "further", "than", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now", "with", "also",
		"або", "але", "для", "які", "який", "яка", "цей", "також", "так", "про", "при", "вже",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
