package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize_SplitsAndLowercases(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{
			name:   "plain sentence",
			input:  "Mitochondria produce energy for the cell.",
			expect: []string{"mitochondria", "produce", "energy", "for", "the", "cell"},
		},
		{
			name:   "markdown and symbols",
			input:  "## Title\n**bold** _it_ [link](http://x.io) — 42%",
			expect: []string{"title", "bold", "it", "link", "http", "x", "io", "42"},
		},
		{
			name:   "cyrillic",
			input:  "Рибосоми синтезують БІЛКИ!",
			expect: []string{"рибосоми", "синтезують", "білки"},
		},
		{
			name:   "digits stay inside tokens",
			input:  "ATP-synthase v2.0",
			expect: []string{"atp", "synthase", "v2", "0"},
		},
		{
			name:   "apostrophe splits",
			input:  "cell's",
			expect: []string{"cell", "s"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Tokenize(tt.input))
		})
	}
}

func TestTokenize_EmptyInput(t *testing.T) {
	for _, in := range []string{"", "   ", "!!! ??? ...", "\n\t"} {
		tokens := Tokenize(in)
		require.NotNil(t, tokens)
		assert.Empty(t, tokens, "input %q", in)
	}
}

func TestTokenize_NoEmptyAndLowercase(t *testing.T) {
	inputs := []string{
		"Hello, WORLD!! Ünïcödé  ÆØÅ",
		"  leading and trailing  ",
		"a--b__c..d",
		"日本語のテキスト、句読点。",
		"नमस्ते दुनिया",
	}
	for _, in := range inputs {
		for _, tok := range Tokenize(in) {
			assert.NotEmpty(t, tok)
			assert.Equal(t, strings.ToLower(tok), tok)
		}
	}
}

func TestTokenize_KeepsCombiningMarks(t *testing.T) {
	// Devanagari vowel signs are marks, not letters.
	assert.Equal(t, []string{"नमस्ते"}, Tokenize("नमस्ते!"))
}

func TestTokenize_NormalizesNFC(t *testing.T) {
	composed := Tokenize("caf\u00e9")
	decomposed := Tokenize("cafe\u0301")
	assert.Equal(t, []string{"caf\u00e9"}, decomposed)
	assert.Equal(t, composed, decomposed)
}

func TestTokenizeMin_FiltersShortTokens(t *testing.T) {
	text := "a is the mitochondria of it"

	assert.Equal(t, []string{"is", "the", "mitochondria", "of", "it"}, TokenizeMin(text, 2))
	assert.Equal(t, []string{"the", "mitochondria"}, TokenizeMin(text, 3))
	assert.Equal(t, []string{"the", "mitochondria"}, QuestionTokens(text))
	assert.Equal(t, Tokenize(text), TokenizeMin(text, 0))
}

func TestTokenizeMin_CountsRunesNotBytes(t *testing.T) {
	// "їж" is two runes but four bytes.
	assert.Equal(t, []string{"їж"}, TokenizeMin("я їж", 2))
}

func TestTokenizer_Deterministic(t *testing.T) {
	tok := New(2)
	text := "The same input always yields the same output, always."
	assert.Equal(t, tok.Tokenize(text), tok.Tokenize(text))
}

func TestNew_ClampsNegative(t *testing.T) {
	assert.Equal(t, 0, New(-3).MinLen)
}

func TestSet(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Set([]string{"c", "a", "b", "a", "c"}))
	assert.Empty(t, Set(nil))
}

func TestFrequencies(t *testing.T) {
	tf := Frequencies([]string{"energy", "cell", "energy"})
	assert.Equal(t, map[string]int{"energy": 2, "cell": 1}, tf)
}
