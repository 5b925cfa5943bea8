package nlp

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens(t *testing.T) {
	got := Tokens("Rust's ownership-model, in 2024: GO vs. C++!")
	assert.Equal(t, []string{"rust", "ownership", "model", "2024"}, got)
	assert.Empty(t, Tokens(""))
}

func TestSignificantWords(t *testing.T) {
	got := SignificantWords("What did I learn about Rust and rust borrowing?")
	assert.Equal(t, []string{"learn", "rust", "borrowing"}, got)
}

func TestJaccardBounds(t *testing.T) {
	a := NewKeywordSet("rust", "ownership")
	b := NewKeywordSet("rust", "ownership", "model", "borrow")
	empty := NewKeywordSet()

	assert.Equal(t, 1.0, Jaccard(empty, empty))
	assert.Equal(t, 0.0, Jaccard(a, empty))
	assert.Equal(t, 0.0, Jaccard(empty, a))
	assert.Equal(t, 1.0, Jaccard(a, a))
	assert.InDelta(t, 0.5, Jaccard(a, b), 1e-9)
	assert.Equal(t, Jaccard(a, b), Jaccard(b, a))

	sets := []KeywordSet{a, b, empty, NewKeywordSet("x"), NewKeywordSet("model", "x", "y")}
	for _, x := range sets {
		for _, y := range sets {
			j := Jaccard(x, y)
			assert.GreaterOrEqual(t, j, 0.0)
			assert.LessOrEqual(t, j, 1.0)
		}
	}
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine("rust ownership", "Rust ownership!"), 1e-9)
	assert.Equal(t, 0.0, Cosine("rust ownership", "python garbage"))
	assert.Equal(t, 0.0, Cosine("", "rust"))
	assert.Equal(t, 0.0, Cosine("a an", "rust"), "tokens of two chars or fewer carry no weight")

	partial := Cosine("rust ownership rules", "rust borrowing rules")
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)
}

func TestMostRelevantSentence(t *testing.T) {
	text := "Short. Rust uses ownership to manage memory safely. Python has a garbage collector."
	assert.Equal(t, "Rust uses ownership to manage memory safely", MostRelevantSentence(text, "rust ownership"))

	// Nothing qualifies: first sentence wins.
	assert.Equal(t, "Hi", MostRelevantSentence("Hi. Yo.", "rust"))
	assert.Equal(t, "Hi", MostRelevantSentence("...Hi. Yo.", "rust"))
	assert.Equal(t, "Ok", MostRelevantSentence("?!  . Ok", "rust"))

	long := strings.Repeat("word ", 60)
	got := MostRelevantSentence(long, "word")
	assert.Equal(t, 200, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestExtractKeywords(t *testing.T) {
	text := "Rust ownership rules prevent data races. Ownership is checked at compile time."
	got := ExtractKeywords(text, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"rust ownership rules prevent data races", "compile time", "ownership"}, got)
}

func TestExtractKeywordsTiesKeepEncounterOrder(t *testing.T) {
	got := ExtractKeywords("alpha beta; gamma delta", 5)
	assert.Equal(t, []string{"alpha beta", "gamma delta"}, got)
}

func TestExtractKeywordsDeterministic(t *testing.T) {
	text := "Notes about Kubernetes operators, Helm charts and Terraform modules. " +
		"Helm charts wrap Kubernetes manifests; Terraform modules provision clusters."
	first := ExtractKeywords(text, 5)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, ExtractKeywords(text, 5))
	}
}

func TestExtractKeywordsBlank(t *testing.T) {
	assert.Empty(t, ExtractKeywords("", 5))
	assert.Empty(t, ExtractKeywords("   \n\t", 5))
	assert.Empty(t, ExtractKeywords("the and of", 5))
	assert.NotNil(t, ExtractKeywords("", 5))
}
