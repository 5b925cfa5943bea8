// Package nlp holds the text primitives shared by retrieval and caching:
// tokenization, keyword sets, similarity measures and RAKE keyword extraction.
package nlp

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopWords is the English stop-word list used to split RAKE phrases and to
// drop filler from search expressions.
var stopWords = toSet(
	"a", "about", "above", "after", "again", "against", "all", "also", "am", "an",
	"and", "are", "as", "at", "be", "because", "been", "before", "being", "below",
	"between", "but", "by", "can", "come", "could", "dare", "did", "do", "does",
	"doing", "don", "down", "during", "each", "few", "for", "from", "further",
	"get", "go", "got", "had", "has", "have", "having", "he", "her", "here",
	"hers", "herself", "him", "himself", "his", "how", "i", "if", "in", "into",
	"is", "it", "its", "itself", "just", "know", "like", "look", "make", "may",
	"me", "might", "more", "most", "must", "my", "myself", "need", "no", "nor",
	"not", "now", "of", "off", "on", "once", "only", "or", "other", "ought",
	"our", "ours", "ourselves", "out", "over", "own", "s", "same", "see", "shall",
	"she", "should", "so", "some", "such", "t", "take", "than", "that", "the",
	"their", "theirs", "them", "themselves", "then", "there", "these", "they",
	"think", "this", "those", "through", "to", "too", "under", "until", "up",
	"use", "used", "very", "want", "was", "we", "were", "what", "when", "where",
	"which", "while", "who", "whom", "why", "will", "with", "would", "you",
	"your", "yours", "yourself", "yourselves",
)

// IsStopWord reports whether w (lowercase) is an English stop word.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// Tokens lowercases text and splits it on anything that is not a letter or
// digit, keeping tokens longer than two characters.
func Tokens(text string) []string {
	text = strings.ToLower(text)
	var tokens []string
	var current strings.Builder
	flush := func() {
		if utf8.RuneCountInString(current.String()) > 2 {
			tokens = append(tokens, current.String())
		}
		current.Reset()
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// SignificantWords returns the distinct non-stop-word tokens of text in
// encounter order.
func SignificantWords(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range Tokens(text) {
		if IsStopWord(tok) || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// KeywordSet is an unordered set of normalized tokens.
type KeywordSet map[string]struct{}

// NewKeywordSet builds a set from the given tokens.
func NewKeywordSet(tokens ...string) KeywordSet {
	s := make(KeywordSet, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

// Add inserts a token.
func (s KeywordSet) Add(token string) { s[token] = struct{}{} }

// Has reports membership.
func (s KeywordSet) Has(token string) bool {
	_, ok := s[token]
	return ok
}

// Sorted returns the tokens in lexical order.
func (s KeywordSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
