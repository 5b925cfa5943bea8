package nlp

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minSentenceLen = 10
	maxSentenceLen = 200
)

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// Jaccard returns |A∩B| / |A∪B|. Two empty sets are identical (1.0); an empty
// set against a non-empty one scores 0.
func Jaccard(a, b KeywordSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for t := range small {
		if large.Has(t) {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Cosine compares two texts by their normalized term-frequency vectors.
// Returns 0 when either text has no usable tokens.
func Cosine(a, b string) float64 {
	va := termFrequencies(a)
	vb := termFrequencies(b)
	if len(va) == 0 || len(vb) == 0 {
		return 0
	}

	var dot float64
	for term, wa := range va {
		dot += wa * vb[term]
	}
	// Vectors are unit length, so the dot product is already the cosine.
	if dot > 1 {
		dot = 1
	}
	return dot
}

// termFrequencies returns an L2-normalized term-frequency vector.
func termFrequencies(text string) map[string]float64 {
	tokens := Tokens(text)
	if len(tokens) == 0 {
		return nil
	}
	vec := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		vec[t]++
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for t := range vec {
		vec[t] /= norm
	}
	return vec
}

// MostRelevantSentence picks the sentence of text closest to query by cosine
// similarity. Sentences shorter than 10 characters are ignored; if none score
// above zero the first non-empty sentence is returned. Output is capped at 200
// characters.
func MostRelevantSentence(text, query string) string {
	sentences := sentenceSplit.Split(text, -1)

	best := ""
	bestScore := 0.0
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if utf8.RuneCountInString(s) < minSentenceLen {
			continue
		}
		if score := Cosine(query, s); score > bestScore {
			bestScore = score
			best = s
		}
	}

	if best == "" {
		for _, s := range sentences {
			if s = strings.TrimSpace(s); s != "" {
				best = s
				break
			}
		}
	}
	return truncate(best, maxSentenceLen)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}
