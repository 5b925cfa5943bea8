package nlp

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	phraseDelimiters = regexp.MustCompile(`[.!?;:\n\r]+`)
	wordPattern      = regexp.MustCompile(`[a-z0-9]+`)
)

// ExtractKeywords returns up to n key phrases from text using RAKE.
//
// Phrases are maximal runs of non-stop-words within a sentence. Each word
// scores (degree+frequency)/frequency, a phrase scores the sum of its words,
// and a repeated phrase keeps its best score. Ties keep the order in which
// phrases first appear, so the result is stable for a given input.
func ExtractKeywords(text string, n int) []string {
	if strings.TrimSpace(text) == "" || n <= 0 {
		return []string{}
	}

	var phrases [][]string
	for _, sentence := range phraseDelimiters.Split(strings.ToLower(text), -1) {
		phrases = append(phrases, splitPhrases(sentence)...)
	}
	if len(phrases) == 0 {
		return []string{}
	}

	freq := make(map[string]int)
	degree := make(map[string]int)
	for _, p := range phrases {
		d := len(p) - 1
		for _, w := range p {
			freq[w]++
			degree[w] += d
		}
	}

	type scored struct {
		phrase string
		score  float64
	}
	var ordered []scored
	index := make(map[string]int)
	for _, p := range phrases {
		var score float64
		for _, w := range p {
			score += float64(degree[w]+freq[w]) / float64(freq[w])
		}
		key := strings.Join(p, " ")
		if i, ok := index[key]; ok {
			if score > ordered[i].score {
				ordered[i].score = score
			}
			continue
		}
		index[key] = len(ordered)
		ordered = append(ordered, scored{key, score})
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].score > ordered[j].score
	})

	if len(ordered) > n {
		ordered = ordered[:n]
	}
	out := make([]string, len(ordered))
	for i, s := range ordered {
		out[i] = s.phrase
	}
	return out
}

// splitPhrases breaks a sentence at stop words. Words of two characters or
// fewer are dropped without ending the current phrase.
func splitPhrases(sentence string) [][]string {
	var phrases [][]string
	var current []string
	for _, w := range wordPattern.FindAllString(sentence, -1) {
		if IsStopWord(w) {
			if len(current) > 0 {
				phrases = append(phrases, current)
				current = nil
			}
			continue
		}
		if utf8.RuneCountInString(w) > 2 {
			current = append(current, w)
		}
	}
	if len(current) > 0 {
		phrases = append(phrases, current)
	}
	return phrases
}
