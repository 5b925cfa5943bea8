package cache

import (
	"regexp"
	"strings"

	"github.com/lazypower/recall/internal/nlp"
)

var (
	possessive = regexp.MustCompile(`'s\b`)
	nonToken   = regexp.MustCompile(`[^a-z0-9+#]+`)
)

// questionStopWords are the interrogatives, pronouns and framing words a
// question wraps around its subject. Dropping them lets differently phrased
// questions about the same topic normalize to the same keyword set.
var questionStopWords = toSet(
	"did", "do", "does", "what", "when", "where", "which", "who", "why", "how",
	"is", "are", "was", "were", "will", "would", "could", "should", "can", "may",
	"i", "you", "we", "they", "he", "she", "it",
	"my", "your", "our", "their", "me", "us", "them", "its", "this", "that", "these", "those",
	"learn", "learned", "learning", "know", "knew", "knowing", "remember",
	"anything", "something", "nothing", "everything", "thing", "things",
	"related", "about", "regarding", "concerning",
	"to", "for", "with", "from", "of", "in", "on", "at", "by", "into",
	"a", "an", "the", "and", "or", "but",
	"have", "has", "had", "any", "some", "there",
	"don", "didn", "doesn", "isn", "aren", "wasn", "weren", "won",
	// request framing
	"tell", "show", "explain", "describe", "give", "please", "say", "said",
	"model", "concept", "concepts", "idea", "ideas", "overview", "basics",
	"detail", "details", "info", "information", "topic", "topics", "stuff",
)

// shortTerms survive the minimum-length filter.
var shortTerms = toSet(
	"go", "ai", "db", "ml", "ui", "ux", "os", "js", "ts", "ci", "cd", "c#", "io", "vm", "qa",
)

// Normalize reduces a question to the keyword set used for both keying and
// similarity. It lowercases, strips possessives, keeps [a-z0-9+#] runs and
// drops question stop words and very short tokens. When fewer than two tokens
// survive, RAKE keywords from the original question are merged in.
func Normalize(question string) nlp.KeywordSet {
	q := strings.ToLower(question)
	q = strings.NewReplacer("’", "'", "‘", "'").Replace(q)
	q = possessive.ReplaceAllString(q, "")
	q = nonToken.ReplaceAllString(q, " ")

	set := nlp.NewKeywordSet()
	for _, w := range strings.Fields(q) {
		w = strings.TrimLeft(w, "+#")
		if keepToken(w) {
			set.Add(w)
		}
	}

	if len(set) < 2 {
		for _, phrase := range nlp.ExtractKeywords(question, 5) {
			for _, w := range strings.Fields(phrase) {
				if _, stop := questionStopWords[w]; !stop {
					set.Add(w)
				}
			}
		}
	}
	return set
}

func keepToken(w string) bool {
	if w == "" {
		return false
	}
	if _, stop := questionStopWords[w]; stop {
		return false
	}
	if len([]rune(w)) <= 2 {
		_, ok := shortTerms[w]
		return ok
	}
	return true
}

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
