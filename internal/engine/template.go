package engine

import (
	"fmt"
	"strings"

	"github.com/lazypower/recall/internal/nlp"
)

const (
	templateSources = 5
	templateRelated = 3
	lowConfidence   = 0.3
)

type questionType int

const (
	questionGeneral questionType = iota
	questionWhat
	questionWhy
	questionHow
	questionWhen
	questionWho
	questionList
)

func classifyQuestion(question string) questionType {
	q := strings.ToLower(strings.TrimSpace(question))
	switch {
	case strings.HasPrefix(q, "what"):
		return questionWhat
	case strings.HasPrefix(q, "why"):
		return questionWhy
	case strings.HasPrefix(q, "how"):
		return questionHow
	case strings.HasPrefix(q, "when"):
		return questionWhen
	case strings.HasPrefix(q, "who"):
		return questionWho
	case strings.Contains(q, "list"), strings.Contains(q, "show"), strings.Contains(q, "all"):
		return questionList
	}
	return questionGeneral
}

func opener(t questionType) string {
	switch t {
	case questionWhat:
		return "Based on your memories, here's what I found:"
	case questionWhy:
		return "Looking at your memories for the reasons:"
	case questionHow:
		return "Here's how, according to your memories:"
	case questionWhen:
		return "From your memories, regarding timing:"
	case questionList:
		return "Here are the relevant items from your memories:"
	}
	return "From your memories:"
}

// TemplateAnswer composes an extractive answer without a generation backend:
// an opener chosen by question type, the most relevant sentence of each of
// the top notes, the titles of a few related notes, and a warning when
// confidence is low.
func TemplateAnswer(question string, ranked, related []ScoredNote, confidence float64) string {
	if len(ranked) == 0 {
		return InsufficientMemoriesAnswer
	}

	var b strings.Builder
	b.WriteString(opener(classifyQuestion(question)))
	b.WriteString("\n\n")

	for i, sn := range ranked {
		if i == templateSources {
			break
		}
		text := sn.Note.Body
		if strings.TrimSpace(text) == "" {
			text = sn.Note.Title
		}
		fmt.Fprintf(&b, "- %s\n  (from: %q, importance: %d/10)\n\n",
			nlp.MostRelevantSentence(text, question), sn.Note.Title, sn.Note.Importance)
	}

	if len(related) > 0 {
		b.WriteString("Related memories:\n")
		for i, sn := range related {
			if i == templateRelated {
				break
			}
			fmt.Fprintf(&b, "  -> %s\n", sn.Note.Title)
		}
	}

	if confidence < lowConfidence {
		b.WriteString("\nNote: low confidence match. Consider adding more relevant memories.")
	}
	return strings.TrimRight(b.String(), "\n")
}
