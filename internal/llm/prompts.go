package llm

import (
	"fmt"
	"strings"
)

// NoInfoAnswer is what the model is told to say when the memories do not
// cover the question.
const NoInfoAnswer = "I don't have enough information in your memories to answer that."

// PromptNote is one memory rendered into an answer prompt.
type PromptNote struct {
	Title   string
	Body    string
	Related bool // reached through an edge rather than direct retrieval
}

// AnswerPrompt builds the grounded-answer prompt.
func AnswerPrompt(question string, notes []PromptNote) string {
	var b strings.Builder
	for _, n := range notes {
		b.WriteString("- ")
		if n.Related {
			b.WriteString("(related) ")
		}
		b.WriteString(n.Title)
		if body := strings.TrimSpace(n.Body); body != "" {
			b.WriteString(": ")
			b.WriteString(body)
		}
		b.WriteString("\n")
	}

	return fmt.Sprintf(`You are a helpful personal memory assistant. You have access to the user's memories.
Answer the user's question based ONLY on the provided memories.
If the answer is not in the memories, say "%s"
Do not make up information. Memories marked (related) were reached through links from the directly matching ones.

USER MEMORIES:
%s
USER QUESTION:
%s

ANSWER:`, NoInfoAnswer, b.String(), question)
}

// SearchTermsPrompt asks for associative search terms for a question.
func SearchTermsPrompt(question string) string {
	return fmt.Sprintf(`You are a memory retrieval assistant.
Generate search terms that will find RELEVANT memories for the user's question, even if the memories use different words.

Think laterally and associatively:
- For a specific concept, include related higher-level concepts and connected topics.
- Include synonyms, technical terms and broader contexts.

USER QUESTION:
%s

OUTPUT FORMAT:
Return ONLY a pipe-separated list of terms. Example: term1|term 2|term3
Do not include any other text.`, question)
}

// ParseSearchTerms splits a pipe-separated reply, dropping blanks and
// duplicates while keeping order.
func ParseSearchTerms(reply string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range strings.Split(reply, "|") {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		terms = append(terms, t)
	}
	return terms
}
