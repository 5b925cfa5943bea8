package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/recall/internal/llm"
	"github.com/lazypower/recall/internal/metrics"
)

// Fixed replies for the paths that never reach, or never hear back from, the
// generation backend.
const (
	InsufficientMemoriesAnswer = "I don't have any memories related to this question. Try creating some memories first with relevant information."
	OverloadedAnswer           = "Sorry, the AI service is currently overloaded. Please try again later."
	BackendErrorAnswer         = "Sorry, I encountered an error while communicating with the AI service."
	EmptyGenerationAnswer      = "I couldn't generate an answer from the AI model."
)

// Synthesis is the synthesizer's output. Generated is true only for text the
// backend actually produced with an answer, which is what may be cached.
type Synthesis struct {
	Text      string
	Generated bool
}

// Synthesizer turns ranked and related notes into an answer.
type Synthesizer struct {
	LLM     llm.Client // nil selects the template answer
	Policy  llm.Policy
	log     *zap.Logger
	metrics *metrics.Collector
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(client llm.Client, policy llm.Policy, log *zap.Logger, m *metrics.Collector) *Synthesizer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Synthesizer{LLM: client, Policy: policy, log: log, metrics: m}
	s.Policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		s.log.Warn("generation backend busy, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.Policy.MaxAttempts),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}
	return s
}

// Synthesize never fails; every error path ends in one of the fixed replies.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, ranked, related []ScoredNote) Synthesis {
	if len(ranked) == 0 {
		return Synthesis{Text: InsufficientMemoriesAnswer}
	}
	if s.LLM == nil {
		return Synthesis{Text: TemplateAnswer(question, ranked, related, Confidence(ranked))}
	}

	notes := make([]llm.PromptNote, 0, len(ranked)+len(related))
	for _, sn := range ranked {
		notes = append(notes, llm.PromptNote{Title: sn.Note.Title, Body: sn.Note.Body})
	}
	for _, sn := range related {
		notes = append(notes, llm.PromptNote{Title: sn.Note.Title, Body: sn.Note.Body, Related: true})
	}

	resp, err := llm.CompleteWithRetry(ctx, s.LLM, llm.AnswerPrompt(question, notes), s.Policy)
	switch {
	case err == nil:
	case llm.Retryable(err):
		s.log.Error("generation backend exhausted retries", zap.Error(err))
		s.metrics.Generation(outcome(err))
		return Synthesis{Text: OverloadedAnswer}
	default:
		s.log.Error("generation backend failed", zap.Error(err))
		s.metrics.Generation("error")
		return Synthesis{Text: BackendErrorAnswer}
	}

	text := ""
	if resp != nil {
		text = strings.TrimSpace(resp.Content)
	}
	if text == "" {
		s.metrics.Generation("empty")
		return Synthesis{Text: EmptyGenerationAnswer}
	}
	s.metrics.Generation("ok")
	return Synthesis{Text: text, Generated: !strings.Contains(text, llm.NoInfoAnswer)}
}

func outcome(err error) string {
	if errors.Is(err, llm.ErrRateLimited) {
		return "rate_limited"
	}
	return "unavailable"
}
