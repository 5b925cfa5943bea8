package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/lazypower/recall/internal/metrics"
	"github.com/lazypower/recall/internal/nlp"
	"github.com/lazypower/recall/internal/store"
)

const keywordCount = 5

// Strategy retrieves scored candidate notes for a question.
type Strategy interface {
	Name() string
	Search(ctx context.Context, question, owner string, limit int) ([]ScoredNote, error)
}

// NewStrategy returns the strategy named by retrieval.strategy.
func NewStrategy(name string, notes MemoryStore, intent IntentExpander) (Strategy, error) {
	switch name {
	case "", "fulltext":
		return &FullTextStrategy{Store: notes, Intent: intent}, nil
	case "substring":
		return &SubstringStrategy{Store: notes}, nil
	default:
		return nil, fmt.Errorf("unknown retrieval strategy %q", name)
	}
}

// FullTextStrategy queries the store's full-text index with the question's
// keywords and significant words.
type FullTextStrategy struct {
	Store  MemoryStore
	Intent IntentExpander // optional
}

func (s *FullTextStrategy) Name() string { return "fulltext" }

// Search scores each hit as max(index rank, cosine(question, title+body)).
func (s *FullTextStrategy) Search(ctx context.Context, question, owner string, limit int) ([]ScoredNote, error) {
	keywords := nlp.ExtractKeywords(question, keywordCount)
	if s.Intent != nil {
		keywords = append(keywords, s.Intent.Expand(ctx, question, owner)...)
	}

	ranked, err := s.Store.FindActiveByOwnerRanked(ctx, owner, BuildQuery(keywords, question), limit)
	if err != nil {
		return nil, err
	}

	out := make([]ScoredNote, 0, len(ranked))
	for _, r := range ranked {
		score := max(r.Rank, nlp.Cosine(question, r.Title+" "+r.Body))
		out = append(out, ScoredNote{Note: r.Note, Score: clamp01(score)})
	}
	sortByScore(out)
	return out, nil
}

// SubstringStrategy matches the whole lowercased question against titles and
// bodies. Scores are cosine only.
type SubstringStrategy struct {
	Store MemoryStore
}

func (s *SubstringStrategy) Name() string { return "substring" }

func (s *SubstringStrategy) Search(ctx context.Context, question, owner string, limit int) ([]ScoredNote, error) {
	needle := strings.ToLower(strings.TrimSpace(question))
	notes, err := s.Store.FindActiveByOwnerSubstring(ctx, owner, needle, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredNote, 0, len(notes))
	for _, n := range notes {
		out = append(out, ScoredNote{Note: n, Score: nlp.Cosine(question, n.Title+" "+n.Body)})
	}
	// Store order is importance; the stable sort keeps it among equal scores.
	sortByScore(out)
	return out, nil
}

// BuildQuery turns keywords and the question's significant words into a
// disjunction of conjunctive clauses, deduplicated.
func BuildQuery(keywords []string, question string) store.SearchQuery {
	var q store.SearchQuery
	seen := make(map[string]bool)
	add := func(words []string) {
		if len(words) == 0 {
			return
		}
		key := strings.Join(words, " ")
		if seen[key] {
			return
		}
		seen[key] = true
		q.Clauses = append(q.Clauses, words)
	}

	for _, kw := range keywords {
		add(strings.Fields(strings.ToLower(kw)))
	}
	for _, w := range nlp.SignificantWords(question) {
		add([]string{w})
	}
	return q
}

// Ranker runs the primary strategy and falls back to substring matching
// when it fails. It never returns an error.
type Ranker struct {
	primary  Strategy
	fallback Strategy
	log      *zap.Logger
	metrics  *metrics.Collector
}

// NewRanker builds a ranker. fallback may be nil.
func NewRanker(primary, fallback Strategy, log *zap.Logger, m *metrics.Collector) *Ranker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ranker{primary: primary, fallback: fallback, log: log, metrics: m}
}

// Search returns at most limit notes by descending score.
func (r *Ranker) Search(ctx context.Context, question, owner string, limit int) []ScoredNote {
	notes, _ := r.Retrieve(ctx, question, owner, limit)
	return notes
}

// Retrieve is Search that also names the strategy whose results were used,
// or "none" when every strategy failed.
func (r *Ranker) Retrieve(ctx context.Context, question, owner string, limit int) ([]ScoredNote, string) {
	notes, err := r.primary.Search(ctx, question, owner, limit)
	if err == nil {
		r.metrics.Retrieval(r.primary.Name())
		return truncateNotes(notes, limit), r.primary.Name()
	}
	r.log.Warn("retrieval failed",
		zap.String("strategy", r.primary.Name()),
		zap.String("owner", owner),
		zap.Error(err))

	if r.fallback == nil {
		return []ScoredNote{}, "none"
	}
	notes, err = r.fallback.Search(ctx, question, owner, limit)
	if err != nil {
		r.log.Warn("fallback retrieval failed",
			zap.String("strategy", r.fallback.Name()),
			zap.String("owner", owner),
			zap.Error(err))
		return []ScoredNote{}, "none"
	}
	r.metrics.Retrieval(r.fallback.Name())
	return truncateNotes(notes, limit), r.fallback.Name()
}

func sortByScore(notes []ScoredNote) {
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].Score > notes[j].Score })
}

func truncateNotes(notes []ScoredNote, limit int) []ScoredNote {
	if limit > 0 && len(notes) > limit {
		return notes[:limit]
	}
	return notes
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
