package engine

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/recall/internal/cache"
	"github.com/lazypower/recall/internal/llm"
	"github.com/lazypower/recall/internal/metrics"
	"github.com/lazypower/recall/internal/nlp"
)

// AnswersNamespace prefixes the per-owner answer cache namespace.
const AnswersNamespace = "answers"

// DefaultLimit is the number of notes retrieved when neither the request nor
// the options say otherwise.
const DefaultLimit = 10

// Source is a ranked note cited by an answer.
type Source struct {
	NoteID int64   `json:"note_id"`
	Title  string  `json:"title"`
	Score  float64 `json:"score"`
}

// AnswerResult is the outcome of Ask.
type AnswerResult struct {
	Question       string   `json:"question"`
	Answer         string   `json:"answer"`
	Confidence     float64  `json:"confidence"`
	Sources        []Source `json:"sources"`
	RelatedNoteIDs []int64  `json:"related_note_ids"`
	Cached         bool     `json:"cached"`
}

// Options configures an Engine.
type Options struct {
	Strategy        string  // "fulltext" (default) or "substring"
	Limit           int     // default notes per answer
	ExpansionScore  float64 // flat score of expanded notes
	IntentExpansion bool    // ask the backend for extra search terms
	Policy          llm.Policy
	Logger          *zap.Logger
	Metrics         *metrics.Collector
}

// Engine answers questions from an owner's notes.
type Engine struct {
	Notes    MemoryStore
	Ranker   *Ranker
	Expander *Expander
	Synth    *Synthesizer
	Cache    *cache.Cache

	limit   int
	log     *zap.Logger
	metrics *metrics.Collector
}

// New wires an Engine. client may be nil (template answers) and c may be nil
// (no caching).
func New(notes MemoryStore, edges RelationshipStore, client llm.Client, c *cache.Cache, opts Options) (*Engine, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if c == nil {
		c = cache.New(nil, cache.Config{}, log)
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = llm.DefaultPolicy()
	}

	var intent IntentExpander
	if opts.IntentExpansion && client != nil {
		intent = NewLLMExpander(client, c, opts.Policy, log.Named("intent"))
	}
	primary, err := NewStrategy(opts.Strategy, notes, intent)
	if err != nil {
		return nil, err
	}
	var fallback Strategy
	if primary.Name() != "substring" {
		fallback = &SubstringStrategy{Store: notes}
	}

	return &Engine{
		Notes:    notes,
		Ranker:   NewRanker(primary, fallback, log.Named("ranker"), opts.Metrics),
		Expander: NewExpander(notes, edges, opts.ExpansionScore, log.Named("expander")),
		Synth:    NewSynthesizer(client, opts.Policy, log.Named("synth"), opts.Metrics),
		Cache:    c,
		limit:    opts.Limit,
		log:      log,
		metrics:  opts.Metrics,
	}, nil
}

// Ask runs the full pipeline. The only error it returns is *ValidationError;
// every other failure degrades into the answer text.
func (e *Engine) Ask(ctx context.Context, req AskRequest) (*AnswerResult, error) {
	start := time.Now()
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	question, owner := req.Question, req.OwnerID
	limit := e.limit
	if req.MaxSources > 0 {
		limit = req.MaxSources
	}

	e.log.Debug("ask",
		zap.String("owner", owner),
		zap.String("question", question),
		zap.Strings("keywords", nlp.ExtractKeywords(question, keywordCount)))

	var ns string
	if e.Cache.Enabled() {
		fp, err := e.fingerprint(ctx, owner)
		if err != nil {
			e.log.Warn("note fingerprint failed, skipping cache", zap.String("owner", owner), zap.Error(err))
		} else {
			ns = AnswerNamespace(owner, fp)
			if hit := e.cachedAnswer(ctx, ns, question); hit != nil {
				hit.Question = question
				e.metrics.ObserveAsk(true, time.Since(start))
				return hit, nil
			}
		}
	}

	ranked := e.Ranker.Search(ctx, question, owner, limit)
	related := []ScoredNote{}
	if req.includeRelated() {
		related = e.Expander.Expand(ctx, ranked, owner)
	}
	syn := e.Synth.Synthesize(ctx, question, ranked, related)

	result := &AnswerResult{
		Question:       question,
		Answer:         syn.Text,
		Confidence:     Confidence(ranked),
		Sources:        make([]Source, 0, len(ranked)),
		RelatedNoteIDs: make([]int64, 0, len(related)),
	}
	for _, sn := range ranked {
		result.Sources = append(result.Sources, Source{NoteID: sn.Note.ID, Title: sn.Note.Title, Score: sn.Score})
	}
	for _, sn := range related {
		result.RelatedNoteIDs = append(result.RelatedNoteIDs, sn.Note.ID)
	}

	if syn.Generated && ns != "" {
		data, err := json.Marshal(result)
		if err == nil {
			err = e.Cache.Store(ctx, ns, question, string(data), result.Confidence)
		}
		if err != nil {
			e.log.Warn("cache answer", zap.String("namespace", ns), zap.Error(err))
		}
	}

	e.log.Info("answered",
		zap.String("owner", owner),
		zap.Int("sources", len(result.Sources)),
		zap.Int("related", len(result.RelatedNoteIDs)),
		zap.Float64("confidence", result.Confidence),
		zap.Duration("took", time.Since(start)))
	e.metrics.ObserveAsk(false, time.Since(start))
	return result, nil
}

// AnswerNamespace is the cache namespace for owner's answers computed over
// the note set hashed to fp. Clearing AnswersNamespace+":"+owner removes
// every fingerprint generation.
func AnswerNamespace(owner, fp string) string {
	return AnswersNamespace + ":" + owner + ":" + fp
}

// cachedAnswer returns a cached result for a similar question asked against
// the same note set, or nil.
func (e *Engine) cachedAnswer(ctx context.Context, ns, question string) *AnswerResult {
	res := e.Cache.Lookup(ctx, ns, question)
	if !res.Hit {
		return nil
	}
	var cached AnswerResult
	if err := json.Unmarshal([]byte(res.Value), &cached); err != nil {
		e.log.Warn("decode cached answer", zap.String("namespace", ns), zap.Error(err))
		return nil
	}
	cached.Cached = true
	e.log.Debug("answer cache hit",
		zap.String("namespace", ns),
		zap.Float64("similarity", res.Similarity))
	return &cached
}

// fingerprint hashes the set of note ids visible to owner.
func (e *Engine) fingerprint(ctx context.Context, owner string) (string, error) {
	ids, err := e.Notes.ActiveNoteIDs(ctx, owner)
	if err != nil {
		return "", fmt.Errorf("active note ids: %w", err)
	}
	slices.Sort(ids)
	h := fnv.New64a()
	var buf [8]byte
	for _, id := range ids {
		binary.BigEndian.PutUint64(buf[:], uint64(id))
		h.Write(buf[:])
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// Related lists notes linked to noteID.
func (e *Engine) Related(ctx context.Context, noteID int64, owner string) ([]RelatedNote, error) {
	return e.Expander.Related(ctx, noteID, owner)
}

// ClearCache removes every cache entry in ns and its sub-namespaces.
func (e *Engine) ClearCache(ctx context.Context, ns string) (int64, error) {
	return e.Cache.Clear(ctx, ns)
}

// CacheStats reports on ns.
func (e *Engine) CacheStats(ctx context.Context, ns string) (cache.Stats, error) {
	return e.Cache.Stats(ctx, ns)
}

// Close waits for background cache maintenance.
func (e *Engine) Close() error {
	return e.Cache.Close()
}
