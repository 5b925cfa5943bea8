package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lazypower/recall/internal/store"
)

// DefaultExpansionScore is the flat score given to every expanded note.
const DefaultExpansionScore = 0.5

// Expander pulls in notes one edge away from the seeds.
type Expander struct {
	Notes MemoryStore
	Edges RelationshipStore
	Score float64
	log   *zap.Logger
}

// NewExpander creates an expander. A score outside (0,1] uses
// DefaultExpansionScore.
func NewExpander(notes MemoryStore, edges RelationshipStore, score float64, log *zap.Logger) *Expander {
	if score <= 0 || score > 1 {
		score = DefaultExpansionScore
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Expander{Notes: notes, Edges: edges, Score: score, log: log}
}

// Expand returns the owner's active notes that share an edge with any seed,
// excluding the seeds themselves. It makes exactly two store calls for a
// non-empty seed set and none for an empty one. Store errors yield an empty
// expansion.
func (x *Expander) Expand(ctx context.Context, seeds []ScoredNote, owner string) []ScoredNote {
	if len(seeds) == 0 {
		return []ScoredNote{}
	}

	processed := make(map[int64]bool, len(seeds))
	ids := make([]int64, 0, len(seeds))
	for _, s := range seeds {
		if !processed[s.Note.ID] {
			processed[s.Note.ID] = true
			ids = append(ids, s.Note.ID)
		}
	}

	edges, err := x.Edges.FindAllTouching(ctx, ids)
	if err != nil {
		x.log.Warn("expansion: load edges", zap.String("owner", owner), zap.Error(err))
		return []ScoredNote{}
	}

	var candidates []int64
	for _, e := range edges {
		other := e.TargetID
		if processed[other] {
			other = e.SourceID
		}
		if processed[other] {
			continue
		}
		processed[other] = true
		candidates = append(candidates, other)
	}
	if len(candidates) == 0 {
		return []ScoredNote{}
	}

	notes, err := x.Notes.FindByIDs(ctx, candidates)
	if err != nil {
		x.log.Warn("expansion: load notes", zap.String("owner", owner), zap.Error(err))
		return []ScoredNote{}
	}
	byID := make(map[int64]store.Note, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
	}

	out := make([]ScoredNote, 0, len(candidates))
	for _, id := range candidates {
		n, ok := byID[id]
		if !ok || n.Owner != owner || n.Archived {
			continue
		}
		out = append(out, ScoredNote{Note: n, Score: x.Score})
	}
	return out
}

// RelatedNote is a neighbor of a single note along with the connecting edge.
type RelatedNote struct {
	Note     store.Note         `json:"note"`
	Relation store.RelationType `json:"relation"`
	Strength float64            `json:"strength"`
}

// Related lists the owner's active notes directly linked to noteID, in edge
// order. It returns store.ErrNotFound when the note does not exist or belongs
// to someone else.
func (x *Expander) Related(ctx context.Context, noteID int64, owner string) ([]RelatedNote, error) {
	note, err := x.Notes.FindByID(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("load note %d: %w", noteID, err)
	}
	if note == nil || note.Owner != owner {
		return nil, fmt.Errorf("note %d: %w", noteID, store.ErrNotFound)
	}

	edges, err := x.Edges.FindTouching(ctx, noteID)
	if err != nil {
		return nil, fmt.Errorf("load edges for %d: %w", noteID, err)
	}
	if len(edges) == 0 {
		return []RelatedNote{}, nil
	}

	seen := make(map[int64]bool)
	var ids []int64
	for _, e := range edges {
		other := e.Other(noteID)
		if !seen[other] {
			seen[other] = true
			ids = append(ids, other)
		}
	}
	notes, err := x.Notes.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load related notes: %w", err)
	}
	byID := make(map[int64]store.Note, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
	}

	out := make([]RelatedNote, 0, len(edges))
	for _, e := range edges {
		n, ok := byID[e.Other(noteID)]
		if !ok || n.Owner != owner || n.Archived {
			continue
		}
		out = append(out, RelatedNote{Note: n, Relation: e.Type, Strength: e.Strength})
	}
	return out, nil
}
