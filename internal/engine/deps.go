package engine

import (
	"context"

	"github.com/lazypower/recall/internal/store"
)

// MemoryStore is the read side of note storage the pipeline needs.
// *store.DB satisfies it.
type MemoryStore interface {
	FindActiveByOwnerRanked(ctx context.Context, owner string, q store.SearchQuery, limit int) ([]store.RankedNote, error)
	FindActiveByOwnerSubstring(ctx context.Context, owner, needle string, limit int) ([]store.Note, error)
	FindByIDs(ctx context.Context, ids []int64) ([]store.Note, error)
	FindByID(ctx context.Context, id int64) (*store.Note, error)
	ActiveNoteIDs(ctx context.Context, owner string) ([]int64, error)
}

// RelationshipStore is the read side of edge storage.
type RelationshipStore interface {
	FindAllTouching(ctx context.Context, ids []int64) ([]store.Edge, error)
	FindTouching(ctx context.Context, id int64) ([]store.Edge, error)
}

// IntentExpander suggests extra search terms for a question. It is an
// optional enrichment: nil or empty results are normal.
type IntentExpander interface {
	Expand(ctx context.Context, question, owner string) []string
}

// ScoredNote is a note with a relevance score in [0,1].
type ScoredNote struct {
	Note  store.Note
	Score float64
}

var (
	_ MemoryStore       = (*store.DB)(nil)
	_ RelationshipStore = (*store.DB)(nil)
)
