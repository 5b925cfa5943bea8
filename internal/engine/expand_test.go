package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/recall/internal/store"
)

func ids(notes []ScoredNote) []int64 {
	out := make([]int64, len(notes))
	for i, n := range notes {
		out[i] = n.Note.ID
	}
	return out
}

func TestExpandOneHop(t *testing.T) {
	db := testDB(t)
	s := seed(t, db)
	x := NewExpander(db, db, 0, nil)
	ctx := context.Background()

	got := x.Expand(ctx, []ScoredNote{{Note: *s.ownership, Score: 0.9}}, "alice")
	assert.Equal(t, []int64{s.borrow.ID}, ids(got), "archived neighbor is skipped")
	assert.Equal(t, DefaultExpansionScore, got[0].Score)

	got = x.Expand(ctx, []ScoredNote{{Note: *s.ownership}, {Note: *s.borrow}}, "alice")
	assert.Equal(t, []int64{s.lifetimes.ID}, ids(got), "seeds are never expanded into")

	got = x.Expand(ctx, []ScoredNote{{Note: *s.gil}}, "alice")
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestExpandFiltersOwner(t *testing.T) {
	f := &fakeNotes{byID: map[int64]store.Note{
		2: {ID: 2, Owner: "bob", Title: "foreign"},
		3: {ID: 3, Owner: "alice", Title: "mine"},
	}}
	e := &fakeEdges{edges: []store.Edge{{SourceID: 1, TargetID: 2}, {SourceID: 3, TargetID: 1}}}
	x := NewExpander(f, e, 0.4, nil)

	got := x.Expand(context.Background(), []ScoredNote{{Note: store.Note{ID: 1, Owner: "alice"}}}, "alice")
	assert.Equal(t, []int64{3}, ids(got))
	assert.Equal(t, 0.4, got[0].Score)
}

func TestExpandStoreCalls(t *testing.T) {
	f := &fakeNotes{}
	e := &fakeEdges{}
	x := NewExpander(f, e, 0, nil)

	got := x.Expand(context.Background(), nil, "alice")
	assert.Empty(t, got)
	assert.Zero(t, e.calls)
	assert.Zero(t, f.byIDsCalls)

	e.edges = []store.Edge{{SourceID: 1, TargetID: 2}}
	f.byID = map[int64]store.Note{2: {ID: 2, Owner: "alice"}}
	x.Expand(context.Background(), []ScoredNote{{Note: store.Note{ID: 1}}}, "alice")
	assert.Equal(t, 1, e.calls)
	assert.Equal(t, 1, f.byIDsCalls)
}

func TestExpandErrorsYieldNothing(t *testing.T) {
	seeds := []ScoredNote{{Note: store.Note{ID: 1}}}

	x := NewExpander(&fakeNotes{}, &fakeEdges{err: errors.New("boom")}, 0, nil)
	assert.Empty(t, x.Expand(context.Background(), seeds, "alice"))

	x = NewExpander(&fakeNotes{byIDsErr: errors.New("boom")}, &fakeEdges{edges: []store.Edge{{SourceID: 1, TargetID: 2}}}, 0, nil)
	got := x.Expand(context.Background(), seeds, "alice")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRelated(t *testing.T) {
	db := testDB(t)
	s := seed(t, db)
	x := NewExpander(db, db, 0, nil)
	ctx := context.Background()

	got, err := x.Related(ctx, s.borrow.ID, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []int64{s.ownership.ID, s.lifetimes.ID}, []int64{got[0].Note.ID, got[1].Note.ID})
	for _, r := range got {
		assert.Equal(t, 0.7, r.Strength)
	}

	got, err = x.Related(ctx, s.gil.ID, "alice")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = x.Related(ctx, s.ownership.ID, "bob")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = x.Related(ctx, 9999, "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
