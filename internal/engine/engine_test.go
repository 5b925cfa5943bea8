package engine

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/recall/internal/cache"
	"github.com/lazypower/recall/internal/llm"
	"github.com/lazypower/recall/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type seeded struct {
	ownership, borrow, lifetimes, gil, archived, bobs *store.Note
}

func addNote(t *testing.T, db *store.DB, owner, title, body string, importance int) *store.Note {
	t.Helper()
	n := &store.Note{Owner: owner, Title: title, Body: body, Importance: importance}
	require.NoError(t, db.CreateNote(context.Background(), n))
	return n
}

func addEdge(t *testing.T, db *store.DB, from, to *store.Note, typ store.RelationType) {
	t.Helper()
	require.NoError(t, db.CreateEdge(context.Background(), &store.Edge{SourceID: from.ID, TargetID: to.ID, Type: typ, Strength: 0.7}))
}

// seed builds a small graph for alice:
//
//	ownership -SUPPORTS-> borrow -RELATED_TO-> lifetimes
//	ownership -RELATED_TO-> archived (archived)
//	gil (isolated)
//
// plus one note for bob.
func seed(t *testing.T, db *store.DB) seeded {
	t.Helper()
	s := seeded{
		ownership: addNote(t, db, "alice", "Rust ownership", "Each value in Rust has a single owner. Ownership moves on assignment.", 8),
		borrow:    addNote(t, db, "alice", "Borrow checker", "References must not outlive the owner of the data.", 6),
		lifetimes: addNote(t, db, "alice", "Lifetimes", "Lifetimes annotate how long references stay valid.", 5),
		gil:       addNote(t, db, "alice", "Python GIL", "The global interpreter lock serializes bytecode execution.", 5),
		archived:  addNote(t, db, "alice", "Old rust ownership notes", "Superseded notes on Rust ownership.", 9),
		bobs:      addNote(t, db, "bob", "Rust ownership", "Bob keeps his own rust ownership notes.", 10),
	}
	addEdge(t, db, s.ownership, s.borrow, store.Supports)
	addEdge(t, db, s.borrow, s.lifetimes, store.RelatedTo)
	addEdge(t, db, s.ownership, s.archived, store.RelatedTo)

	s.archived.Archived = true
	require.NoError(t, db.UpdateNote(context.Background(), s.archived))
	return s
}

func fastPolicy() llm.Policy {
	return llm.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}
}

func testCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	c := cache.New(rdb, cache.DefaultConfig(), nil)
	t.Cleanup(func() { c.Close() })
	return c
}

func newEngine(t *testing.T, db *store.DB, client llm.Client, c *cache.Cache) *Engine {
	t.Helper()
	e, err := New(db, db, client, c, Options{Policy: fastPolicy()})
	require.NoError(t, err)
	return e
}

func answerClient(text string) *llm.MockClient {
	return &llm.MockClient{Response: &llm.Response{Content: text, Provider: "mock"}}
}

func TestAskAnswersFromNotes(t *testing.T) {
	db := testDB(t)
	s := seed(t, db)
	mock := answerClient("Every Rust value has exactly one owner.")
	e := newEngine(t, db, mock, nil)

	res, err := e.Ask(context.Background(), AskRequest{Question: "  What did I learn about Rust ownership?  ", OwnerID: "alice"})
	require.NoError(t, err)

	assert.Equal(t, "What did I learn about Rust ownership?", res.Question)
	assert.Equal(t, "Every Rust value has exactly one owner.", res.Answer)
	assert.False(t, res.Cached)
	require.NotEmpty(t, res.Sources)
	assert.Equal(t, s.ownership.ID, res.Sources[0].NoteID)
	for _, src := range res.Sources {
		assert.NotEqual(t, s.archived.ID, src.NoteID)
		assert.NotEqual(t, s.bobs.ID, src.NoteID)
	}
	assert.Contains(t, res.RelatedNoteIDs, s.borrow.ID)
	assert.NotContains(t, res.RelatedNoteIDs, s.archived.ID)
	assert.Greater(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)

	require.Equal(t, 1, mock.CallCount())
	assert.Contains(t, mock.Calls[0], "(related) Borrow checker")
}

func TestAskCachesRephrasedQuestions(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	mock := answerClient("Every Rust value has exactly one owner.")
	e := newEngine(t, db, mock, testCache(t))
	ctx := context.Background()

	first, err := e.Ask(ctx, AskRequest{Question: "What did I learn about Rust ownership?", OwnerID: "alice"})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := e.Ask(ctx, AskRequest{Question: "Tell me about Rust's ownership model", OwnerID: "alice"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "Tell me about Rust's ownership model", second.Question)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Sources, second.Sources)
	assert.Equal(t, 1, mock.CallCount(), "cache hit must not reach the backend")

	other, err := e.Ask(ctx, AskRequest{Question: "Tell me about Rust's ownership model", OwnerID: "bob"})
	require.NoError(t, err)
	assert.False(t, other.Cached, "owners do not share cached answers")
}

func TestAskNewNoteInvalidatesCache(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	mock := answerClient("Every Rust value has exactly one owner.")
	e := newEngine(t, db, mock, testCache(t))
	ctx := context.Background()
	req := AskRequest{Question: "What did I learn about Rust ownership?", OwnerID: "alice"}

	_, err := e.Ask(ctx, req)
	require.NoError(t, err)

	addNote(t, db, "alice", "Ownership and closures", "Closures can take ownership with move.", 7)

	res, err := e.Ask(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, mock.CallCount())

	// The entry from the old note set must not shadow the fresh one.
	res, err = e.Ask(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, 2, mock.CallCount())
}

func TestAskBelowThresholdMisses(t *testing.T) {
	db := testDB(t)
	addNote(t, db, "alice", "Alpha bravo charlie", "Alpha bravo charlie delta echo foxtrot drills.", 5)
	mock := answerClient("Phonetic alphabet drills.")
	e := newEngine(t, db, mock, testCache(t))
	ctx := context.Background()

	_, err := e.Ask(ctx, AskRequest{Question: "alpha bravo charlie delta echo", OwnerID: "alice"})
	require.NoError(t, err)
	require.Equal(t, 1, mock.CallCount())

	// Four of six distinct keywords shared: 0.667, under the 0.70 threshold.
	res, err := e.Ask(ctx, AskRequest{Question: "alpha bravo charlie delta foxtrot", OwnerID: "alice"})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, mock.CallCount())

	res, err = e.Ask(ctx, AskRequest{Question: "echo delta charlie bravo alpha", OwnerID: "alice"})
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, 2, mock.CallCount())
}

func TestAskDoesNotCacheFallbackAnswers(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	ctx := context.Background()
	req := AskRequest{Question: "What did I learn about Rust ownership?", OwnerID: "alice"}

	t.Run("template", func(t *testing.T) {
		e := newEngine(t, db, nil, testCache(t))
		for i := 0; i < 2; i++ {
			res, err := e.Ask(ctx, req)
			require.NoError(t, err)
			assert.False(t, res.Cached)
			assert.Contains(t, res.Answer, "Based on your memories, here's what I found:")
		}
	})

	t.Run("overloaded", func(t *testing.T) {
		mock := &llm.MockClient{Err: llm.ErrUnavailable}
		e := newEngine(t, db, mock, testCache(t))
		for i := 0; i < 2; i++ {
			res, err := e.Ask(ctx, req)
			require.NoError(t, err)
			assert.Equal(t, OverloadedAnswer, res.Answer)
			assert.False(t, res.Cached)
		}
		assert.Equal(t, 6, mock.CallCount())
	})
}

func TestAskWithoutMatches(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	mock := answerClient("unused")
	e := newEngine(t, db, mock, nil)

	res, err := e.Ask(context.Background(), AskRequest{Question: "What's the weather today?", OwnerID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, InsufficientMemoriesAnswer, res.Answer)
	assert.Empty(t, res.Sources)
	assert.NotNil(t, res.Sources)
	assert.Empty(t, res.RelatedNoteIDs)
	assert.Zero(t, res.Confidence)
	assert.Zero(t, mock.CallCount())
}

func TestAskOptions(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	e := newEngine(t, db, answerClient("ok"), nil)
	no := false

	res, err := e.Ask(context.Background(), AskRequest{
		Question:       "Rust ownership and the borrow checker",
		OwnerID:        "alice",
		MaxSources:     1,
		IncludeRelated: &no,
	})
	require.NoError(t, err)
	assert.Len(t, res.Sources, 1)
	assert.Empty(t, res.RelatedNoteIDs)
}

func TestAskRejectsInvalidRequests(t *testing.T) {
	db := testDB(t)
	mock := answerClient("unused")
	e := newEngine(t, db, mock, nil)

	_, err := e.Ask(context.Background(), AskRequest{Question: "  ", OwnerID: "alice"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "question", verr.Field)

	_, err = e.Ask(context.Background(), AskRequest{Question: "What about Rust?", OwnerID: "alice:work"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "owner_id", verr.Field)
	assert.Zero(t, mock.CallCount())
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	db := testDB(t)
	_, err := New(db, db, nil, nil, Options{Strategy: "vector"})
	assert.Error(t, err)
}

func TestCacheAdmin(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	e := newEngine(t, db, answerClient("Every Rust value has exactly one owner."), testCache(t))
	ctx := context.Background()

	_, err := e.Ask(ctx, AskRequest{Question: "What did I learn about Rust ownership?", OwnerID: "alice"})
	require.NoError(t, err)

	st, err := e.CacheStats(ctx, "answers:alice")
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.EqualValues(t, 1, st.EntryCount)

	n, err := e.ClearCache(ctx, "answers:alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	st, err = e.CacheStats(ctx, "answers:alice")
	require.NoError(t, err)
	assert.Zero(t, st.EntryCount)
}

func TestCacheAdminSpansNoteGenerations(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	e := newEngine(t, db, answerClient("Every Rust value has exactly one owner."), testCache(t))
	ctx := context.Background()
	req := AskRequest{Question: "What did I learn about Rust ownership?", OwnerID: "alice"}

	_, err := e.Ask(ctx, req)
	require.NoError(t, err)
	addNote(t, db, "alice", "Ownership and closures", "Closures can take ownership with move.", 7)
	_, err = e.Ask(ctx, req)
	require.NoError(t, err)
	_, err = e.Ask(ctx, AskRequest{Question: req.Question, OwnerID: "bob"})
	require.NoError(t, err)

	st, err := e.CacheStats(ctx, "answers:alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.EntryCount)

	n, err := e.ClearCache(ctx, "answers:alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	st, err = e.CacheStats(ctx, "answers:bob")
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.EntryCount)
}
