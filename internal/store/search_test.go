package store

import (
	"context"
	"errors"
	"testing"
)

func seedSearch(t *testing.T, db *DB) (rust, borrow, gil *Note) {
	t.Helper()
	ctx := context.Background()
	rust = mustNote(t, db, "alice", "Rust ownership", "Each value in Rust has a single owner; ownership moves on assignment.", 8)
	borrow = mustNote(t, db, "alice", "Borrow checker", "References must not outlive the owner. The borrow checker enforces it.", 6)
	gil = mustNote(t, db, "alice", "Python GIL", "The global interpreter lock serializes bytecode.", 5)
	mustNote(t, db, "bob", "Rust ownership", "Bob also studies rust ownership.", 10)

	old := mustNote(t, db, "alice", "Old rust notes", "Rust ownership, archived.", 9)
	old.Archived = true
	if err := db.UpdateNote(ctx, old); err != nil {
		t.Fatalf("archive: %v", err)
	}
	return rust, borrow, gil
}

func TestFindActiveByOwnerRanked(t *testing.T) {
	db := testDB(t)
	rust, _, _ := seedSearch(t, db)

	results, err := db.FindActiveByOwnerRanked(context.Background(), "alice",
		SearchQuery{Clauses: [][]string{{"ownership"}}}, 10)
	if err != nil {
		t.Fatalf("ranked: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (owner and archive filters)", len(results))
	}
	if results[0].ID != rust.ID {
		t.Errorf("result = %d, want %d", results[0].ID, rust.ID)
	}
	if results[0].Rank <= 0 || results[0].Rank >= 1 {
		t.Errorf("rank = %v, want within (0,1)", results[0].Rank)
	}
}

func TestFindActiveByOwnerRankedDisjunction(t *testing.T) {
	db := testDB(t)
	_, borrow, gil := seedSearch(t, db)

	q := SearchQuery{Clauses: [][]string{{"borrow", "checker"}, {"python"}}}
	results, err := db.FindActiveByOwnerRanked(context.Background(), "alice", q, 10)
	if err != nil {
		t.Fatalf("ranked: %v", err)
	}
	got := map[int64]bool{}
	for _, r := range results {
		got[r.ID] = true
	}
	if len(results) != 2 || !got[borrow.ID] || !got[gil.ID] {
		t.Errorf("results = %+v, want borrow checker and GIL notes", results)
	}
}

func TestFindActiveByOwnerRankedLimit(t *testing.T) {
	db := testDB(t)
	for i := 0; i < 5; i++ {
		mustNote(t, db, "alice", "Kubernetes", "kubernetes operators", 5)
	}
	results, err := db.FindActiveByOwnerRanked(context.Background(), "alice",
		SearchQuery{Clauses: [][]string{{"kubernetes"}}}, 3)
	if err != nil {
		t.Fatalf("ranked: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestFindActiveByOwnerRankedEmptyQuery(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, q := range []SearchQuery{{}, {Clauses: [][]string{{"!!!", `"`}}}} {
		_, err := db.FindActiveByOwnerRanked(ctx, "alice", q, 10)
		if !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("query %+v: err = %v, want ErrEmptyQuery", q, err)
		}
	}
}

func TestQueryRendering(t *testing.T) {
	q := SearchQuery{Clauses: [][]string{{"Rust"}, {"borrow", "check-er"}, {"", "*"}}}
	clauses := q.sanitized()
	if len(clauses) != 2 {
		t.Fatalf("sanitized = %v", clauses)
	}
	if got, want := fts5(clauses), `"rust" OR ("borrow" AND "checker")`; got != want {
		t.Errorf("fts5 = %q, want %q", got, want)
	}
	if got, want := tsquery(clauses), `rust | (borrow & checker)`; got != want {
		t.Errorf("tsquery = %q, want %q", got, want)
	}
}

func TestNormalizeRank(t *testing.T) {
	sq := &DB{Dialect: SQLite}
	if a, b := sq.normalizeRank(-1), sq.normalizeRank(-4); !(a < b) {
		t.Errorf("stronger bm25 should rank higher: %v vs %v", a, b)
	}
	pg := &DB{Dialect: Postgres}
	if got := pg.normalizeRank(1.7); got != 1 {
		t.Errorf("postgres rank clamp = %v, want 1", got)
	}
}
