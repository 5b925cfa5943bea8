package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
)

// ErrEmptyQuery is returned by ranked search when no usable term survives
// sanitization.
var ErrEmptyQuery = errors.New("store: empty search expression")

// SearchQuery is a disjunction of clauses; every clause is a conjunction of
// terms. {{"rust"}, {"borrow", "checker"}} reads as rust OR (borrow AND checker).
type SearchQuery struct {
	Clauses [][]string
}

// RankedNote is a note with its normalized full-text rank in [0,1].
type RankedNote struct {
	Note
	Rank float64
}

// FindActiveByOwnerRanked runs a full-text query over the owner's active
// notes. Title matches weigh more than body matches; ties fall back to
// importance.
func (db *DB) FindActiveByOwnerRanked(ctx context.Context, owner string, q SearchQuery, limit int) ([]RankedNote, error) {
	clauses := q.sanitized()
	if len(clauses) == 0 {
		return nil, ErrEmptyQuery
	}

	var query string
	var args []any
	switch db.Dialect {
	case Postgres:
		expr := tsquery(clauses)
		query = `
			SELECT ` + noteColumns + `, ts_rank(search, to_tsquery('english', ?)) AS rank
			FROM notes
			WHERE owner = ? AND archived = FALSE AND search @@ to_tsquery('english', ?)
			ORDER BY rank DESC, importance DESC
			LIMIT ?`
		args = []any{expr, owner, expr, limit}
	default:
		query = `
			SELECT n.id, n.owner, n.title, n.body, n.importance, n.archived, n.created_at, n.updated_at,
			       bm25(notes_fts, 2.0, 1.0) AS rank
			FROM notes_fts
			JOIN notes n ON n.id = notes_fts.rowid
			WHERE notes_fts MATCH ? AND n.owner = ? AND n.archived = 0
			ORDER BY rank, n.importance DESC
			LIMIT ?`
		args = []any{fts5(clauses), owner, limit}
	}

	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("ranked search: %w", err)
	}
	defer rows.Close()

	var results []RankedNote
	for rows.Next() {
		var r RankedNote
		var raw float64
		if err := rows.Scan(&r.ID, &r.Owner, &r.Title, &r.Body, &r.Importance,
			&r.Archived, &r.CreatedAt, &r.UpdatedAt, &raw); err != nil {
			return nil, fmt.Errorf("scan ranked note: %w", err)
		}
		r.Rank = db.normalizeRank(raw)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ranked search: %w", err)
	}
	return results, nil
}

// normalizeRank maps a backend rank onto [0,1], higher is better. bm25 is
// negative with larger magnitudes for better matches.
func (db *DB) normalizeRank(raw float64) float64 {
	if db.Dialect == Postgres {
		return math.Max(0, math.Min(1, raw))
	}
	m := math.Abs(raw)
	return m / (1 + m)
}

// sanitized strips every term down to letters and digits and drops empty
// terms and clauses.
func (q SearchQuery) sanitized() [][]string {
	var out [][]string
	for _, clause := range q.Clauses {
		var terms []string
		for _, t := range clause {
			if t = cleanTerm(t); t != "" {
				terms = append(terms, t)
			}
		}
		if len(terms) > 0 {
			out = append(out, terms)
		}
	}
	return out
}

func cleanTerm(t string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, t)
}

// fts5 renders `"a" OR ("b" AND "c")`.
func fts5(clauses [][]string) string {
	parts := make([]string, len(clauses))
	for i, c := range clauses {
		quoted := make([]string, len(c))
		for j, t := range c {
			quoted[j] = `"` + t + `"`
		}
		parts[i] = group(quoted, " AND ")
	}
	return strings.Join(parts, " OR ")
}

// tsquery renders `a | (b & c)`.
func tsquery(clauses [][]string) string {
	parts := make([]string, len(clauses))
	for i, c := range clauses {
		parts[i] = group(c, " & ")
	}
	return strings.Join(parts, " | ")
}

func group(terms []string, op string) string {
	if len(terms) == 1 {
		return terms[0]
	}
	return "(" + strings.Join(terms, op) + ")"
}
