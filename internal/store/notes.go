package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a note or edge id does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrArchived is returned when changing the content of an archived note.
	ErrArchived = errors.New("store: note is archived")
	// ErrInvalid is returned for notes or edges that violate the data model.
	ErrInvalid = errors.New("store: invalid record")
)

// Note is a single owner-scoped memory.
type Note struct {
	ID         int64  `json:"id"`
	Owner      string `json:"owner"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Importance int    `json:"importance"`
	Archived   bool   `json:"archived"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// DefaultImportance is applied when a note is created without one.
const DefaultImportance = 5

const noteColumns = "id, owner, title, body, importance, archived, created_at, updated_at"

// CreateNote inserts a note and fills in its id and timestamps.
func (db *DB) CreateNote(ctx context.Context, n *Note) error {
	if n.Importance == 0 {
		n.Importance = DefaultImportance
	}
	if err := validateNote(n); err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	err := db.QueryRowContext(ctx, db.rebind(`
		INSERT INTO notes (owner, title, body, importance, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), n.Owner, n.Title, n.Body, n.Importance, db.boolArg(n.Archived), now, now).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	n.CreatedAt = now
	n.UpdatedAt = now
	return nil
}

// UpdateNote writes title, body, importance and archived state. Once a note
// is archived its title and body are frozen; only importance and the
// archived flag may still change.
func (db *DB) UpdateNote(ctx context.Context, n *Note) error {
	if err := validateNote(n); err != nil {
		return err
	}
	existing, err := db.FindByID(ctx, n.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("update note %d: %w", n.ID, ErrNotFound)
	}
	if existing.Owner != n.Owner {
		return fmt.Errorf("update note %d: owner cannot change: %w", n.ID, ErrInvalid)
	}
	if existing.Archived && (existing.Title != n.Title || existing.Body != n.Body) {
		return fmt.Errorf("update note %d: %w", n.ID, ErrArchived)
	}

	now := time.Now().UnixMilli()
	_, err = db.ExecContext(ctx, db.rebind(`
		UPDATE notes SET title = ?, body = ?, importance = ?, archived = ?, updated_at = ?
		WHERE id = ?
	`), n.Title, n.Body, n.Importance, db.boolArg(n.Archived), now, n.ID)
	if err != nil {
		return fmt.Errorf("update note %d: %w", n.ID, err)
	}
	n.CreatedAt = existing.CreatedAt
	n.UpdatedAt = now
	return nil
}

// FindByID returns the note with the given id, or nil if none exists.
func (db *DB) FindByID(ctx context.Context, id int64) (*Note, error) {
	rows, err := db.QueryContext(ctx, db.rebind(
		"SELECT "+noteColumns+" FROM notes WHERE id = ?"), id)
	if err != nil {
		return nil, fmt.Errorf("find note %d: %w", id, err)
	}
	defer rows.Close()

	notes, err := scanNotes(rows)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, nil
	}
	return &notes[0], nil
}

// FindByIDs batch-loads notes in a single query. Missing ids are skipped.
func (db *DB) FindByIDs(ctx context.Context, ids []int64) ([]Note, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf("SELECT %s FROM notes WHERE id IN (%s) ORDER BY id", noteColumns, placeholders(len(ids)))
	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("find notes by ids: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

// ActiveNoteIDs lists the ids of the owner's non-archived notes in ascending
// order.
func (db *DB) ActiveNoteIDs(ctx context.Context, owner string) ([]int64, error) {
	rows, err := db.QueryContext(ctx, db.rebind(
		"SELECT id FROM notes WHERE owner = ? AND archived = "+db.falseLit()+" ORDER BY id"), owner)
	if err != nil {
		return nil, fmt.Errorf("active note ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan note id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindActiveByOwnerSubstring matches needle case-insensitively against title
// and body of the owner's active notes, most important first. Folding is
// Unicode-aware on both dialects.
func (db *DB) FindActiveByOwnerSubstring(ctx context.Context, owner, needle string, limit int) ([]Note, error) {
	pattern := "%" + escapeLike(strings.ToLower(needle)) + "%"
	lower := db.lowerFunc()
	rows, err := db.QueryContext(ctx, db.rebind(`
		SELECT `+noteColumns+` FROM notes
		WHERE owner = ? AND archived = `+db.falseLit()+`
		  AND (`+lower+`(title) LIKE ? ESCAPE '\' OR `+lower+`(body) LIKE ? ESCAPE '\')
		ORDER BY importance DESC, id
		LIMIT ?
	`), owner, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}
	defer rows.Close()
	return scanNotes(rows)
}

// CountNotes returns the number of notes held for owner, archived included.
func (db *DB) CountNotes(ctx context.Context, owner string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, db.rebind("SELECT COUNT(*) FROM notes WHERE owner = ?"), owner).Scan(&n)
	return n, err
}

func validateNote(n *Note) error {
	switch {
	case strings.TrimSpace(n.Owner) == "":
		return fmt.Errorf("note owner required: %w", ErrInvalid)
	case strings.TrimSpace(n.Title) == "":
		return fmt.Errorf("note title required: %w", ErrInvalid)
	case n.Importance < 1 || n.Importance > 10:
		return fmt.Errorf("note importance %d outside 1..10: %w", n.Importance, ErrInvalid)
	}
	return nil
}

func scanNotes(rows *sql.Rows) ([]Note, error) {
	var notes []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.Owner, &n.Title, &n.Body, &n.Importance,
			&n.Archived, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (db *DB) lowerFunc() string {
	if db.Dialect == Postgres {
		return "LOWER"
	}
	return "unicode_lower"
}

func (db *DB) falseLit() string {
	if db.Dialect == Postgres {
		return "FALSE"
	}
	return "0"
}

func (db *DB) boolArg(b bool) any {
	if db.Dialect == Postgres {
		return b
	}
	if b {
		return 1
	}
	return 0
}
