package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrCrossOwner is returned when an edge would link notes of different owners.
var ErrCrossOwner = errors.New("store: edge endpoints belong to different owners")

// RelationType classifies an edge.
type RelationType string

const (
	RelatedTo   RelationType = "RELATED_TO"
	CausedBy    RelationType = "CAUSED_BY"
	FollowedBy  RelationType = "FOLLOWED_BY"
	Supports    RelationType = "SUPPORTS"
	Contradicts RelationType = "CONTRADICTS"
	Revisits    RelationType = "REVISITS"
	AutoLinked  RelationType = "AUTO_LINKED"
)

var relationTypes = map[RelationType]bool{
	RelatedTo: true, CausedBy: true, FollowedBy: true, Supports: true,
	Contradicts: true, Revisits: true, AutoLinked: true,
}

// Valid reports whether t is a known relation type.
func (t RelationType) Valid() bool { return relationTypes[t] }

// Edge is a directed, weighted link between two notes of the same owner.
type Edge struct {
	ID        int64        `json:"id"`
	SourceID  int64        `json:"source_id"`
	TargetID  int64        `json:"target_id"`
	Type      RelationType `json:"relation_type"`
	Strength  float64      `json:"strength"`
	CreatedAt int64        `json:"created_at"`
}

// Other returns the endpoint opposite id.
func (e Edge) Other(id int64) int64 {
	if e.SourceID == id {
		return e.TargetID
	}
	return e.SourceID
}

const edgeColumns = "id, source_id, target_id, relation_type, strength, created_at"

// CreateEdge links two existing notes. Both notes must share an owner.
func (db *DB) CreateEdge(ctx context.Context, e *Edge) error {
	if e.Type == "" {
		e.Type = RelatedTo
	}
	switch {
	case !e.Type.Valid():
		return fmt.Errorf("relation type %q: %w", e.Type, ErrInvalid)
	case e.Strength < 0 || e.Strength > 1:
		return fmt.Errorf("edge strength %v outside [0,1]: %w", e.Strength, ErrInvalid)
	case e.SourceID == e.TargetID:
		return fmt.Errorf("edge links note %d to itself: %w", e.SourceID, ErrInvalid)
	}

	notes, err := db.FindByIDs(ctx, []int64{e.SourceID, e.TargetID})
	if err != nil {
		return err
	}
	if len(notes) != 2 {
		return fmt.Errorf("edge %d -> %d: %w", e.SourceID, e.TargetID, ErrNotFound)
	}
	if notes[0].Owner != notes[1].Owner {
		return ErrCrossOwner
	}

	now := time.Now().UnixMilli()
	err = db.QueryRowContext(ctx, db.rebind(`
		INSERT INTO edges (source_id, target_id, relation_type, strength, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`), e.SourceID, e.TargetID, string(e.Type), e.Strength, now).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("create edge: %w", err)
	}
	e.CreatedAt = now
	return nil
}

// FindAllTouching returns every edge with either endpoint in ids, in one
// round trip.
func (db *DB) FindAllTouching(ctx context.Context, ids []int64) ([]Edge, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, 2*len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	for _, id := range ids {
		args = append(args, id)
	}
	ph := placeholders(len(ids))

	query := fmt.Sprintf(`SELECT %s FROM edges WHERE source_id IN (%s) OR target_id IN (%s) ORDER BY id`,
		edgeColumns, ph, ph)
	rows, err := db.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("find edges touching: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// FindTouching returns the edges with id at either end.
func (db *DB) FindTouching(ctx context.Context, id int64) ([]Edge, error) {
	rows, err := db.QueryContext(ctx, db.rebind(
		"SELECT "+edgeColumns+" FROM edges WHERE source_id = ? OR target_id = ? ORDER BY id"), id, id)
	if err != nil {
		return nil, fmt.Errorf("find edges for %d: %w", id, err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

func scanEdges(rows *sql.Rows) ([]Edge, error) {
	var edges []Edge
	for rows.Next() {
		var e Edge
		var rel string
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &rel, &e.Strength, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.Type = RelationType(rel)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
