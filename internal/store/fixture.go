package store

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Fixture is a YAML document describing one owner's notes and the edges
// between them. Edges refer to notes by their fixture key.
//
//	owner: alice
//	notes:
//	  - key: ownership
//	    title: Rust ownership
//	    body: Each value has a single owner.
//	    importance: 8
//	edges:
//	  - from: ownership
//	    to: borrowing
//	    type: RELATED_TO
//	    strength: 0.8
type Fixture struct {
	Owner string        `yaml:"owner"`
	Notes []FixtureNote `yaml:"notes"`
	Edges []FixtureEdge `yaml:"edges"`
}

type FixtureNote struct {
	Key        string `yaml:"key"`
	Title      string `yaml:"title"`
	Body       string `yaml:"body"`
	Importance int    `yaml:"importance"`
	Archived   bool   `yaml:"archived"`
}

type FixtureEdge struct {
	From     string       `yaml:"from"`
	To       string       `yaml:"to"`
	Type     RelationType `yaml:"type"`
	Strength float64      `yaml:"strength"`
}

// ImportResult reports what ImportFixture created.
type ImportResult struct {
	Notes int
	Edges int
	IDs   map[string]int64
}

// LoadFixture decodes a fixture document.
func LoadFixture(r io.Reader) (*Fixture, error) {
	return LoadFixtureAs(r, "")
}

// LoadFixtureAs decodes a fixture document, replacing its owner when owner
// is non-empty.
func LoadFixtureAs(r io.Reader, owner string) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if owner != "" {
		f.Owner = owner
	}
	if f.Owner == "" {
		return nil, fmt.Errorf("fixture owner required: %w", ErrInvalid)
	}
	seen := make(map[string]bool, len(f.Notes))
	for i, n := range f.Notes {
		if n.Key == "" {
			return nil, fmt.Errorf("fixture note %d has no key: %w", i, ErrInvalid)
		}
		if seen[n.Key] {
			return nil, fmt.Errorf("fixture note key %q repeated: %w", n.Key, ErrInvalid)
		}
		seen[n.Key] = true
	}
	for _, e := range f.Edges {
		if !seen[e.From] || !seen[e.To] {
			return nil, fmt.Errorf("fixture edge %s -> %s references unknown note: %w", e.From, e.To, ErrInvalid)
		}
	}
	return &f, nil
}

// ImportFixture creates the notes of f, then its edges. It stops at the
// first failure and reports how far it got.
func (db *DB) ImportFixture(ctx context.Context, f *Fixture) (*ImportResult, error) {
	res := &ImportResult{IDs: make(map[string]int64, len(f.Notes))}
	for _, fn := range f.Notes {
		n := &Note{
			Owner:      f.Owner,
			Title:      fn.Title,
			Body:       fn.Body,
			Importance: fn.Importance,
			Archived:   fn.Archived,
		}
		if err := db.CreateNote(ctx, n); err != nil {
			return res, fmt.Errorf("import note %q: %w", fn.Key, err)
		}
		res.IDs[fn.Key] = n.ID
		res.Notes++
	}
	for _, fe := range f.Edges {
		strength := fe.Strength
		if strength == 0 {
			strength = 0.5
		}
		e := &Edge{
			SourceID: res.IDs[fe.From],
			TargetID: res.IDs[fe.To],
			Type:     fe.Type,
			Strength: strength,
		}
		if err := db.CreateEdge(ctx, e); err != nil {
			return res, fmt.Errorf("import edge %s -> %s: %w", fe.From, fe.To, err)
		}
		res.Edges++
	}
	return res, nil
}
