// Package interactions checks tracked medications against a static table of
// known drug interactions.
//
// The table is not a complete interaction database: the absence of a
// warning never means a combination is safe.
package interactions

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/normalizer"
)

// Disclaimer is returned to callers together with any interaction result.
const Disclaimer = "La ausencia de advertencias no garantiza que la combinación sea segura. Consulte a su médico o farmacéutico."

// Entry is one known interaction between two generic names.
type Entry struct {
	Drugs    [2]string         `json:"drugs"`
	Severity entities.Severity `json:"severity"`
	Message  string            `json:"message"`
}

// tableFile is the on-disk JSON layout of a table.
type tableFile struct {
	Version      string            `json:"version"`
	Interactions []Entry           `json:"interactions"`
	Aliases      map[string]string `json:"aliases"`
}

type pairKey [2]string

func makeKey(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a, b}
}

// Table is an immutable, versioned interaction lookup. Build a new table to
// change its content; never mutate one that has been published.
type Table struct {
	version string
	entries map[pairKey]Entry
	aliases map[string]string
}

// NewTable validates and indexes entries under canonical pair keys.
func NewTable(version string, entries []Entry, aliases map[string]string) (*Table, error) {
	if version == "" {
		return nil, fmt.Errorf("interaction table version cannot be empty")
	}

	t := &Table{
		version: version,
		entries: make(map[pairKey]Entry, len(entries)),
		aliases: make(map[string]string, len(aliases)),
	}

	for brand, generic := range aliases {
		b, g := foldName(brand), foldName(generic)
		if b == "" || g == "" {
			return nil, fmt.Errorf("invalid alias %q -> %q", brand, generic)
		}
		t.aliases[b] = g
	}

	for _, e := range entries {
		switch e.Severity {
		case entities.SeverityHigh, entities.SeverityMedium, entities.SeverityLow:
		default:
			return nil, fmt.Errorf("invalid severity %q for %v", e.Severity, e.Drugs)
		}
		a, b := t.Canonical(e.Drugs[0]), t.Canonical(e.Drugs[1])
		if a == "" || b == "" || a == b {
			return nil, fmt.Errorf("invalid interaction pair %v", e.Drugs)
		}
		key := makeKey(a, b)
		if _, dup := t.entries[key]; dup {
			return nil, fmt.Errorf("duplicate interaction pair %v", key)
		}
		e.Drugs = key
		t.entries[key] = e
	}
	return t, nil
}

// LoadTable reads a JSON table of the form
// {"version": "...", "interactions": [...], "aliases": {...}}.
func LoadTable(r io.Reader) (*Table, error) {
	var f tableFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode interaction table: %w", err)
	}
	return NewTable(f.Version, f.Interactions, f.Aliases)
}

// Version identifies the table content.
func (t *Table) Version() string { return t.version }

// Len is the number of known interaction pairs.
func (t *Table) Len() int { return len(t.entries) }

// Canonical folds a medication name and resolves brand aliases, so that
// "Glucophage 850 mg tabletas" becomes "metformina".
func (t *Table) Canonical(name string) string {
	n := foldName(name)
	if g, ok := t.aliases[n]; ok {
		return g
	}
	return n
}

// Lookup returns the interaction between two canonical names in either order.
func (t *Table) Lookup(a, b string) (Entry, bool) {
	e, ok := t.entries[makeKey(a, b)]
	return e, ok
}

// foldName drops dosage and form words and lowercases the remainder.
func foldName(name string) string {
	return strings.ToLower(normalizer.Normalize(name).Text)
}
