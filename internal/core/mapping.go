package core

// mapping.go binds the header row of a source to a profile's attributes.
//
// Matching is case-insensitive on cleaned header text. Several configured
// headers may alias the same attribute ("Nom" and "Name"); the first one
// present in the file wins. Missing headers only produce warnings, except
// when no header for the natural key is present: that aborts the run before
// any row is read.

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingKeyColumn is returned when no header backs the natural key.
var ErrMissingKeyColumn = errors.New("missing required column")

// HeaderIndex maps cleaned, lowercased header labels to their column position.
type HeaderIndex map[string]int

// MakeHeaderIndex creates a HeaderIndex from a header row.
// The first occurrence of a duplicated label wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if key == "" {
			continue
		}
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = i
	}
	return idx
}

// MappedColumn is an attribute bound to a source column.
type MappedColumn struct {
	Header string
	Index  int
	Spec   AttributeSpec
}

// ColumnMapping is the result of matching a header row against a profile.
type ColumnMapping struct {
	Columns  []MappedColumn // In profile order, one per attribute
	Key      MappedColumn   // Column backing the natural key
	Missing  []string       // Configured headers absent from the file
	Warnings []string
}

// MapHeaders builds the column mapping for a header row.
func MapHeaders(header []string, p Profile) (ColumnMapping, error) {
	idx := MakeHeaderIndex(header)
	var m ColumnMapping

	seen := make(map[string]bool, len(header))
	for _, h := range header {
		key := strings.ToLower(CleanCell(h))
		if key == "" {
			continue
		}
		if seen[key] {
			m.Warnings = append(m.Warnings, fmt.Sprintf("duplicate header %q: only the first column is used", CleanCell(h)))
		}
		seen[key] = true
	}

	bound := make(map[string]bool, len(p.Columns))
	keyFound := false

	for _, col := range p.Columns {
		pos, ok := idx[strings.ToLower(CleanCell(col.Header))]
		if !ok {
			m.Missing = append(m.Missing, col.Header)
			continue
		}
		if bound[col.Attribute] {
			m.Warnings = append(m.Warnings, fmt.Sprintf("header %q ignored: attribute %q already mapped", col.Header, col.Attribute))
			continue
		}

		spec, ok := p.Attribute(col.Attribute)
		if !ok {
			return ColumnMapping{}, fmt.Errorf("profile %s: header %q maps to undeclared attribute %q", p.Key, col.Header, col.Attribute)
		}
		if col.Attribute == p.KeyAttr {
			// The natural key is compared verbatim, whatever its declared kind.
			spec.Kind = KindText
			m.Key = MappedColumn{Header: col.Header, Index: pos, Spec: spec}
			keyFound = true
		}

		bound[col.Attribute] = true
		m.Columns = append(m.Columns, MappedColumn{Header: col.Header, Index: pos, Spec: spec})
	}

	if !keyFound {
		return ColumnMapping{}, fmt.Errorf("%w for key %q (expected one of: %s)",
			ErrMissingKeyColumn, p.KeyAttr, strings.Join(keyHeaders(p), ", "))
	}

	// Aliases of an attribute that was mapped through another header are not worth a warning.
	missing := m.Missing[:0]
	for _, h := range m.Missing {
		if attr := attributeFor(p, h); attr != "" && bound[attr] {
			continue
		}
		missing = append(missing, h)
		m.Warnings = append(m.Warnings, fmt.Sprintf("column %q not found in file", h))
	}
	m.Missing = missing

	return m, nil
}

func keyHeaders(p Profile) []string {
	var out []string
	for _, c := range p.Columns {
		if c.Attribute == p.KeyAttr {
			out = append(out, c.Header)
		}
	}
	return out
}

func attributeFor(p Profile, header string) string {
	for _, c := range p.Columns {
		if c.Header == header {
			return c.Attribute
		}
	}
	return ""
}
