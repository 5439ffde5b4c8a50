package compiler

import (
	"sort"

	"github.com/rubiojr/enaml/source"
)

// Location maps a position in generated host code to the markup span the
// code at that position was produced from.
type Location struct {
	Line int
	Col  int
	Span source.Span
}

func (l Location) before(line, col int) bool {
	return l.Line < line || (l.Line == line && l.Col <= col)
}

// LocationTable is the single source of truth for translating generated
// positions back to markup spans. Entries are ordered by generated
// position.
type LocationTable struct {
	entries []Location
}

// NewLocationTable builds a table from entries in any order.
func NewLocationTable(entries []Location) *LocationTable {
	t := &LocationTable{entries: append([]Location(nil), entries...)}
	sort.SliceStable(t.entries, func(i, j int) bool {
		a, b := t.entries[i], t.entries[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Col < b.Col
	})
	return t
}

// add records a mapping. Positions arrive in emission order; a second
// mapping at the same position replaces the first, so the innermost node
// printed there wins.
func (t *LocationTable) add(line, col int, sp source.Span) {
	if n := len(t.entries); n > 0 {
		last := &t.entries[n-1]
		if last.Line == line && last.Col == col {
			last.Span = sp
			return
		}
	}
	t.entries = append(t.entries, Location{Line: line, Col: col, Span: sp})
}

// Lookup returns the span recorded at (line, col), or the span of the
// nearest preceding entry. It reports false when no entry precedes the
// position.
func (t *LocationTable) Lookup(line, col int) (source.Span, bool) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return !t.entries[i].before(line, col)
	})
	if i == 0 {
		return source.Span{}, false
	}
	return t.entries[i-1].Span, true
}

// Len returns the number of entries.
func (t *LocationTable) Len() int { return len(t.entries) }

// Entries returns a copy of the entries in generated order.
func (t *LocationTable) Entries() []Location {
	return append([]Location(nil), t.entries...)
}
