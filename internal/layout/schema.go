// Package layout parses the column-layout descriptors that accompany each
// fixed-width returns file and models the resulting per-file schema.
//
// A descriptor declares three things the pipeline needs: byte positions for
// every variable (DATA LIST), human-readable variable labels (VARIABLE
// LABELS), and sentinel missing-value codes (MISSING VALUES). Position
// parsing is reliable; label and missing-code extraction is lossy in the
// observed corpus, so the descriptor keeps the raw declarations around for
// the reconciler and the exception registry to work with.
package layout

import (
	"fmt"
	"slices"
	"strings"
)

// ColumnSpec describes one fixed-width field of a returns file.
// Start and End are 1-based byte positions, both inclusive.
type ColumnSpec struct {
	VarID        string
	Start        int
	End          int
	Alpha        bool // declared (A) in the layout: alphanumeric field
	Name         string
	NameResolved bool
	MissingCodes []string
}

// Width returns the field width in bytes.
func (c ColumnSpec) Width() int {
	return c.End - c.Start + 1
}

// HasMissingCode reports whether raw exactly matches one of the declared
// sentinel codes. Matching is exact string equality; no range or fuzzy
// matching is ever applied.
func (c ColumnSpec) HasMissingCode(raw string) bool {
	return slices.Contains(c.MissingCodes, raw)
}

// Schema is the ordered column set for one file. It is built once per file
// and treated as immutable afterward; exception overrides patch a clone
// before the rest of the pipeline runs.
type Schema struct {
	FileID  string
	Columns []ColumnSpec
}

// Column returns the spec for a variable id, if present.
func (s *Schema) Column(varID string) (ColumnSpec, bool) {
	for _, c := range s.Columns {
		if c.VarID == varID {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// VarIDs returns the variable ids in schema order.
func (s *Schema) VarIDs() []string {
	ids := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		ids[i] = c.VarID
	}
	return ids
}

// Clone returns a deep copy. Overrides mutate the copy, never the original.
func (s *Schema) Clone() *Schema {
	out := &Schema{FileID: s.FileID, Columns: make([]ColumnSpec, len(s.Columns))}
	copy(out.Columns, s.Columns)
	for i := range out.Columns {
		out.Columns[i].MissingCodes = slices.Clone(out.Columns[i].MissingCodes)
	}
	return out
}

// Validate checks the structural invariants: at least one column, unique
// variable ids, positive widths, and byte ranges that are ordered and
// non-overlapping.
func (s *Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema %s: no columns", s.FileID)
	}
	seen := make(map[string]bool, len(s.Columns))
	prevEnd := 0
	for _, c := range s.Columns {
		if c.VarID == "" {
			return fmt.Errorf("schema %s: column with empty variable id", s.FileID)
		}
		if seen[c.VarID] {
			return fmt.Errorf("schema %s: duplicate variable id %s", s.FileID, c.VarID)
		}
		seen[c.VarID] = true
		if c.Start <= 0 || c.End < c.Start {
			return fmt.Errorf("schema %s: %s has invalid range %d-%d", s.FileID, c.VarID, c.Start, c.End)
		}
		if c.Start <= prevEnd {
			return fmt.Errorf("schema %s: %s range %d-%d overlaps previous column ending at %d",
				s.FileID, c.VarID, c.Start, c.End, prevEnd)
		}
		prevEnd = c.End
	}
	return nil
}

// CanonicalName converts a raw label into variable-name form: uppercase,
// with runs of spaces and punctuation folded to single underscores.
// "Cong. Dist Number-1827" becomes "CONG_DIST_NUMBER_1827".
func CanonicalName(label string) string {
	var b strings.Builder
	b.Grow(len(label))
	lastUnderscore := true // suppress leading underscore
	for _, r := range strings.ToUpper(strings.TrimSpace(label)) {
		switch {
		case r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}
