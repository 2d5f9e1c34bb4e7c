// Package pipeline drives per-file processing of the returns corpus and the
// final merge: reconcile layout metadata with positional columns, normalize
// identifier missing codes, reshape wide rows to long form, and concatenate
// every file's long rows into one table.
package pipeline

import (
	"time"
)

// Identifiers names the three entity-identifier columns of a file: the
// state code, the county or unit name, and the unit identification number.
// Every file in the corpus uses the same leading triple.
type Identifiers struct {
	State    string
	UnitName string
	UnitID   string
}

// DefaultIdentifiers is the corpus-wide identifier convention.
var DefaultIdentifiers = Identifiers{State: "V1", UnitName: "V2", UnitID: "V3"}

// Contains reports whether varID is one of the identifier columns.
func (ids Identifiers) Contains(varID string) bool {
	return varID == ids.State || varID == ids.UnitName || varID == ids.UnitID
}

// AbsentMarker replaces identifier values that match a declared missing
// code. It is deliberately not a value the fixed-width reader can produce.
const AbsentMarker = "<absent>"

// UnresolvedNamePrefix prefixes the sentinel name of a column whose label
// could not be derived and has no registered override. The column is
// retained and flagged, never dropped.
const UnresolvedNamePrefix = "UNRESOLVED_"

// LongRow is the atomic unit of the merged output: one (entity, variable)
// pair with the entity identifiers replicated onto it.
type LongRow struct {
	State        string
	UnitName     string
	UnitID       string
	VarID        string
	Name         string
	RawValue     string
	MissingCodes []string
	SourceFile   string
}

// Flag kinds attached to output as data-quality audit records. Flags record
// anomalies; nothing is ever corrected by guessing.
const (
	FlagUnresolvedName   = "unresolved_name"
	FlagLayoutDiagnostic = "layout_diagnostic"
	FlagDuplicateRow     = "duplicate_row"
	FlagAnomalousYear    = "anomalous_year"
)

// QualityFlag is one audit record for a non-fatal condition.
type QualityFlag struct {
	FileID string
	VarID  string
	Kind   string
	Detail string
}

// FileResult is one file's processed output.
type FileResult struct {
	FileID   string
	Rows     []LongRow
	Flags    []QualityFlag
	WideRows int
	Duration time.Duration
}

// MergedTable is the terminal artifact: the ordered concatenation of every
// file's long rows plus the accumulated quality flags. Duplicate
// (file, entity, variable) rows are preserved as-is and flagged.
type MergedTable struct {
	Rows  []LongRow
	Flags []QualityFlag
}
