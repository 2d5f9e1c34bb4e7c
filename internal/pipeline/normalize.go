package pipeline

import (
	"github.com/JonMunkholm/returns-etl/internal/fixedwidth"
	"github.com/JonMunkholm/returns-etl/internal/layout"
)

// NormalizeIdentifiers replaces identifier-column values that exactly match
// a declared missing code with AbsentMarker. Only the entity-identifier
// columns are touched: election-value columns keep their raw sentinel codes
// (annotated with the codes on every long row) so downstream consumers can
// still tell zero votes, not-reported, and not-applicable apart.
//
// A new row slice is returned; the input is never mutated.
func NormalizeIdentifiers(rows []fixedwidth.Row, sch *layout.Schema, ids Identifiers) []fixedwidth.Row {
	targets := make([]layout.ColumnSpec, 0, 3)
	for _, c := range sch.Columns {
		if ids.Contains(c.VarID) && len(c.MissingCodes) > 0 {
			targets = append(targets, c)
		}
	}
	if len(targets) == 0 {
		return rows
	}

	out := make([]fixedwidth.Row, len(rows))
	for i, row := range rows {
		values := make(map[string]fixedwidth.Value, len(row.Values))
		for id, v := range row.Values {
			values[id] = v
		}
		for _, col := range targets {
			v, ok := values[col.VarID]
			if !ok || v.Empty {
				continue
			}
			if col.HasMissingCode(v.Raw) {
				values[col.VarID] = fixedwidth.Value{Raw: AbsentMarker}
			}
		}
		out[i] = fixedwidth.Row{Line: row.Line, Values: values}
	}
	return out
}
