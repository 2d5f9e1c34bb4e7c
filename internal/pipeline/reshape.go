package pipeline

import (
	"github.com/JonMunkholm/returns-etl/internal/fixedwidth"
	"github.com/JonMunkholm/returns-etl/internal/layout"
)

// Reshape converts a file's wide rows into long form: exactly one LongRow
// per (entity, non-identifier variable) pair, with the entity identifiers
// replicated onto every row. Output order is source row order, then schema
// column order; downstream grouping relies on first-row-per-group selection,
// so this insertion order is an invariant, not a convenience.
func Reshape(fileID string, rows []fixedwidth.Row, sch *layout.Schema, ids Identifiers) []LongRow {
	valueCols := make([]layout.ColumnSpec, 0, len(sch.Columns))
	for _, c := range sch.Columns {
		if !ids.Contains(c.VarID) {
			valueCols = append(valueCols, c)
		}
	}

	out := make([]LongRow, 0, len(rows)*len(valueCols))
	for _, row := range rows {
		state := rawOf(row, ids.State)
		unitName := rawOf(row, ids.UnitName)
		unitID := rawOf(row, ids.UnitID)
		for _, col := range valueCols {
			v := row.Values[col.VarID]
			out = append(out, LongRow{
				State:        state,
				UnitName:     unitName,
				UnitID:       unitID,
				VarID:        col.VarID,
				Name:         col.Name,
				RawValue:     v.Raw,
				MissingCodes: col.MissingCodes,
				SourceFile:   fileID,
			})
		}
	}
	return out
}

func rawOf(row fixedwidth.Row, varID string) string {
	if v, ok := row.Values[varID]; ok {
		return v.Raw
	}
	return ""
}
