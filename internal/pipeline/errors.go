package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/returns-etl/internal/fixedwidth"
	"github.com/JonMunkholm/returns-etl/internal/layout"
)

// SchemaMismatchError reports a wide-row column with no corresponding
// column spec, or a column spec absent from the rows, after exception
// overrides are applied. Fatal for the file: silent column loss would
// corrupt the merge.
type SchemaMismatchError struct {
	FileID          string
	MissingInSchema []string // row keys with no column spec
	MissingInRows   []string // schema ids absent from the rows
}

func (e *SchemaMismatchError) Error() string {
	var parts []string
	if len(e.MissingInSchema) > 0 {
		parts = append(parts, fmt.Sprintf("row columns with no spec: %s", strings.Join(e.MissingInSchema, ", ")))
	}
	if len(e.MissingInRows) > 0 {
		parts = append(parts, fmt.Sprintf("specs with no row column: %s", strings.Join(e.MissingInRows, ", ")))
	}
	return fmt.Sprintf("schema mismatch in file %s: %s", e.FileID, strings.Join(parts, "; "))
}

// verifyRows checks that every row carries exactly the unified schema's
// column set.
func verifyRows(fileID string, rows []fixedwidth.Row, sch *layout.Schema) error {
	if len(rows) == 0 {
		return nil
	}
	want := make(map[string]bool, len(sch.Columns))
	for _, c := range sch.Columns {
		want[c.VarID] = true
	}
	for _, row := range rows {
		var mismatch SchemaMismatchError
		for id := range row.Values {
			if !want[id] {
				mismatch.MissingInSchema = append(mismatch.MissingInSchema, id)
			}
		}
		for id := range want {
			if _, ok := row.Values[id]; !ok {
				mismatch.MissingInRows = append(mismatch.MissingInRows, id)
			}
		}
		if len(mismatch.MissingInSchema) > 0 || len(mismatch.MissingInRows) > 0 {
			mismatch.FileID = fileID
			sort.Strings(mismatch.MissingInSchema)
			sort.Strings(mismatch.MissingInRows)
			return &mismatch
		}
	}
	return nil
}
