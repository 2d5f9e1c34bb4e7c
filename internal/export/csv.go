// Package export serializes a merged run to flat delimited files. This is
// the sole output contract with downstream analysis: one row per long row,
// plus an optional audit file of quality flags.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JonMunkholm/returns-etl/internal/pipeline"
)

// header is the fixed output column set, shared by every file in the corpus.
var header = []string{
	"state", "unit_name", "unit_id",
	"var_id", "var_name", "raw_value", "missing_codes", "source_file",
}

var flagHeader = []string{"source_file", "var_id", "kind", "detail"}

// Write streams the merged table to w as CSV.
func Write(w io.Writer, table *pipeline.MergedTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range table.Rows {
		record := []string{
			row.State,
			row.UnitName,
			row.UnitID,
			row.VarID,
			row.Name,
			row.RawValue,
			strings.Join(row.MissingCodes, ";"),
			row.SourceFile,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFlags streams the quality flags to w as CSV.
func WriteFlags(w io.Writer, flags []pipeline.QualityFlag) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(flagHeader); err != nil {
		return fmt.Errorf("write flag header: %w", err)
	}
	for _, f := range flags {
		if err := cw.Write([]string{f.FileID, f.VarID, f.Kind, f.Detail}); err != nil {
			return fmt.Errorf("write flag row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the merged table to path, creating or truncating it.
func WriteFile(path string, table *pipeline.MergedTable) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := Write(f, table); err != nil {
		return err
	}
	return f.Close()
}
