// Package fixedwidth slices fixed-width returns files into typed columns.
//
// The reader is position-driven only: it takes a schema's byte ranges and
// never looks at names or missing codes. Everything about a raw source that
// can corrupt positional slicing (embedded null bytes) is detected here and
// fails fast; supplying a sanitized substitute source is a pipeline policy
// decision, never something the reader does silently.
package fixedwidth

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/JonMunkholm/returns-etl/internal/layout"
)

// EmbeddedNullError reports a null byte in the raw text. Every line after
// the first embedded null reads as empty under positional slicing, so the
// whole file is unusable without a sanitized substitute.
type EmbeddedNullError struct {
	Path string
	Line int
}

func (e *EmbeddedNullError) Error() string {
	return fmt.Sprintf("embedded null byte in %s at line %d", e.Path, e.Line)
}

// Value is one parsed cell. A field whose raw bytes are all blank fill is
// present-but-empty, which is distinct from a sentinel missing code: the
// former never matched a declared code, the latter is a real value the
// normalizer may replace.
type Value struct {
	Raw   string // padding-trimmed text, exactly as sliced
	Int   int64
	IsInt bool
	Empty bool
}

// String returns the raw text of the value.
func (v Value) String() string { return v.Raw }

// Row is one entity's wide record: one value per schema column, keyed by
// variable id, plus the 1-based source line number.
type Row struct {
	Line   int
	Values map[string]Value
}

// Value returns the cell for a variable id.
func (r Row) Value(varID string) (Value, bool) {
	v, ok := r.Values[varID]
	return v, ok
}

// ReadFile reads the fixed-width file at path using the schema's byte
// ranges, preserving line order.
func ReadFile(path string, sch *layout.Schema) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file %s: %w", path, err)
	}
	defer f.Close()
	return Read(f, path, sch)
}

// Read slices each line of r into one Row per schema. The path is used for
// error reporting only.
func Read(r io.Reader, path string, sch *layout.Schema) ([]Row, error) {
	if err := sch.Validate(); err != nil {
		return nil, err
	}

	var rows []Row
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := sc.Bytes()
		if bytes.IndexByte(line, 0) >= 0 {
			return nil, &EmbeddedNullError{Path: path, Line: lineNum}
		}
		rows = append(rows, sliceLine(string(line), lineNum, sch))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read data file %s: %w", path, err)
	}
	return rows, nil
}

// sliceLine cuts one line into schema columns. Lines shorter than the
// schema's last byte position are treated as blank-filled to the right,
// which matches sources that strip trailing spaces.
func sliceLine(line string, lineNum int, sch *layout.Schema) Row {
	row := Row{Line: lineNum, Values: make(map[string]Value, len(sch.Columns))}
	for _, col := range sch.Columns {
		start := col.Start - 1
		end := col.End
		var raw string
		switch {
		case start >= len(line):
			raw = ""
		case end > len(line):
			raw = line[start:]
		default:
			raw = line[start:end]
		}
		row.Values[col.VarID] = parseValue(raw, col.Alpha)
	}
	return row
}

// parseValue types a sliced field. Digit-only content (optionally signed)
// parses as an integer unless the column is declared alphanumeric;
// anything else is retained as text.
func parseValue(raw string, alpha bool) Value {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Value{Empty: true}
	}
	v := Value{Raw: trimmed}
	if alpha || !isInteger(trimmed) {
		return v
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		// Wider than int64: keep as text.
		return v
	}
	v.Int = n
	v.IsInt = true
	return v
}

// isInteger reports whether s is an optionally signed run of digits.
func isInteger(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
