package pipeline

import (
	"context"
	"reflect"
	"testing"

	"github.com/JonMunkholm/returns-etl/internal/corpus"
)

// ============================================================================
// Merge Tests
// ============================================================================

func longRow(file, state, unitID, varID, name, value string) LongRow {
	return LongRow{
		State: state, UnitName: "UNIT " + unitID, UnitID: unitID,
		VarID: varID, Name: name, RawValue: value, SourceFile: file,
	}
}

func TestMerge_RoundTrip(t *testing.T) {
	a := &FileResult{FileID: "007", Rows: []LongRow{
		longRow("007", "01", "0001010", "V4", "PRES_1836_TOTAL_VOTE", "1234567"),
		longRow("007", "01", "0001020", "V4", "PRES_1836_TOTAL_VOTE", "0000042"),
	}}
	b := &FileResult{FileID: "012", Rows: []LongRow{
		longRow("012", "02", "0002010", "V444", "PRES_1892_TOTAL_VOTE", "0000777"),
	}}

	table := Merge([]*FileResult{a, b})

	if len(table.Rows) != 3 {
		t.Fatalf("expected 3 merged rows, got %d", len(table.Rows))
	}
	// Splitting the merged table by source file recovers each input exactly.
	split := make(map[string][]LongRow)
	for _, row := range table.Rows {
		split[row.SourceFile] = append(split[row.SourceFile], row)
	}
	if !reflect.DeepEqual(split["007"], a.Rows) {
		t.Errorf("file 007 rows not recovered:\ngot  %+v\nwant %+v", split["007"], a.Rows)
	}
	if !reflect.DeepEqual(split["012"], b.Rows) {
		t.Errorf("file 012 rows not recovered:\ngot  %+v\nwant %+v", split["012"], b.Rows)
	}
	if len(table.Flags) != 0 {
		t.Errorf("expected no flags, got %+v", table.Flags)
	}
}

func TestMerge_FlagsDuplicateRows(t *testing.T) {
	dup := longRow("007", "01", "0001010", "V4", "PRES_1836_TOTAL_VOTE", "1234567")
	res := &FileResult{FileID: "007", Rows: []LongRow{dup, dup}}

	table := Merge([]*FileResult{res})

	// Both copies are preserved; the second one is flagged.
	if len(table.Rows) != 2 {
		t.Fatalf("duplicate row was dropped: %d rows", len(table.Rows))
	}
	var flags []QualityFlag
	for _, f := range table.Flags {
		if f.Kind == FlagDuplicateRow {
			flags = append(flags, f)
		}
	}
	if len(flags) != 1 {
		t.Fatalf("expected exactly one duplicate_row flag, got %+v", table.Flags)
	}
	if flags[0].FileID != "007" || flags[0].VarID != "V4" {
		t.Errorf("flag points at the wrong row: %+v", flags[0])
	}
}

func TestMerge_SameEntityAcrossFilesIsNotDuplicate(t *testing.T) {
	a := &FileResult{FileID: "007", Rows: []LongRow{
		longRow("007", "01", "0001010", "V4", "PRES_1836_TOTAL_VOTE", "1234567"),
	}}
	b := &FileResult{FileID: "008", Rows: []LongRow{
		longRow("008", "01", "0001010", "V4", "PRES_1840_TOTAL_VOTE", "1234568"),
	}}
	table := Merge([]*FileResult{a, b})
	for _, f := range table.Flags {
		if f.Kind == FlagDuplicateRow {
			t.Errorf("cross-file rows flagged as duplicates: %+v", f)
		}
	}
}

func TestMerge_FlagsAnomalousPresidentialYear(t *testing.T) {
	res := &FileResult{FileID: "042", Rows: []LongRow{
		longRow("042", "01", "0001010", "V4", "PRES_1837_TOTAL_VOTE", "1"),
		longRow("042", "01", "0001020", "V4", "PRES_1837_TOTAL_VOTE", "2"),
		longRow("042", "01", "0001010", "V5", "PRES_1836_VOTE_DEM", "3"),
	}}

	table := Merge([]*FileResult{res})

	var flags []QualityFlag
	for _, f := range table.Flags {
		if f.Kind == FlagAnomalousYear {
			flags = append(flags, f)
		}
	}
	// One flag per (file, variable), not per row; quadrennial years pass.
	if len(flags) != 1 {
		t.Fatalf("expected exactly one anomalous_year flag, got %+v", table.Flags)
	}
	if flags[0].VarID != "V4" {
		t.Errorf("flag points at the wrong variable: %+v", flags[0])
	}
	// Flagged rows stay in the table unchanged.
	if len(table.Rows) != 3 {
		t.Errorf("anomalous rows were dropped: %d rows", len(table.Rows))
	}
}

func TestMerge_CarriesFileFlags(t *testing.T) {
	res := &FileResult{FileID: "007", Flags: []QualityFlag{
		{FileID: "007", VarID: "V5", Kind: FlagUnresolvedName, Detail: "no label"},
	}}
	table := Merge([]*FileResult{res})
	if len(table.Flags) != 1 || table.Flags[0].Kind != FlagUnresolvedName {
		t.Errorf("per-file flags not carried: %+v", table.Flags)
	}
}

// ============================================================================
// Runner Tests
// ============================================================================

func TestRunner_Run_IsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	lay := "DATA LIST / V1 1-2 V2 3-12 (A) V3 13-19 V4 20-26.\n" +
		"VARIABLE LABELS V1 'ICPSR STATE CODE' / V2 'COUNTY NAME' / V3 'IDENTIFICATION NUMBER' / V4 'PRES 1880 TOTAL VOTE'."
	data := "01AAAAAAAAAA00000011234567\n" +
		"01BBBBBBBBBB00000020000042\n"

	writeFixture(t, dir, "file0301/data.txt", data)
	writeFixture(t, dir, "file0301/layout.sps", lay)
	writeFixture(t, dir, "file0302/data.txt", data)
	writeFixture(t, dir, "file0302/layout.sps", lay)
	writeFixture(t, dir, "file0303/data.txt", data)
	writeFixture(t, dir, "file0303/layout.sps", "DATA LIST / V1 1-5 V2 3-8.") // overlapping ranges

	m := &corpus.Manifest{
		Files: []corpus.Entry{
			{ID: "303", Data: "file0303/data.txt", Layout: "file0303/layout.sps"},
			{ID: "301", Data: "file0301/data.txt", Layout: "file0301/layout.sps"},
			{ID: "302", Data: "file0302/data.txt", Layout: "file0302/layout.sps"},
		},
		Excluded: []corpus.Exclusion{
			{ID: "304", Reason: "party code lookup, joined downstream"},
		},
	}

	runner := &Runner{Root: dir, Workers: 2, Log: discard()}
	report, err := runner.Run(context.Background(), m)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if report.RunID == "" {
		t.Error("missing run id")
	}
	if !reflect.DeepEqual(report.Processed, []string{"301", "302"}) {
		t.Errorf("expected processed [301 302], got %v", report.Processed)
	}
	if len(report.Failures) != 1 || report.Failures[0].FileID != "303" {
		t.Fatalf("expected one failure for 303, got %+v", report.Failures)
	}
	if len(report.Excluded) != 1 || report.Excluded[0].ID != "304" {
		t.Errorf("exclusions not carried: %+v", report.Excluded)
	}
	// 2 files x 2 wide rows x 1 value column.
	if report.RowCount() != 4 {
		t.Errorf("expected 4 merged rows, got %d", report.RowCount())
	}
	// Deterministic merge order: all of 301 before any of 302.
	for i, row := range report.Table.Rows {
		want := "301"
		if i >= 2 {
			want = "302"
		}
		if row.SourceFile != want {
			t.Errorf("row %d: expected source %s, got %s", i, want, row.SourceFile)
		}
	}
}

func TestRunner_Run_Cancellation(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "file0301/data.txt", "01AAAAAAAAAA00000011234567\n")
	writeFixture(t, dir, "file0301/layout.sps", "DATA LIST / V1 1-2 V2 3-12 (A) V3 13-19 V4 20-26.")

	m := &corpus.Manifest{Files: []corpus.Entry{
		{ID: "301", Data: "file0301/data.txt", Layout: "file0301/layout.sps"},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &Runner{Root: dir, Workers: 1, Log: discard()}
	if _, err := runner.Run(ctx, m); err == nil {
		t.Fatal("expected cancellation error, got nil")
	}
}
