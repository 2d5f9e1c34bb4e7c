package pipeline

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/JonMunkholm/returns-etl/internal/exceptions"
	"github.com/JonMunkholm/returns-etl/internal/layout"
)

// ============================================================================
// Default Reconciliation Tests
// ============================================================================

func defaultDescriptor() *layout.Descriptor {
	return &layout.Descriptor{
		FileID: "007",
		Columns: []layout.ColumnSpec{
			{VarID: "V1", Start: 1, End: 2},
			{VarID: "V2", Start: 3, End: 12, Alpha: true},
			{VarID: "V3", Start: 13, End: 19},
			{VarID: "V4", Start: 20, End: 26},
			{VarID: "V5", Start: 27, End: 33},
		},
		Labels: []layout.LabelEntry{
			{IDToken: "V1", Label: "ICPSR STATE CODE"},
			{IDToken: "V2", Label: "COUNTY NAME"},
			{IDToken: "V3", Label: "IDENTIFICATION NUMBER"},
			{IDToken: "V4", Label: "PRES 1836 TOTAL VOTE"},
		},
		Missing: []layout.MissingEntry{
			{IDToken: "V4", Codes: []string{"9999999"}},
			{IDToken: "V5", Codes: []string{"9999999"}},
		},
	}
}

func TestReconcile_Default(t *testing.T) {
	sch, flags := Reconcile(defaultDescriptor(), exceptions.Override{})

	want := map[string]string{
		"V1": "ICPSR_STATE_CODE",
		"V2": "COUNTY_NAME",
		"V3": "IDENTIFICATION_NUMBER",
		"V4": "PRES_1836_TOTAL_VOTE",
	}
	for id, name := range want {
		col, ok := sch.Column(id)
		if !ok {
			t.Fatalf("missing column %s", id)
		}
		if !col.NameResolved || col.Name != name {
			t.Errorf("%s: expected resolved name %q, got %q (resolved=%v)", id, name, col.Name, col.NameResolved)
		}
	}

	// V5 has no label: sentinel name plus an audit flag, never dropped.
	v5, ok := sch.Column("V5")
	if !ok {
		t.Fatal("V5 was dropped")
	}
	if v5.NameResolved || v5.Name != "UNRESOLVED_V5" {
		t.Errorf("expected unresolved sentinel for V5, got %q (resolved=%v)", v5.Name, v5.NameResolved)
	}
	if len(flags) != 1 || flags[0].Kind != FlagUnresolvedName || flags[0].VarID != "V5" {
		t.Errorf("expected one unresolved_name flag for V5, got %+v", flags)
	}

	// Missing codes attach by exact id.
	v4, _ := sch.Column("V4")
	if !v4.HasMissingCode("9999999") {
		t.Errorf("expected V4 missing code 9999999, got %v", v4.MissingCodes)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	desc := defaultDescriptor()
	first, _ := Reconcile(desc, exceptions.Override{})
	second, _ := Reconcile(desc, exceptions.Override{})
	if !reflect.DeepEqual(first, second) {
		t.Errorf("reconciliation is not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestReconcile_NeverGuessesFromNeighbors(t *testing.T) {
	desc := defaultDescriptor()
	// A label whose id token matches nothing must not attach anywhere.
	desc.Labels = append(desc.Labels, layout.LabelEntry{IDToken: "V9", Label: "GHOST"})
	sch, _ := Reconcile(desc, exceptions.Override{})
	for _, col := range sch.Columns {
		if col.Name == "GHOST" {
			t.Errorf("label for unknown id attached to %s", col.VarID)
		}
	}
}

// ============================================================================
// Override Tests (shipped registry entries)
// ============================================================================

func TestReconcile_File001_CongressionalDistricts(t *testing.T) {
	desc := &layout.Descriptor{
		FileID: "001",
		Columns: []layout.ColumnSpec{
			{VarID: "V1", Start: 1, End: 2},
			{VarID: "V2", Start: 3, End: 12},
			{VarID: "V3", Start: 13, End: 19},
		},
		Labels: []layout.LabelEntry{
			{IDToken: "V1", Label: "ICPSR STATE CODE"},
			{IDToken: "V2", Label: "COUNTY NAME"},
			{IDToken: "V3", Label: "IDENTIFICATION NUMBER"},
		},
	}
	pos := 20
	for v := 6; v <= 24; v += 2 {
		desc.Columns = append(desc.Columns, layout.ColumnSpec{
			VarID: fmt.Sprintf("V%d", v), Start: pos, End: pos + 1,
		})
		pos += 2
	}

	ov, ok := exceptions.Lookup("001")
	if !ok {
		t.Fatal("no override registered for file 001")
	}
	sch, flags := Reconcile(desc, ov)

	year := 1827
	for v := 6; v <= 24; v += 2 {
		id := fmt.Sprintf("V%d", v)
		col, ok := sch.Column(id)
		if !ok {
			t.Fatalf("missing column %s", id)
		}
		wantName := fmt.Sprintf("CONG_DIST_NUMBER_%d", year)
		if !col.NameResolved || col.Name != wantName {
			t.Errorf("%s: expected %q, got %q (resolved=%v)", id, wantName, col.Name, col.NameResolved)
		}
		if !col.HasMissingCode("99") {
			t.Errorf("%s: expected missing code 99, got %v", id, col.MissingCodes)
		}
		year += 2
	}
	for _, f := range flags {
		if f.Kind == FlagUnresolvedName {
			t.Errorf("unexpected unresolved-name flag after override: %+v", f)
		}
	}
}

func TestReconcile_File012_CaseRename(t *testing.T) {
	desc := &layout.Descriptor{
		FileID: "012",
		Columns: []layout.ColumnSpec{
			{VarID: "V1", Start: 1, End: 2},
			{VarID: "v444", Start: 3, End: 9},
		},
		Labels: []layout.LabelEntry{
			{IDToken: "V1", Label: "ICPSR STATE CODE"},
		},
		Missing: []layout.MissingEntry{
			{IDToken: "V444", Codes: []string{"9999999"}},
		},
	}

	ov, ok := exceptions.Lookup("012")
	if !ok {
		t.Fatal("no override registered for file 012")
	}
	sch, _ := Reconcile(desc, ov)

	if _, found := sch.Column("v444"); found {
		t.Error("lowercase v444 survived the rename")
	}
	col, found := sch.Column("V444")
	if !found {
		t.Fatal("expected column V444 after rename")
	}
	if !col.NameResolved || col.Name != "PRES_1892_TOTAL_VOTE" {
		t.Errorf("expected patched name PRES_1892_TOTAL_VOTE, got %q", col.Name)
	}
	if !col.HasMissingCode("9999999") {
		t.Errorf("expected missing code 9999999, got %v", col.MissingCodes)
	}
}

func TestReconcile_File144_DropsDuplicateCountyName(t *testing.T) {
	desc := &layout.Descriptor{
		FileID: "144",
		Columns: []layout.ColumnSpec{
			{VarID: "V1", Start: 1, End: 2},
			{VarID: "V2", Start: 3, End: 12},
			{VarID: "V3", Start: 13, End: 19},
			{VarID: "V4", Start: 20, End: 26},
			{VarID: "V5", Start: 27, End: 36},
		},
		Labels: []layout.LabelEntry{
			{IDToken: "V2", Label: "COUNTY NAME"},
			{IDToken: "V5", Label: "COUNTY NAME"},
		},
	}

	ov, ok := exceptions.Lookup("144")
	if !ok {
		t.Fatal("no override registered for file 144")
	}
	sch, _ := Reconcile(desc, ov)

	if _, found := sch.Column("V5"); found {
		t.Error("duplicate county-name column V5 was not dropped")
	}
	col, found := sch.Column("V2")
	if !found {
		t.Fatal("legitimate county-name column V2 is missing")
	}
	if col.Name != "COUNTY_NAME" {
		t.Errorf("expected V2 named COUNTY_NAME, got %q", col.Name)
	}
}

func TestReconcile_File202_NameKeyedMerge(t *testing.T) {
	// Reversed delimiters swap every label entry's fields: the quoted span
	// holds the variable id and the id token holds the label text.
	desc := &layout.Descriptor{
		FileID: "202",
		Columns: []layout.ColumnSpec{
			{VarID: "V1", Start: 1, End: 2},
			{VarID: "V2", Start: 3, End: 12},
			{VarID: "V4", Start: 13, End: 19},
		},
		Labels: []layout.LabelEntry{
			{IDToken: "ICPSR STATE CODE", Label: "V1"},
			{IDToken: "COUNTY NAME", Label: "V2"},
			{IDToken: "PRES 1880 TOTAL VOTE", Label: "V4"},
		},
		Diagnostics: []string{"label entry: text outside quoted label"},
	}

	ov, ok := exceptions.Lookup("202")
	if !ok {
		t.Fatal("no override registered for file 202")
	}
	if ov.Strategy != exceptions.MergeByName {
		t.Fatalf("expected MergeByName strategy, got %v", ov.Strategy)
	}
	sch, _ := Reconcile(desc, ov)

	want := map[string]string{
		"V1": "ICPSR_STATE_CODE",
		"V2": "COUNTY_NAME",
		"V4": "PRES_1880_TOTAL_VOTE",
	}
	for id, name := range want {
		col, found := sch.Column(id)
		if !found {
			t.Fatalf("missing column %s", id)
		}
		if !col.NameResolved || col.Name != name {
			t.Errorf("%s: expected %q, got %q (resolved=%v)", id, name, col.Name, col.NameResolved)
		}
	}
}
