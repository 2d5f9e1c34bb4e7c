package exceptions

import "fmt"

// The shipped overrides, one init block per defective file so each stays
// independently readable and removable.

// File 001: the layout's VARIABLE LABELS section skips the congressional
// district number variables V6, V8, ..., V24. Names and missing codes are
// assigned explicitly for that exact id range.
func init() {
	names := make(map[string]NamePatch, 10)
	year := 1827
	for v := 6; v <= 24; v += 2 {
		names[fmt.Sprintf("V%d", v)] = NamePatch{
			Name:         fmt.Sprintf("CONG_DIST_NUMBER_%d", year),
			MissingCodes: []string{"99"},
		}
		year += 2
	}
	Register(Override{
		FileID: "001",
		Reason: "congressional district number variables V6-V24 have no label declarations",
		Names:  names,
	})
}

// File 012: one variable is declared lowercase (v444) in the DATA LIST while
// its label and missing-code declarations use V444, so neither attaches.
func init() {
	Register(Override{
		FileID:  "012",
		Reason:  "variable id v444 declared with inconsistent casing",
		Renames: map[string]string{"v444": "V444"},
		Names: map[string]NamePatch{
			"V444": {
				Name:         "PRES_1892_TOTAL_VOTE",
				MissingCodes: []string{"9999999"},
			},
		},
	})
}

// File 091: the raw text contains an embedded null byte that corrupts every
// line after it. A pre-sanitized substitute source is read instead.
func init() {
	Register(Override{
		FileID:           "091",
		Reason:           "raw text contains an embedded null byte",
		SubstituteSource: "file0091/DS0091.sanitized.txt",
	})
}

// File 144: V5 is a verbatim duplicate of the county name column V2 and is
// dropped before reshaping.
func init() {
	Register(Override{
		FileID: "144",
		Reason: "V5 duplicates the county name column V2",
		Drop:   []string{"V5"},
	})
}

// File 194: a localized typo shifts three label declarations, so V78-V80
// come out of the parser unnamed. Two of the three also need their missing
// codes restored.
func init() {
	Register(Override{
		FileID: "194",
		Reason: "typo in the label section shifts three name declarations",
		Names: map[string]NamePatch{
			"V78": {
				Name:         "CONG_1873_VOTE_DEM",
				MissingCodes: []string{"9999999"},
			},
			"V79": {
				Name:         "CONG_1873_VOTE_REP",
				MissingCodes: []string{"9999999"},
			},
			"V80": {
				Name: "CONG_1873_DIST_NUMBER",
			},
		},
	})
}

// File 202: the label section's open/close delimiters are reversed, which
// swaps the id token and label text of every entry. The name-keyed merge
// recovers the names; ids stay the standard positional ones for schema
// uniformity with the rest of the corpus.
func init() {
	Register(Override{
		FileID:   "202",
		Reason:   "label section delimiters reversed; id and label swapped in every entry",
		Strategy: MergeByName,
	})
}
