package pipeline

import (
	"fmt"

	"github.com/JonMunkholm/returns-etl/internal/exceptions"
	"github.com/JonMunkholm/returns-etl/internal/layout"
)

// Reconcile merges a descriptor's two parses into one unified schema:
// positions from DATA LIST (authoritative, complete) and names/missing
// codes from the label sections (authoritative, lossy). The join key is the
// positional variable id; names are never inferred from neighboring columns,
// so a gap stays visible until an override names it.
//
// The override is applied as part of reconciliation: id renames first, then
// label/missing attachment under the file's merge strategy, then explicit
// name patches and column drops. Reconciliation is a pure function of its
// inputs and is idempotent over its own output.
func Reconcile(desc *layout.Descriptor, ov exceptions.Override) (*layout.Schema, []QualityFlag) {
	sch := desc.PositionSchema()
	var flags []QualityFlag

	// Id renames normalize case-inconsistent declarations so the positional
	// join can see them.
	canon := func(id string) string {
		if renamed, ok := ov.Renames[id]; ok {
			return renamed
		}
		return id
	}
	for i := range sch.Columns {
		sch.Columns[i].VarID = canon(sch.Columns[i].VarID)
	}
	index := make(map[string]int, len(sch.Columns))
	for i, c := range sch.Columns {
		index[c.VarID] = i
	}

	// Attach labels.
	switch ov.Strategy {
	case exceptions.MergeByName:
		// Reversed delimiters swap every entry's fields: the quoted span
		// holds the variable id and the id token holds the label text.
		for _, entry := range desc.Labels {
			i, ok := index[canon(entry.Label)]
			if !ok || entry.IDToken == "" {
				continue
			}
			sch.Columns[i].Name = layout.CanonicalName(entry.IDToken)
			sch.Columns[i].NameResolved = true
		}
	default:
		for _, entry := range desc.Labels {
			i, ok := index[canon(entry.IDToken)]
			if !ok || entry.Label == "" {
				continue
			}
			sch.Columns[i].Name = layout.CanonicalName(entry.Label)
			sch.Columns[i].NameResolved = true
		}
	}

	// Attach missing codes by exact id.
	for _, entry := range desc.Missing {
		if i, ok := index[canon(entry.IDToken)]; ok {
			sch.Columns[i].MissingCodes = append([]string(nil), entry.Codes...)
		}
	}

	// Explicit per-variable patches win over whatever attached above.
	for id, patch := range ov.Names {
		i, ok := index[id]
		if !ok {
			continue
		}
		if patch.Name != "" {
			sch.Columns[i].Name = patch.Name
			sch.Columns[i].NameResolved = true
		}
		if len(patch.MissingCodes) > 0 {
			sch.Columns[i].MissingCodes = append([]string(nil), patch.MissingCodes...)
		}
	}

	// Column drops, applied before reshaping ever sees the schema.
	if len(ov.Drop) > 0 {
		drop := make(map[string]bool, len(ov.Drop))
		for _, id := range ov.Drop {
			drop[id] = true
		}
		kept := sch.Columns[:0]
		for _, c := range sch.Columns {
			if !drop[c.VarID] {
				kept = append(kept, c)
			}
		}
		sch.Columns = kept
	}

	// Whatever is still unnamed gets the sentinel and an audit flag.
	for i := range sch.Columns {
		if sch.Columns[i].NameResolved {
			continue
		}
		sch.Columns[i].Name = UnresolvedNamePrefix + sch.Columns[i].VarID
		flags = append(flags, QualityFlag{
			FileID: desc.FileID,
			VarID:  sch.Columns[i].VarID,
			Kind:   FlagUnresolvedName,
			Detail: fmt.Sprintf("no derivable name for %s and no registered override", sch.Columns[i].VarID),
		})
	}

	for _, diag := range desc.Diagnostics {
		flags = append(flags, QualityFlag{
			FileID: desc.FileID,
			Kind:   FlagLayoutDiagnostic,
			Detail: diag,
		})
	}

	return sch, flags
}
