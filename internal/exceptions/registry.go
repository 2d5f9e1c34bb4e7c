// Package exceptions holds the per-file override registry.
//
// A handful of corpus files have known structural defects that the default
// pipeline cannot absorb: layout declarations with missing or shifted names,
// case-inconsistent variable ids, a duplicated column, an embedded null in
// the raw text, and one file whose label delimiters are reversed. Each fix
// is registered here as an independent, declarative record keyed by file id.
// Adding or changing one override never touches another file's logic.
package exceptions

import (
	"fmt"
	"sort"
	"sync"
)

// MergeStrategy selects how the reconciler joins label declarations to
// position columns for a file.
type MergeStrategy int

const (
	// MergeByVarID joins on the positional variable id. Default.
	MergeByVarID MergeStrategy = iota

	// MergeByName joins label entries whose recovered label text matches a
	// variable id, then takes the entry's id token as the real name. Used
	// when a layout's label delimiters are reversed, which swaps the two
	// fields of every entry.
	MergeByName
)

// NamePatch assigns an explicit name and missing codes to one variable id.
type NamePatch struct {
	Name         string
	MissingCodes []string
}

// Override is one file's registered fix-up, applied before the default
// reconciler path. Zero-valued fields mean "no change".
type Override struct {
	FileID string

	// Reason documents the defect, for audit output.
	Reason string

	// SubstituteSource replaces the manifest data path with a pre-sanitized
	// variant (manifest-root relative).
	SubstituteSource string

	// Renames maps a variable id as declared in the layout to its canonical
	// form, e.g. a lowercase id to uppercase.
	Renames map[string]string

	// Names assigns explicit names and missing codes by variable id.
	Names map[string]NamePatch

	// Drop lists variable ids removed from the schema before reshaping.
	Drop []string

	// Strategy selects the reconciliation join for this file.
	Strategy MergeStrategy
}

var (
	registry   = make(map[string]Override)
	registryMu sync.RWMutex
)

// Register adds an override to the registry.
// Panics if an override for the same file id is already registered.
func Register(ov Override) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if ov.FileID == "" {
		panic("override registered with empty file id")
	}
	if _, exists := registry[ov.FileID]; exists {
		panic(fmt.Sprintf("override already registered: %s", ov.FileID))
	}
	registry[ov.FileID] = ov
}

// Lookup returns the override for a file id.
// Returns false if the file has no registered override.
func Lookup(fileID string) (Override, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ov, ok := registry[fileID]
	return ov, ok
}

// All returns all registered overrides, sorted by file id.
func All() []Override {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Override, 0, len(registry))
	for _, ov := range registry {
		result = append(result, ov)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FileID < result[j].FileID
	})
	return result
}

// Count returns the number of registered overrides.
func Count() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered overrides.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Override)
}
