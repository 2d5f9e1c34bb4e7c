// Package corpus loads the manifest that enumerates the returns corpus.
//
// The corpus is a static, finite set of dataset ids. The manifest maps each
// id to its raw data file and layout descriptor (paths relative to the
// corpus root) and names the ids that are deliberately excluded from the
// per-file loop, with a reason. Every id must end up either processed or
// visibly excluded; the manifest is where "visibly" is declared.
package corpus

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Entry is one dataset: a 3-digit id plus its data and layout paths.
type Entry struct {
	ID     string `yaml:"id"`
	Data   string `yaml:"data"`
	Layout string `yaml:"layout"`
}

// Exclusion is a dataset id kept out of the per-file loop, e.g. the
// party-code lookup file that is joined downstream instead.
type Exclusion struct {
	ID     string `yaml:"id"`
	Reason string `yaml:"reason"`
}

// Manifest is the parsed corpus manifest.
type Manifest struct {
	Files    []Entry     `yaml:"files"`
	Excluded []Exclusion `yaml:"excluded"`
}

// Load reads and validates the YAML manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks that ids are unique and complete: non-empty paths, no id
// both included and excluded, no empty exclusion reason.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Files))
	for _, e := range m.Files {
		if e.ID == "" {
			return fmt.Errorf("file entry with empty id")
		}
		if seen[e.ID] {
			return fmt.Errorf("duplicate file id %s", e.ID)
		}
		seen[e.ID] = true
		if e.Data == "" || e.Layout == "" {
			return fmt.Errorf("file %s: data and layout paths are required", e.ID)
		}
	}
	excluded := make(map[string]bool, len(m.Excluded))
	for _, x := range m.Excluded {
		if x.ID == "" {
			return fmt.Errorf("exclusion with empty id")
		}
		if excluded[x.ID] {
			return fmt.Errorf("duplicate exclusion id %s", x.ID)
		}
		excluded[x.ID] = true
		if seen[x.ID] {
			return fmt.Errorf("id %s is both included and excluded", x.ID)
		}
		if x.Reason == "" {
			return fmt.Errorf("exclusion %s has no reason", x.ID)
		}
	}
	return nil
}

// Lookup returns the entry for a dataset id.
func (m *Manifest) Lookup(id string) (Entry, bool) {
	for _, e := range m.Files {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Sorted returns the entries ordered by id. Merge order follows this so
// output is byte-identical across runs regardless of worker scheduling.
func (m *Manifest) Sorted() []Entry {
	out := make([]Entry, len(m.Files))
	copy(out, m.Files)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
