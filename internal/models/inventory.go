package models

import (
	"maps"
	"slices"
	"sort"
)

// SourceKind records where the reviewed code came from.
type SourceKind string

const (
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote"
)

// NoExtension is the extension bucket for files without one.
const NoExtension = "no_extension"

// FileEntry describes one file selected for review. Entries are never
// mutated after the scanner produces them.
type FileEntry struct {
	Path         string `json:"path"`
	RelativePath string `json:"relative_path"`
	Name         string `json:"name"`
	Extension    string `json:"extension"`
	SizeBytes    int64  `json:"size_bytes"`
}

// FileInventory is the result of scanning a working directory.
// TotalFiles is authoritative for the pipeline gate.
type FileInventory struct {
	Root            string         `json:"root"`
	Files           []FileEntry    `json:"files"`
	TotalFiles      int            `json:"total_files"`
	TotalSizeBytes  int64          `json:"total_size_bytes"`
	ExtensionCounts map[string]int `json:"extension_counts"`
}

// ExtensionCount pairs an extension with the number of files carrying it.
type ExtensionCount struct {
	Extension string
	Count     int
}

// Clone returns a deep copy so concurrent readers never share backing arrays
// with the writer.
func (inv FileInventory) Clone() FileInventory {
	out := inv
	out.Files = slices.Clone(inv.Files)
	if inv.ExtensionCounts != nil {
		out.ExtensionCounts = maps.Clone(inv.ExtensionCounts)
	}
	return out
}

// TotalSizeMB returns the inventory size in mebibytes.
func (inv FileInventory) TotalSizeMB() float64 {
	return float64(inv.TotalSizeBytes) / (1024 * 1024)
}

// TopExtensions returns the n most common extensions, ties broken by name.
func (inv FileInventory) TopExtensions(n int) []ExtensionCount {
	counts := make([]ExtensionCount, 0, len(inv.ExtensionCounts))
	for ext, c := range inv.ExtensionCounts {
		counts = append(counts, ExtensionCount{Extension: ext, Count: c})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Extension < counts[j].Extension
	})
	if n > 0 && len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

// FilesWithExtension returns the entries whose extension is in exts.
func (inv FileInventory) FilesWithExtension(exts ...string) []FileEntry {
	var out []FileEntry
	for _, f := range inv.Files {
		if slices.Contains(exts, f.Extension) {
			out = append(out, f)
		}
	}
	return out
}
