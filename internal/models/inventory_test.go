package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInventory() FileInventory {
	return FileInventory{
		Root: "/tmp/repo",
		Files: []FileEntry{
			{RelativePath: "a.py", Extension: ".py", SizeBytes: 100},
			{RelativePath: "b.py", Extension: ".py", SizeBytes: 200},
			{RelativePath: "c.go", Extension: ".go", SizeBytes: 300},
			{RelativePath: "Makefile", Extension: NoExtension, SizeBytes: 50},
		},
		TotalFiles:      4,
		TotalSizeBytes:  650,
		ExtensionCounts: map[string]int{".py": 2, ".go": 1, NoExtension: 1},
	}
}

func TestInventory_TopExtensions(t *testing.T) {
	top := sampleInventory().TopExtensions(2)
	require.Len(t, top, 2)
	assert.Equal(t, ExtensionCount{Extension: ".py", Count: 2}, top[0])
	assert.Equal(t, ".go", top[1].Extension, "ties broken by name")
}

func TestInventory_Clone(t *testing.T) {
	inv := sampleInventory()
	c := inv.Clone()
	c.Files[0].RelativePath = "changed.py"
	c.ExtensionCounts[".py"] = 99

	assert.Equal(t, "a.py", inv.Files[0].RelativePath)
	assert.Equal(t, 2, inv.ExtensionCounts[".py"])
}

func TestInventory_FilesWithExtension(t *testing.T) {
	got := sampleInventory().FilesWithExtension(".go", ".rs")
	require.Len(t, got, 1)
	assert.Equal(t, "c.go", got[0].RelativePath)
}

func TestInventory_TotalSizeMB(t *testing.T) {
	inv := FileInventory{TotalSizeBytes: 3 * 1024 * 1024}
	assert.InDelta(t, 3.0, inv.TotalSizeMB(), 0.0001)
}
