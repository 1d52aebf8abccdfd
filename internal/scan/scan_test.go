package scan

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/codereview/internal/models"
)

// writeTree creates files under root; content defaults to a short line.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		if content == "" {
			content = "x = 1\n"
		}
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func relPaths(inv models.FileInventory) []string {
	var out []string
	for _, f := range inv.Files {
		out = append(out, f.RelativePath)
	}
	return out
}

func TestScan_DefaultIgnores(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app/main.py":               "",
		"app/util.go":               "",
		"node_modules/lib/index.js": "",
		"__pycache__/main.pyc":      "",
		".git/config":               "",
		"build/out.js":              "",
		"debug.log":                 "",
		"README.md":                 "",
	})

	inv, err := New(DefaultOptions(), nil).Scan(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"README.md", "app/main.py", "app/util.go"}, relPaths(inv))
	assert.Equal(t, 3, inv.TotalFiles)
	assert.Equal(t, 1, inv.ExtensionCounts[".py"])
	assert.Equal(t, 1, inv.ExtensionCounts[".md"])
}

func TestScan_Gitignore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":         "# generated\nsecrets/\n*.gen.go\n",
		"main.go":            "",
		"types.gen.go":       "",
		"secrets/token.json": "",
	})

	inv, err := New(DefaultOptions(), nil).Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, relPaths(inv))
}

func TestScan_ConfiguredPatterns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/a.py":        "",
		"vendor/lib/b.py": "",
		"tests/test_a.py": "",
	})

	opts := DefaultOptions()
	opts.IgnorePatterns = []string{"vendor/", " tests/ ", ""}
	inv, err := New(opts, nil).Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.py"}, relPaths(inv))
}

func TestScan_CodeOnly(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.py":   "",
		"notes.doc": "",
		"Makefile":  "all:\n",
	})

	inv, err := New(DefaultOptions(), nil).Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py"}, relPaths(inv))

	opts := DefaultOptions()
	opts.CodeOnly = false
	inv, err = New(opts, nil).Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"Makefile", "main.py", "notes.doc"}, relPaths(inv))
	assert.Equal(t, 1, inv.ExtensionCounts[models.NoExtension])
}

func TestScan_SizeLimit(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"small.py": "",
		"big.py":   strings.Repeat("a", 2*1024*1024),
	})

	opts := DefaultOptions()
	opts.MaxFileSizeMB = 1
	inv, err := New(opts, nil).Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"small.py"}, relPaths(inv))
}

func TestScan_SkipsBinary(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"ok.py": ""})
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.json"), []byte{0xff, 0xfe, 0x00, 0x01}, 0o644))

	inv, err := New(DefaultOptions(), nil).Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.py"}, relPaths(inv))
}

func TestScan_RuneSplitAtProbeBoundary(t *testing.T) {
	root := t.TempDir()
	// 1023 ASCII bytes then a 3-byte rune straddling the 1 KiB probe.
	content := strings.Repeat("a", probeSize-1) + "€ tail\n"
	writeTree(t, root, map[string]string{"unicode.py": content})

	inv, err := New(DefaultOptions(), nil).Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{"unicode.py"}, relPaths(inv))
}

func TestScan_EntryFields(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"pkg/Handler.PY": "print(1)\n"})

	inv, err := New(DefaultOptions(), nil).Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, inv.Files, 1)

	f := inv.Files[0]
	assert.Equal(t, "pkg/Handler.PY", f.RelativePath)
	assert.Equal(t, "Handler.PY", f.Name)
	assert.Equal(t, ".py", f.Extension)
	assert.Equal(t, int64(9), f.SizeBytes)
	assert.True(t, filepath.IsAbs(f.Path))
	assert.Equal(t, int64(9), inv.TotalSizeBytes)
}

func TestScan_Empty(t *testing.T) {
	inv, err := New(DefaultOptions(), nil).Scan(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, inv.TotalFiles)
	assert.NotNil(t, inv.Files)
}

func TestScan_MissingRoot(t *testing.T) {
	_, err := New(DefaultOptions(), nil).Scan(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestScan_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": ""})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(DefaultOptions(), nil).Scan(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLanguageFor(t *testing.T) {
	assert.Equal(t, "Python", LanguageFor(".py"))
	assert.Equal(t, "Go", LanguageFor(".GO"))
	assert.Equal(t, "", LanguageFor(".xyz"))
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		file     string
		expected string
	}{
		{"go.mod", "go"},
		{"package.json", "javascript"},
		{"Cargo.toml", "rust"},
		{"pyproject.toml", "python"},
		{"requirements.txt", "python"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, tt.file), []byte(""), 0644))
			assert.Equal(t, tt.expected, DetectLanguage(dir))
		})
	}

	t.Run("unknown", func(t *testing.T) {
		dir := t.TempDir()
		assert.Equal(t, "", DetectLanguage(dir))
	})
}
