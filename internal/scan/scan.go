// Package scan walks a working directory and builds the file inventory the
// analysis stages review.
package scan

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/joescharf/codereview/internal/models"
)

// DefaultIgnorePatterns are always excluded, in gitignore syntax.
var DefaultIgnorePatterns = []string{
	// Python
	"__pycache__/", "*.pyc", "*.pyo", "*.pyd", ".Python",
	"pip-log.txt", "pip-delete-this-directory.txt",
	".venv/", "venv/", "ENV/", "env/",
	// Node
	"node_modules/", "npm-debug.log", "yarn-error.log",
	// Build outputs
	"build/", "dist/", "*.egg-info/", ".eggs/",
	// Editors
	".vscode/", ".idea/", "*.swp", "*.swo", ".DS_Store",
	// Version control
	".git/", ".svn/", ".hg/",
	// Binaries and media
	"*.so", "*.dylib", "*.dll", "*.exe",
	"*.jpg", "*.jpeg", "*.png", "*.gif", "*.mp4", "*.mp3",
	"*.zip", "*.tar", "*.gz",
	// Logs
	"*.log", "logs/",
}

// CodeExtensions are the extensions kept when Options.CodeOnly is set.
var CodeExtensions = map[string]bool{
	".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".java": true, ".cpp": true, ".c": true, ".h": true, ".hpp": true,
	".cs": true, ".go": true, ".rb": true, ".php": true, ".swift": true,
	".kt": true, ".rs": true, ".scala": true, ".r": true, ".m": true,
	".sh": true, ".bash": true, ".zsh": true, ".sql": true,
	".html": true, ".css": true, ".scss": true, ".sass": true,
	".json": true, ".yaml": true, ".yml": true, ".xml": true,
	".md": true, ".rst": true, ".txt": true,
}

// probeSize is how much of each file is checked for valid UTF-8.
const probeSize = 1024

// Options controls which files are inventoried.
type Options struct {
	MaxFileSizeMB  float64
	CodeOnly       bool
	IgnorePatterns []string
}

// DefaultOptions matches the scanner's documented defaults.
func DefaultOptions() Options {
	return Options{MaxFileSizeMB: 5, CodeOnly: true}
}

// Scanner builds file inventories.
type Scanner struct {
	opts   Options
	logger *slog.Logger
}

// New creates a scanner.
func New(opts Options, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxFileSizeMB <= 0 {
		opts.MaxFileSizeMB = DefaultOptions().MaxFileSizeMB
	}
	return &Scanner{opts: opts, logger: logger}
}

// Scan walks root and returns every reviewable file, sorted by relative path.
func (s *Scanner) Scan(ctx context.Context, root string) (models.FileInventory, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return models.FileInventory{}, fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return models.FileInventory{}, fmt.Errorf("directory does not exist: %s", root)
	}
	if !info.IsDir() {
		return models.FileInventory{}, fmt.Errorf("path is not a directory: %s", root)
	}

	matcher := s.matcher(root)
	maxBytes := int64(s.opts.MaxFileSizeMB * 1024 * 1024)
	inv := models.FileInventory{
		Root:            root,
		Files:           []models.FileEntry{},
		ExtensionCounts: map[string]int{},
	}

	s.logger.Info("scanning directory", "root", root, "max_file_size_mb", s.opts.MaxFileSizeMB, "code_only", s.opts.CodeOnly)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Debug("skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matcher.MatchesPath(rel + "/") {
				s.logger.Debug("ignoring directory", "path", rel)
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || matcher.MatchesPath(rel) {
			return nil
		}

		entry, ok := s.entry(path, rel, maxBytes)
		if !ok {
			return nil
		}
		inv.Files = append(inv.Files, entry)
		inv.TotalSizeBytes += entry.SizeBytes
		ext := entry.Extension
		if ext == "" {
			ext = models.NoExtension
		}
		inv.ExtensionCounts[ext]++
		return nil
	})
	if err != nil {
		return models.FileInventory{}, fmt.Errorf("scan %s: %w", root, err)
	}

	sort.Slice(inv.Files, func(i, j int) bool {
		return inv.Files[i].RelativePath < inv.Files[j].RelativePath
	})
	inv.TotalFiles = len(inv.Files)

	s.logger.Info("scan completed", "files", inv.TotalFiles, "size_mb", fmt.Sprintf("%.2f", inv.TotalSizeMB()), "extensions", len(inv.ExtensionCounts))
	return inv, nil
}

// entry applies the size, extension and text checks to one file.
func (s *Scanner) entry(path, rel string, maxBytes int64) (models.FileEntry, bool) {
	info, err := os.Stat(path)
	if err != nil {
		s.logger.Debug("skipping file", "path", rel, "error", err)
		return models.FileEntry{}, false
	}
	if info.Size() > maxBytes {
		s.logger.Debug("skipping large file", "path", rel, "size_bytes", info.Size())
		return models.FileEntry{}, false
	}
	ext := strings.ToLower(filepath.Ext(path))
	if s.opts.CodeOnly && !CodeExtensions[ext] {
		return models.FileEntry{}, false
	}
	if !isText(path) {
		s.logger.Debug("skipping binary or unreadable file", "path", rel)
		return models.FileEntry{}, false
	}
	return models.FileEntry{
		Path:         path,
		RelativePath: rel,
		Name:         filepath.Base(path),
		Extension:    ext,
		SizeBytes:    info.Size(),
	}, true
}

// matcher combines the default patterns, the repository's .gitignore and the
// configured patterns.
func (s *Scanner) matcher(root string) *ignore.GitIgnore {
	lines := append([]string{}, DefaultIgnorePatterns...)
	if local, err := readIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		if len(local) > 0 {
			s.logger.Info("loaded .gitignore patterns", "count", len(local))
		}
		lines = append(lines, local...)
	} else if !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to read .gitignore", "error", err)
	}
	for _, p := range s.opts.IgnorePatterns {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	return ignore.CompileIgnoreLines(lines...)
}

func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

// isText reports whether the first probeSize bytes of path decode as UTF-8
// without NUL bytes. A rune cut by the probe boundary is tolerated.
func isText(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, probeSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false
	}
	buf = buf[:n]
	if bytes.IndexByte(buf, 0) >= 0 {
		return false
	}
	if n == probeSize {
		if start := lastRuneStart(buf); !utf8.FullRune(buf[start:]) {
			buf = buf[:start]
		}
	}
	return utf8.Valid(buf)
}

// lastRuneStart returns the index of the start byte of the final rune in b.
func lastRuneStart(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			return i
		}
	}
	return len(b) - 1
}

// ReadContent returns the text of a file from the inventory.
func ReadContent(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
