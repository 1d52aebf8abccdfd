// Package workspace owns the working copies a review runs against. Remote
// sources are cloned into a manager-controlled root and removed by an
// explicit, run-scoped release.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joescharf/codereview/internal/git"
	"github.com/joescharf/codereview/internal/models"
)

// ErrInvalidLocator is returned when a locator is neither an existing
// directory nor a recognised git remote.
var ErrInvalidLocator = errors.New("invalid source locator")

// TempPrefix prefixes every transient clone directory.
const TempPrefix = "code_review_"

// Handle is an acquired working copy.
type Handle struct {
	Locator   string
	Path      string
	Kind      models.SourceKind
	Transient bool
}

// Manager acquires working copies and releases the transient ones.
type Manager struct {
	root   string
	git    git.Client
	clone  git.CloneOptions
	logger *slog.Logger

	mu       sync.Mutex
	released map[string]bool
	refused  map[string]bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithCloneOptions sets the branch and depth used for remote clones.
func WithCloneOptions(o git.CloneOptions) Option {
	return func(m *Manager) { m.clone = o }
}

// DefaultRoot is the transient root used when none is configured.
func DefaultRoot() string {
	return filepath.Join(os.TempDir(), "codereview")
}

// NewManager creates a manager whose transient copies live under root.
func NewManager(root string, client git.Client, opts ...Option) *Manager {
	if root == "" {
		root = DefaultRoot()
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	m := &Manager{
		root:     filepath.Clean(root),
		git:      client,
		clone:    git.CloneOptions{Depth: 1},
		logger:   slog.Default(),
		released: make(map[string]bool),
		refused:  make(map[string]bool),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Root returns the directory under which transient copies are created.
func (m *Manager) Root() string { return m.root }

// Acquire resolves locator to a local directory. Remote locators are cloned
// into a fresh directory under Root and returned as transient; the caller
// owns the copy until it calls Release.
func (m *Manager) Acquire(ctx context.Context, locator string) (Handle, error) {
	if git.IsRemote(locator) {
		return m.acquireRemote(ctx, locator)
	}

	path, err := filepath.Abs(locator)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %s: %v", ErrInvalidLocator, locator, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: path does not exist: %s", ErrInvalidLocator, locator)
	}
	if !info.IsDir() {
		return Handle{}, fmt.Errorf("%w: not a directory: %s", ErrInvalidLocator, locator)
	}
	m.logger.Info("using local directory", "path", path)
	return Handle{Locator: locator, Path: path, Kind: models.SourceLocal}, nil
}

func (m *Manager) acquireRemote(ctx context.Context, url string) (Handle, error) {
	if m.git == nil {
		return Handle{}, fmt.Errorf("clone %s: no git client configured", url)
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return Handle{}, fmt.Errorf("create workspace root: %w", err)
	}
	dir, err := os.MkdirTemp(m.root, TempPrefix)
	if err != nil {
		return Handle{}, fmt.Errorf("create clone directory: %w", err)
	}

	m.logger.Info("cloning repository", "url", url, "dir", dir, "repo", git.RepoName(url))
	if err := m.git.Clone(ctx, url, dir, m.clone); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			m.logger.Warn("failed to remove partial clone", "dir", dir, "error", rmErr)
		}
		return Handle{}, err
	}
	if commit, err := m.git.LastCommit(dir); err == nil {
		m.logger.Debug("cloned", "commit", commit.Hash, "subject", commit.Subject)
	}
	return Handle{Locator: url, Path: dir, Kind: models.SourceRemote, Transient: true}, nil
}

// Owns reports whether path lies strictly under the manager's root.
func (m *Manager) Owns(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(m.root, abs)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Release deletes a transient copy. Paths outside Root are left alone unless
// force is set. Repeated calls for the same path do nothing, and deletion
// errors are logged rather than returned.
func (m *Manager) Release(path string, force bool) {
	if path == "" {
		return
	}
	key := filepath.Clean(path)

	owned := force || m.Owns(key)

	m.mu.Lock()
	if m.released[key] {
		m.mu.Unlock()
		return
	}
	if !owned {
		warned := m.refused[key]
		m.refused[key] = true
		m.mu.Unlock()
		if !warned {
			m.logger.Warn("skipping cleanup of non-transient directory", "path", key)
		}
		return
	}
	m.released[key] = true
	m.mu.Unlock()

	if _, err := os.Stat(key); errors.Is(err, os.ErrNotExist) {
		m.logger.Debug("release: path already gone", "path", key)
		return
	}
	if err := os.RemoveAll(key); err != nil {
		m.logger.Warn("failed to clean up working copy", "path", key, "error", err)
		return
	}
	m.logger.Info("cleaned up working copy", "path", key)
}

// Scope holds the handles a run is responsible for and releases them once.
type Scope struct {
	m *Manager

	mu      sync.Mutex
	handles []Handle
	closed  bool
}

// NewScope returns an empty run scope bound to m.
func (m *Manager) NewScope() *Scope {
	return &Scope{m: m}
}

// Adopt transfers ownership of h to the scope. Non-transient handles are
// ignored. Adopting into a closed scope releases h immediately.
func (s *Scope) Adopt(h Handle) {
	if !h.Transient {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.m.Release(h.Path, false)
		return
	}
	s.handles = append(s.handles, h)
	s.mu.Unlock()
}

// Len returns the number of adopted handles still held.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Close releases every adopted handle. Further calls are no-ops.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	for _, h := range handles {
		s.m.Release(h.Path, false)
	}
}
