package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/codereview/internal/git"
	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/scan"
	"github.com/joescharf/codereview/internal/state"
	"github.com/joescharf/codereview/internal/workspace"
)

type fakeGit struct {
	cloneErr error
}

func (f *fakeGit) Clone(_ context.Context, _, dest string, _ git.CloneOptions) error {
	if f.cloneErr != nil {
		return f.cloneErr
	}
	return os.WriteFile(filepath.Join(dest, "app.py"), []byte("print('hi')\n"), 0o644)
}

func (f *fakeGit) CurrentBranch(string) (string, error) { return "main", nil }

func (f *fakeGit) LastCommit(string) (git.CommitInfo, error) { return git.CommitInfo{}, nil }

func newStage(t *testing.T, g git.Client) (*Stage, *workspace.Manager) {
	t.Helper()
	m := workspace.NewManager(filepath.Join(t.TempDir(), "ws"), g)
	return New(m, scan.New(scan.DefaultOptions(), nil), nil), m
}

func TestRun_LocalDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	s, _ := newStage(t, &fakeGit{})

	res, err := s.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, models.SourceLocal, res.Handle.Kind)
	assert.False(t, res.Handle.Transient)
	assert.Equal(t, 1, res.Inventory.TotalFiles)
	assert.Equal(t, "main.go", res.Inventory.Files[0].RelativePath)
}

func TestRun_MissingDirectory(t *testing.T) {
	s, _ := newStage(t, &fakeGit{})

	_, err := s.Run(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.ErrorIs(t, err, workspace.ErrInvalidLocator)
}

func TestRun_RemoteClone(t *testing.T) {
	s, m := newStage(t, &fakeGit{})

	res, err := s.Run(context.Background(), "https://github.com/example/repo.git")
	require.NoError(t, err)
	assert.True(t, res.Handle.Transient)
	assert.True(t, m.Owns(res.Handle.Path))
	assert.Equal(t, 1, res.Inventory.TotalFiles)
	assert.DirExists(t, res.Handle.Path, "ownership passes to the caller")

	m.Release(res.Handle.Path, false)
	assert.NoDirExists(t, res.Handle.Path)
}

func TestRun_CloneFailure(t *testing.T) {
	s, m := newStage(t, &fakeGit{cloneErr: errors.New("repository not found")})

	_, err := s.Run(context.Background(), "https://github.com/example/missing.git")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository not found")

	entries, _ := os.ReadDir(m.Root())
	assert.Empty(t, entries, "partial clone removed")
}

func TestRun_ScanFailureReleasesClone(t *testing.T) {
	s, m := newStage(t, &fakeGit{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx, "https://github.com/example/repo.git")
	require.Error(t, err)

	entries, _ := os.ReadDir(m.Root())
	assert.Empty(t, entries)
}

func TestResult_Update(t *testing.T) {
	dir := t.TempDir()
	res := Result{
		Handle:    workspace.Handle{Locator: dir, Path: dir, Kind: models.SourceLocal},
		Inventory: models.FileInventory{Root: dir, TotalFiles: 3},
	}

	st := state.NewStore(dir)
	require.NoError(t, st.Apply(Writer, res.Update()))

	rec := st.Snapshot()
	assert.Equal(t, models.SourceLocal, rec.SourceKind)
	assert.Equal(t, dir, rec.WorkingDirectory)
	assert.Equal(t, 3, rec.FileInventory.TotalFiles)
}
