package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphcode-dev/graphcode-server/internal/cache"
	"github.com/graphcode-dev/graphcode-server/internal/memindex"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	hc, err := cache.NewHashCache(filepath.Join(t.TempDir(), "hashes.json"))
	require.NoError(t, err)
	return New(nil, memindex.New(), hc, false)
}

func writeSourceFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestOrchestrator_FullBuildParsesEveryDiscoveredFile(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, root, "widget.go", "package sample\n\nfunc New() int { return 1 }\n")
	writeSourceFile(t, root, "helper_test.go", "package sample\n\nimport \"testing\"\n\nfunc TestNew(t *testing.T) {}\n")
	writeSourceFile(t, root, "vendor/ignored.go", "package vendor\n")

	o := newTestOrchestrator(t)
	result, err := o.Run(context.Background(), Input{
		Mode:          ModeFull,
		WorkspaceRoot: root,
		ProjectID:     "proj",
		SourceDir:     root,
		Exclude:       []string{"vendor/**"},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesDiscovered)
	assert.Equal(t, 2, result.FilesSelected)
	assert.Equal(t, 2, result.FilesParsed)
	assert.Equal(t, 0, result.FilesFailed)
	assert.Greater(t, result.Statements, 0)
	assert.Empty(t, result.FileErrors)
}

func TestOrchestrator_IncrementalBuildOnlySelectsChangedHashes(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, root, "a.go", "package sample\n\nfunc A() {}\n")
	writeSourceFile(t, root, "b.go", "package sample\n\nfunc B() {}\n")

	o := newTestOrchestrator(t)
	ctx := context.Background()

	first, err := o.Run(ctx, Input{Mode: ModeFull, WorkspaceRoot: root, ProjectID: "proj", SourceDir: root})
	require.NoError(t, err)
	assert.Equal(t, 2, first.FilesSelected)

	second, err := o.Run(ctx, Input{Mode: ModeIncremental, WorkspaceRoot: root, ProjectID: "proj", SourceDir: root})
	require.NoError(t, err)
	assert.Equal(t, 0, second.FilesSelected)

	writeSourceFile(t, root, "a.go", "package sample\n\nfunc A() { return }\n")
	third, err := o.Run(ctx, Input{Mode: ModeIncremental, WorkspaceRoot: root, ProjectID: "proj", SourceDir: root})
	require.NoError(t, err)
	require.Equal(t, 1, third.FilesSelected)
}

func TestOrchestrator_ChangedFilesModeIntersectsWithDiscovered(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, root, "a.go", "package sample\n\nfunc A() {}\n")
	writeSourceFile(t, root, "b.go", "package sample\n\nfunc B() {}\n")

	o := newTestOrchestrator(t)
	result, err := o.Run(context.Background(), Input{
		Mode:          ModeIncremental,
		WorkspaceRoot: root,
		ProjectID:     "proj",
		SourceDir:     root,
		ChangedFiles:  []string{filepath.Join(root, "a.go"), filepath.Join(root, "missing.go")},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesSelected)
	assert.Equal(t, 1, result.FilesParsed)
}

func TestOrchestrator_StoreOfflineStillParsesAndBuildsStatements(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, root, "a.go", "package sample\n\nfunc A() {}\n")

	o := newTestOrchestrator(t)
	result, err := o.Run(context.Background(), Input{
		Mode:          ModeFull,
		WorkspaceRoot: root,
		ProjectID:     "proj",
		SourceDir:     root,
		IndexDocs:     true,
	})

	require.NoError(t, err)
	assert.Equal(t, 0, result.StatementFailures)
	assert.Equal(t, 0, result.DocsIndexed) // docs step requires a connected store
}

func TestOrchestrator_RejectsLargeFileDisguisedWithWrongExtension(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, root, "good.go", "package sample\n\nfunc Good() {}\n")

	png := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 600*1024)...)
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.go"), png, 0o644))

	o := newTestOrchestrator(t)
	result, err := o.Run(context.Background(), Input{
		Mode:          ModeFull,
		WorkspaceRoot: root,
		ProjectID:     "proj",
		SourceDir:     root,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesParsed)
	assert.Equal(t, 1, result.FilesFailed)
	assert.Contains(t, result.FileErrors["bad.go"], "rejected")
}
