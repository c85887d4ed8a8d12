package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	graphcodeerrors "github.com/graphcode-dev/graphcode-server/internal/errors"
)

func TestResolveProjectContext_DefaultsProjectIDAndSourceDir(t *testing.T) {
	s, err := ResolveProjectContext(ContextArgs{WorkspaceRoot: "/tmp/myproj"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "myproj", s.ProjectID)
	assert.Equal(t, "/tmp/myproj/src", s.SourceDir)
	assert.NotEmpty(t, s.ProjectFingerprint)
}

func TestResolveProjectContext_ExplicitArgsOverrideActive(t *testing.T) {
	active, err := ResolveProjectContext(ContextArgs{WorkspaceRoot: "/tmp/old"}, nil)
	require.NoError(t, err)

	s, err := ResolveProjectContext(ContextArgs{WorkspaceRoot: "/tmp/new", ProjectID: "explicit"}, active)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/new", s.WorkspaceRoot)
	assert.Equal(t, "explicit", s.ProjectID)
	assert.Equal(t, "/tmp/new/src", s.SourceDir)
}

func TestResolveProjectContext_ActiveCarriesSourceDirWhenRootUnchanged(t *testing.T) {
	active, err := ResolveProjectContext(ContextArgs{WorkspaceRoot: "/tmp/proj", SourceDir: "lib"}, nil)
	require.NoError(t, err)
	require.Equal(t, "/tmp/proj/lib", active.SourceDir)

	s, err := ResolveProjectContext(ContextArgs{WorkspaceRoot: "/tmp/proj"}, active)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/proj/lib", s.SourceDir)
}

func TestResolveProjectContext_NoWorkspaceRootIsError(t *testing.T) {
	t.Setenv(EnvWorkspaceRoot, "")

	_, err := ResolveProjectContext(ContextArgs{}, nil)
	require.Error(t, err)

	var toolErr *graphcodeerrors.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, graphcodeerrors.CodeWorkspaceNotFound, toolErr.Code)
}

func TestAdaptWorkspaceForRuntime_NoopWhenReachable(t *testing.T) {
	dir := t.TempDir()
	s := &Session{WorkspaceRoot: dir, SourceDir: filepath.Join(dir, "src"), ProjectID: "p"}

	adapted, result, err := AdaptWorkspaceForRuntime(s, true, "/mnt")
	require.NoError(t, err)

	assert.Same(t, s, adapted)
	assert.False(t, result.UsedFallback)
}

func TestAdaptWorkspaceForRuntime_FallsBackToMountedPath(t *testing.T) {
	mountRoot := t.TempDir()
	projDir := filepath.Join(mountRoot, "myproj")
	require.NoError(t, os.MkdirAll(filepath.Join(projDir, "src"), 0o755))

	s := &Session{
		WorkspaceRoot: "/host/path/that/does/not/exist/myproj",
		SourceDir:     "/host/path/that/does/not/exist/myproj/src",
		ProjectID:     "p",
	}

	adapted, result, err := AdaptWorkspaceForRuntime(s, true, mountRoot)
	require.NoError(t, err)

	assert.True(t, result.UsedFallback)
	assert.NotEmpty(t, result.FallbackReason)
	assert.Equal(t, projDir, adapted.WorkspaceRoot)
	assert.Equal(t, filepath.Join(projDir, "src"), adapted.SourceDir)
	assert.NotEqual(t, s.ProjectFingerprint, adapted.ProjectFingerprint)
}

func TestAdaptWorkspaceForRuntime_ErrorsWhenFallbackDisallowed(t *testing.T) {
	s := &Session{WorkspaceRoot: "/does/not/exist", SourceDir: "/does/not/exist/src", ProjectID: "p"}

	_, _, err := AdaptWorkspaceForRuntime(s, false, "/mnt")
	require.Error(t, err)

	var toolErr *graphcodeerrors.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, graphcodeerrors.CodeWorkspaceSandboxed, toolErr.Code)
}

func TestAdaptWorkspaceForRuntime_ErrorsWhenMountedPathAlsoMissing(t *testing.T) {
	s := &Session{WorkspaceRoot: "/does/not/exist/myproj", SourceDir: "/does/not/exist/myproj/src", ProjectID: "p"}

	_, _, err := AdaptWorkspaceForRuntime(s, true, t.TempDir())
	require.Error(t, err)

	var toolErr *graphcodeerrors.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, graphcodeerrors.CodeWorkspaceNotFound, toolErr.Code)
}

func TestManager_SetContextStopsPreviousWatcherAndStartsNew(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	m := NewManager()
	noop := func(ctx context.Context, paths []string) error { return nil }

	sA := &Session{WorkspaceRoot: dirA, SourceDir: dirA, ProjectID: "a"}
	require.NoError(t, m.SetContext(sA, nil, 50, noop))
	firstWatcher := m.watcher
	require.NotNil(t, firstWatcher)

	sB := &Session{WorkspaceRoot: dirB, SourceDir: dirB, ProjectID: "b"}
	require.NoError(t, m.SetContext(sB, nil, 50, noop))

	assert.Same(t, sB, m.Active())
	assert.NotSame(t, firstWatcher, m.watcher)

	require.NoError(t, m.Stop())
	assert.Nil(t, m.watcher)
}

func TestManager_SetContextWithNilHandlerLeavesNoWatcher(t *testing.T) {
	m := NewManager()
	s := &Session{WorkspaceRoot: t.TempDir(), ProjectID: "p"}

	require.NoError(t, m.SetContext(s, nil, 50, nil))

	assert.Same(t, s, m.Active())
	assert.Nil(t, m.watcher)
}
