package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_DetectsFileChangeAndInvokesBatchHandler(t *testing.T) {
	root := t.TempDir()

	var mu sync.Mutex
	var received []string
	done := make(chan struct{}, 1)

	handler := func(ctx context.Context, paths []string) error {
		mu.Lock()
		received = append(received, paths...)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	}

	w, err := New(root, nil, 50, handler)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	assert.Equal(t, StateIdle, w.State())

	target := filepath.Join(root, "a.go")
	require.NoError(t, os.WriteFile(target, []byte("package main"), 0o644))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch handler")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, received)
}

func TestWatcher_StopReturnsToIdle(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, nil, 50, func(ctx context.Context, paths []string) error { return nil })
	require.NoError(t, err)
	require.NoError(t, w.Start())

	require.NoError(t, w.Stop())
	assert.Equal(t, StateIdle, w.State())
}

func TestWatcher_ShouldIgnoreDirMatchesExcludes(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, []string{"**/node_modules/**"}, 50, nil)
	require.NoError(t, err)

	nodeModules := filepath.Join(root, "node_modules")
	require.NoError(t, os.Mkdir(nodeModules, 0o755))

	assert.True(t, w.shouldIgnoreDir(nodeModules))
	assert.False(t, w.shouldIgnoreDir(root))
}
