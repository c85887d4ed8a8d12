package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover_FindsSupportedExtensionsAndSkipsExcluded(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, root, "main.go", "package main\n")
	writeSourceFile(t, root, "README.md", "# not source\n")
	writeSourceFile(t, root, "node_modules/dep/index.js", "module.exports = {}\n")
	writeSourceFile(t, root, ".hidden/skip.go", "package skip\n")

	got, err := discover(root, []string{"node_modules/**"})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"main.go"}, got)
}

func TestDiscover_SkipsSymlinkCycles(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, root, "real/main.go", "package main\n")

	loop := filepath.Join(root, "real", "loop")
	if err := os.Symlink(filepath.Join(root, "real"), loop); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}

	got, err := discover(root, nil)
	require.NoError(t, err)
	assert.Contains(t, got, "real/main.go")
	assert.Len(t, got, 1)
}
