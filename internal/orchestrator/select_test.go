package orchestrator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphcode-dev/graphcode-server/internal/cache"
)

func TestSelectFiles_FullModeClearsCacheAndReturnsEverything(t *testing.T) {
	hc, err := cache.NewHashCache(filepath.Join(t.TempDir(), "hashes.json"))
	require.NoError(t, err)
	hc.Set("a.go", 1, 1)

	got := selectFiles(ModeFull, "/root", []string{"a.go", "b.go"}, nil, hc)

	assert.ElementsMatch(t, []string{"a.go", "b.go"}, got)
	assert.Equal(t, 0, hc.Len())
}

func TestIntersectChanged_DropsOutsideAndUnsupportedAndDuplicates(t *testing.T) {
	root := t.TempDir()
	discovered := []string{"a.go", "b.go"}

	got := intersectChanged(root, discovered, []string{
		filepath.Join(root, "a.go"),
		filepath.Join(root, "a.go"),
		filepath.Join(root, "c.txt"),
		"/elsewhere/outside.go",
		"b.go",
	})

	assert.ElementsMatch(t, []string{"a.go", "b.go"}, got)
}
