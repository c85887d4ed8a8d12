package orchestrator

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/graphcode-dev/graphcode-server/internal/cache"
	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// Mode selects which of the three selection strategies a build run uses.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// selectFiles decides which discovered files actually get parsed this run:
// everything on a full build (after clearing the hash cache so nothing is
// skipped), the caller-supplied changed set intersected with what discover
// found when one was provided, or — the common incremental case — every
// file whose content hash differs from what the cache last saw.
func selectFiles(mode Mode, sourceDir string, discovered []string, changedFiles []string, hc *cache.HashCache) []string {
	if mode == ModeFull {
		hc.Clear()
		return discovered
	}

	if len(changedFiles) > 0 {
		return intersectChanged(sourceDir, discovered, changedFiles)
	}

	discoveredSet := make(map[string]bool, len(discovered))
	for _, d := range discovered {
		discoveredSet[d] = true
	}

	var out []string
	for _, rel := range discovered {
		content, err := os.ReadFile(filepath.Join(sourceDir, rel))
		if err != nil {
			continue
		}
		if hc.HasChanged(rel, cache.HashContent(content)) {
			out = append(out, rel)
		}
	}
	return out
}

// intersectChanged normalizes changedFiles to sourceDir-relative paths,
// drops duplicates, paths outside sourceDir, and unsupported extensions,
// then keeps only those discover() actually found.
func intersectChanged(sourceDir string, discovered, changedFiles []string) []string {
	discoveredSet := make(map[string]bool, len(discovered))
	for _, d := range discovered {
		discoveredSet[d] = true
	}

	seen := make(map[string]bool)
	var out []string
	for _, cf := range changedFiles {
		abs := cf
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(sourceDir, cf)
		}
		rel, err := filepath.Rel(sourceDir, abs)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = filepath.ToSlash(rel)
		if seen[rel] {
			continue
		}
		seen[rel] = true

		if !types.SupportedExtensions[strings.ToLower(filepath.Ext(rel))] {
			continue
		}
		if discoveredSet[rel] {
			out = append(out, rel)
		}
	}
	return out
}
