package docsengine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Discover walks workspaceRoot collecting every markdown file, skipping
// excluded globs, dot-directories, and symlink cycles — the same walk
// shape internal/orchestrator uses for source discovery, applied here to
// the whole workspace rather than just sourceDir since docs commonly live
// outside it (a top-level README, a docs/ tree).
func Discover(workspaceRoot string, exclude []string) ([]string, error) {
	var out []string
	visited := make(map[string]bool)

	err := filepath.Walk(workspaceRoot, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}

		rel, relErr := filepath.Rel(workspaceRoot, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if path != workspaceRoot {
				if strings.HasPrefix(info.Name(), ".") {
					return filepath.SkipDir
				}
				if matchesAny(exclude, rel) {
					return filepath.SkipDir
				}
			}
			real, err := filepath.EvalSymlinks(path)
			if err != nil {
				return nil
			}
			if visited[real] {
				return filepath.SkipDir
			}
			visited[real] = true
			return nil
		}

		if matchesAny(exclude, rel) {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".markdown" && ext != ".mdx" {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func matchesAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, rel+"/"); ok {
			return true
		}
	}
	return false
}
