package orchestrator

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// discover walks sourceDir collecting relative paths of every file whose
// extension is in types.SupportedExtensions, skipping excluded globs,
// dot-directories, and symlink cycles — the same walk shape as the
// watcher's addWatches, reused for a one-shot directory scan instead of a
// persistent fsnotify registration.
func discover(sourceDir string, exclude []string) ([]string, error) {
	var out []string
	visited := make(map[string]bool)

	err := filepath.Walk(sourceDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}

		rel, relErr := filepath.Rel(sourceDir, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if path != sourceDir {
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
		if !types.SupportedExtensions[strings.ToLower(filepath.Ext(path))] {
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
