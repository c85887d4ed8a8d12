package parser

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
	"sync"

	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// functionRegexes and importRegexes are per-extension line patterns used
// when no tree-sitter grammar is registered for a file, or when parsing
// fails. They trade precision for always producing a usable symbol list.
var (
	fallbackRegexOnce sync.Once
	functionRegexes   map[string]*regexp.Regexp
	classRegexes      map[string]*regexp.Regexp
	importRegexes     map[string]*regexp.Regexp
)

func loadFallbackRegexes() {
	fallbackRegexOnce.Do(func() {
		functionRegexes = map[string]*regexp.Regexp{
			"go":     regexp.MustCompile(`^\s*func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)\s*\(`),
			"python": regexp.MustCompile(`^\s*def\s+([A-Za-z_]\w*)\s*\(`),
			"c-like": regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+([A-Za-z_]\w*)\s*\(`),
		}
		classRegexes = map[string]*regexp.Regexp{
			"go":     regexp.MustCompile(`^\s*type\s+([A-Za-z_]\w*)\s+struct\b`),
			"python": regexp.MustCompile(`^\s*class\s+([A-Za-z_]\w*)`),
			"c-like": regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?class\s+([A-Za-z_]\w*)`),
		}
		importRegexes = map[string]*regexp.Regexp{
			"go":     regexp.MustCompile(`^\s*import\s+"([^"]+)"`),
			"python": regexp.MustCompile(`^\s*(?:from\s+(\S+)\s+import|import\s+(\S+))`),
			"c-like": regexp.MustCompile(`^\s*import\s+.*?from\s+['"]([^'"]+)['"]`),
		}
	})
}

// fallbackFamily maps an extension to the regex family above; an empty
// result means there is no meaningful regex pattern, and the file is
// recorded with LOC/hash only.
func fallbackFamily(ext string) string {
	switch strings.ToLower(ext) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs", ".java", ".rs":
		return "c-like"
	default:
		return ""
	}
}

// lineScanExtract is the coarse extractor used when a tree-sitter grammar
// isn't registered for ext, or treeSitterExtract failed. It never errors —
// an unrecognized extension simply yields a ParsedFile with empty symbol
// arrays, matching the "never a fatal error" contract.
func lineScanExtract(ext string, content []byte) *types.ParsedFile {
	loadFallbackRegexes()
	out := &types.ParsedFile{}

	family := fallbackFamily(ext)
	if family == "" {
		return out
	}

	funcRe := functionRegexes[family]
	classRe := classRegexes[family]
	importRe := importRegexes[family]

	scanner := bufio.NewScanner(bytes.NewReader(content))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if funcRe != nil {
			if m := funcRe.FindStringSubmatch(line); m != nil {
				out.Functions = append(out.Functions, types.ParsedFunction{
					Name:      m[1],
					Kind:      "function",
					StartLine: lineNum,
					EndLine:   lineNum,
				})
				continue
			}
		}
		if classRe != nil {
			if m := classRe.FindStringSubmatch(line); m != nil {
				out.Classes = append(out.Classes, types.ParsedClass{
					Name:      m[1],
					Kind:      "class",
					StartLine: lineNum,
					EndLine:   lineNum,
				})
				continue
			}
		}
		if importRe != nil {
			if m := importRe.FindStringSubmatch(line); m != nil {
				source := firstNonEmpty(m[1:])
				out.Imports = append(out.Imports, types.ParsedImport{
					Source:     source,
					StartLine:  lineNum,
					IsRelative: strings.HasPrefix(source, "."),
				})
			}
		}
	}

	return out
}

func firstNonEmpty(candidates []string) string {
	for _, c := range candidates {
		if c != "" {
			return strings.TrimSpace(c)
		}
	}
	return ""
}
