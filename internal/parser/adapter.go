// Package parser turns (path, bytes) into a canonical ParsedFile or
// ParsedDoc record. It selects a backend per extension: a tree-sitter
// grammar when one is registered, falling back to a regex/line-scanner
// extractor otherwise — the output shape is identical either way.
package parser

import (
	"path/filepath"
	"strings"

	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// Parser is the stateless C1 adapter. It holds no per-file state; grammars
// are loaded lazily and cached process-wide the first time they're needed.
type Parser struct{}

func New() *Parser {
	return &Parser{}
}

// ParseFile turns (absolutePath, content) into a ParsedFile. Unreadable or
// unparseable content never produces a fatal error: the result carries a
// non-fatal Warning and whatever symbol arrays the best-effort backend
// extracted (possibly none).
func (p *Parser) ParseFile(relativePath, absolutePath string, content []byte) *types.ParsedFile {
	ext := strings.ToLower(filepath.Ext(relativePath))
	lang := LanguageFromExtension(ext)

	var result *types.ParsedFile
	var warning string

	if lang != LanguageUnknown {
		if extracted, ok := treeSitterExtract(lang, content); ok {
			result = extracted
		} else {
			warning = "tree-sitter grammar failed, used line-scanner fallback"
		}
	}

	if result == nil {
		result = lineScanExtract(ext, content)
	}

	result.FilePath = absolutePath
	result.RelativePath = relativePath
	result.Language = string(lang)
	if lang == LanguageUnknown {
		result.Language = strings.TrimPrefix(ext, ".")
	}
	result.LOC = countLines(content)
	result.Hash = contentHash(content)
	result.Warning = warning
	result.TestSuites = extractTestSuites(ext, content)

	return result
}
