package graphbuild

import (
	"path"
	"strings"

	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// DocsBuilder is the DOCUMENT/SECTION symmetric counterpart to Builder,
// consuming ParsedDoc instead of ParsedFile.
type DocsBuilder struct {
	// FileIndex lets DOC_DESCRIBES backtick-ref matching resolve against the
	// set of known FILE relative paths without the builder touching the
	// store. Supplying nil disables FILE matching (function/class matching
	// still runs against SymbolIndex).
	FileIndex map[string]bool
	// SymbolIndex maps a bare symbol name to its node id, for backtick refs
	// that match a FUNCTION or CLASS name exactly.
	SymbolIndex map[string]string
}

func NewDocsBuilder(fileIndex map[string]bool, symbolIndex map[string]string) *DocsBuilder {
	return &DocsBuilder{FileIndex: fileIndex, SymbolIndex: symbolIndex}
}

// Build emits the DOCUMENT node, one SECTION per heading-delimited chunk
// with NEXT_SECTION chaining, and DOC_DESCRIBES edges for exact backtick-ref
// matches.
func (d *DocsBuilder) Build(tx Tx, doc *types.ParsedDoc) []types.Statement {
	var stmts []types.Statement

	docID := types.NodeID(tx.ProjectID, types.LabelDocument, types.DocLocalKey(doc.RelativePath))
	stmts = append(stmts, upsertStatement(types.LabelDocument, docID, baseParams(tx, map[string]any{
		"relativePath": doc.RelativePath,
		"title":        doc.Title,
		"kind":         string(doc.Kind),
		"hash":         doc.Hash,
		"wordCount":    doc.WordCount,
	})))

	var prevSectionID string
	for _, sec := range doc.Sections {
		secID := types.NodeID(tx.ProjectID, types.LabelSection, types.SectionLocalKey(doc.RelativePath, sec.Index))
		content := sec.Content
		if len(content) > types.SectionContentMaxChars {
			content = content[:types.SectionContentMaxChars]
		}

		stmts = append(stmts, upsertStatement(types.LabelSection, secID, baseParams(tx, map[string]any{
			"index":     sec.Index,
			"heading":   sec.Heading,
			"level":     sec.Level,
			"content":   content,
			"startLine": sec.StartLine,
			"wordCount": sec.WordCount,
		})))
		stmts = append(stmts, edgeStatement(types.EdgeSectionOf, secID, docID, nil))

		if prevSectionID != "" {
			stmts = append(stmts, edgeStatement(types.EdgeNextSection, prevSectionID, secID, nil))
		}
		prevSectionID = secID

		stmts = append(stmts, d.describesEdges(tx, doc.RelativePath, secID, sec.BacktickRefs)...)
	}

	// Edge statements carry the same transaction fields as node upserts.
	for _, s := range stmts {
		if _, isEdge := s.Params["fromId"]; !isEdge {
			continue
		}
		props := s.Params["props"].(map[string]any)
		for k, v := range baseParams(tx, nil) {
			if _, set := props[k]; !set {
				props[k] = v
			}
		}
	}

	return stmts
}

// describesEdges resolves each backtick-quoted reference in a section
// against known files (exact path or path-suffix-with-slash match) and
// symbols (exact name match), emitting a DOC_DESCRIBES edge with
// strength=1.0 for each hit.
func (d *DocsBuilder) describesEdges(tx Tx, docRelativePath, sectionID string, refs []string) []types.Statement {
	var stmts []types.Statement

	for _, ref := range refs {
		ref = cleanRef(strings.TrimSpace(ref))
		if ref == "" {
			continue
		}

		if d.FileIndex != nil {
			if targetRel, ok := matchFileRef(d.FileIndex, ref); ok {
				targetID := types.NodeID(tx.ProjectID, types.LabelFile, types.FileLocalKey(targetRel))
				stmts = append(stmts, edgeStatement(types.EdgeDocDescribes, sectionID, targetID, map[string]any{"strength": 1.0}))
				continue
			}
		}

		if d.SymbolIndex != nil {
			if targetID, ok := d.SymbolIndex[ref]; ok {
				stmts = append(stmts, edgeStatement(types.EdgeDocDescribes, sectionID, targetID, map[string]any{"strength": 1.0}))
			}
		}
	}

	return stmts
}

// matchFileRef matches ref against fileIndex exactly, or as a path whose
// suffix (preceded by "/") equals ref — an exact-or-suffix-with-slash
// match.
func matchFileRef(fileIndex map[string]bool, ref string) (string, bool) {
	if fileIndex[ref] {
		return ref, true
	}
	for candidate := range fileIndex {
		if candidate == ref {
			return candidate, true
		}
		if strings.HasSuffix(candidate, "/"+ref) {
			return candidate, true
		}
	}
	return "", false
}

// cleanRef strips a leading "./" some markdown authors include in backtick
// refs before suffix matching.
func cleanRef(ref string) string {
	return strings.TrimPrefix(path.Clean(ref), "./")
}
