// Package graphbuild turns parser output into the idempotent upsert
// statements the graph store executes. The builder itself never touches
// the store or the in-memory index — it is a pure function from parsed
// records to statements, separating parsing from consumption.
package graphbuild

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// Tx carries the transaction-scoped fields every emitted statement's params
// must include.
type Tx struct {
	ProjectID string
	TxID      string
	Timestamp time.Time
}

// Builder produces Statements from a single ParsedFile. It is stateless
// across files; the seen-id set is per-Build call only — deduplication
// within a single parsed file happens here via a seen-id set, global
// deduplication is the store's responsibility.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Build emits the full statement set for one parsed source file: the FILE
// node and its FOLDER ancestry, then its symbols and their edges.
func (b *Builder) Build(tx Tx, pf *types.ParsedFile) []types.Statement {
	seen := make(map[string]bool)
	var stmts []types.Statement

	fileID := types.NodeID(tx.ProjectID, types.LabelFile, types.FileLocalKey(pf.RelativePath))
	stmts = append(stmts, b.upsertFile(tx, fileID, pf)...)
	stmts = append(stmts, b.upsertFolderChain(tx, pf.RelativePath, fileID, seen)...)

	for i, fn := range pf.Functions {
		stmts = append(stmts, b.upsertFunction(tx, fileID, pf.RelativePath, fn, i)...)
	}
	for i, cl := range pf.Classes {
		stmts = append(stmts, b.upsertClass(tx, fileID, pf.RelativePath, cl, i)...)
	}
	for i, imp := range pf.Imports {
		stmts = append(stmts, b.upsertImport(tx, fileID, pf.RelativePath, imp, i)...)
	}
	for i, exp := range pf.Exports {
		stmts = append(stmts, b.upsertExport(tx, fileID, pf.RelativePath, exp, i)...)
	}
	for i, ts := range pf.TestSuites {
		stmts = append(stmts, b.upsertTestSuite(tx, fileID, pf.RelativePath, ts, i)...)
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

func baseParams(tx Tx, extra map[string]any) map[string]any {
	p := map[string]any{
		"projectId": tx.ProjectID,
		"validFrom": tx.Timestamp,
		"validTo":   nil,
		"createdAt": tx.Timestamp,
		"txId":      tx.TxID,
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func upsertStatement(label types.Label, id string, params map[string]any) types.Statement {
	return types.Statement{
		Query: fmt.Sprintf("MERGE (n:%s {id: $id}) SET n += $props", label),
		Params: map[string]any{
			"id":    id,
			"props": params,
		},
	}
}

func edgeStatement(edgeType types.EdgeType, fromID, toID string, props map[string]any) types.Statement {
	if props == nil {
		props = map[string]any{}
	}
	return types.Statement{
		Query: fmt.Sprintf("MATCH (a {id: $fromId}), (b {id: $toId}) MERGE (a)-[r:%s]->(b) SET r += $props", edgeType),
		Params: map[string]any{
			"fromId": fromID,
			"toId":   toID,
			"props":  props,
		},
	}
}

// EdgeStatement is edgeStatement exported for callers outside this package
// that need to emit an edge derived after the fact — the orchestrator's
// TEST_SUITE-TESTS→FILE resolution, computed only once every file in a
// build has been parsed, not while a single file's statements are built.
func EdgeStatement(edgeType types.EdgeType, fromID, toID string, props map[string]any) types.Statement {
	return edgeStatement(edgeType, fromID, toID, props)
}

// UpsertStatement is upsertStatement exported for free-standing entities
// (EPISODE, CLAIM) that outlive a single parsed file and are written from
// their own packages rather than from a Build call.
func UpsertStatement(label types.Label, id string, params map[string]any) types.Statement {
	return upsertStatement(label, id, params)
}

func (b *Builder) upsertFile(tx Tx, fileID string, pf *types.ParsedFile) []types.Statement {
	return []types.Statement{
		upsertStatement(types.LabelFile, fileID, baseParams(tx, map[string]any{
			"relativePath": pf.RelativePath,
			"language":     pf.Language,
			"loc":          pf.LOC,
			"hash":         pf.Hash,
			"warning":      pf.Warning,
		})),
	}
}

// upsertFolderChain walks from the file's immediate parent up to the
// workspace root, emitting a FOLDER_CONTAINS edge at each level and a FOLDER
// node upsert only for folder ids not already seen this build; the walk
// always continues to the root.
func (b *Builder) upsertFolderChain(tx Tx, relativePath, fileID string, seen map[string]bool) []types.Statement {
	var stmts []types.Statement

	dir := path.Dir(relativePath)
	childID := fileID

	for dir != "." && dir != "/" && dir != "" {
		folderID := types.NodeID(tx.ProjectID, types.LabelFolder, types.FolderLocalKey(dir))
		if !seen[folderID] {
			seen[folderID] = true
			stmts = append(stmts, upsertStatement(types.LabelFolder, folderID, baseParams(tx, map[string]any{
				"relativePath": dir,
				"name":         path.Base(dir),
			})))
		}

		stmts = append(stmts, edgeStatement(types.EdgeFolderContains, folderID, childID, nil))

		childID = folderID
		next := path.Dir(dir)
		if next == dir {
			break
		}
		dir = next
	}

	return stmts
}

func (b *Builder) upsertFunction(tx Tx, fileID, relativePath string, fn types.ParsedFunction, ordinal int) []types.Statement {
	id := types.NodeID(tx.ProjectID, types.LabelFunction, types.FunctionLocalKey(relativePath, fn.Name, ordinal))
	stmts := []types.Statement{
		upsertStatement(types.LabelFunction, id, baseParams(tx, map[string]any{
			"name":       fn.Name,
			"kind":       fn.Kind,
			"startLine":  fn.StartLine,
			"endLine":    fn.EndLine,
			"parameters": types.SerializeScalar(fn.Parameters),
			"isExported": fn.IsExported,
		})),
		edgeStatement(types.EdgeFileContains, fileID, id, nil),
	}
	return stmts
}

func (b *Builder) upsertClass(tx Tx, fileID, relativePath string, cl types.ParsedClass, ordinal int) []types.Statement {
	id := types.NodeID(tx.ProjectID, types.LabelClass, types.ClassLocalKey(relativePath, cl.Name, ordinal))
	stmts := []types.Statement{
		upsertStatement(types.LabelClass, id, baseParams(tx, map[string]any{
			"name":       cl.Name,
			"kind":       cl.Kind,
			"startLine":  cl.StartLine,
			"endLine":    cl.EndLine,
			"isExported": cl.IsExported,
		})),
		edgeStatement(types.EdgeFileContains, fileID, id, nil),
	}

	if cl.Extends != "" {
		parentID := types.NodeID(tx.ProjectID, types.LabelClass, ClassParentLocalKey(cl.Extends))
		stmts = append(stmts, edgeStatement(types.EdgeClassExtends, id, parentID, nil))
	}
	for _, iface := range cl.Implements {
		ifaceID := types.NodeID(tx.ProjectID, types.LabelClass, ClassParentLocalKey(iface))
		stmts = append(stmts, edgeStatement(types.EdgeClassImplements, id, ifaceID, nil))
	}

	return stmts
}

// ClassParentLocalKey synthesizes the target id for an EXTENDS/IMPLEMENTS
// edge from a bare type name, stripping any generic parameter list. The
// parent's own ordinal is unknown at build time, so this resolves to
// ordinal 0 — the common case for a named class/interface declared once
// per file. Exported so the orchestrator's index sync can mint the same id
// when mirroring these edges into memindex.
func ClassParentLocalKey(name string) string {
	stripped := name
	if i := strings.IndexByte(stripped, '<'); i >= 0 {
		stripped = stripped[:i]
	}
	return fmt.Sprintf("class-ref:%s:0", strings.TrimSpace(stripped))
}

func (b *Builder) upsertImport(tx Tx, fileID, relativePath string, imp types.ParsedImport, ordinal int) []types.Statement {
	id := types.NodeID(tx.ProjectID, types.LabelImport, types.ImportLocalKey(relativePath, ordinal))
	stmts := []types.Statement{
		upsertStatement(types.LabelImport, id, baseParams(tx, map[string]any{
			"source":     imp.Source,
			"specifiers": types.SerializeScalar(imp.Specifiers),
			"startLine":  imp.StartLine,
			"isRelative": imp.IsRelative,
		})),
		edgeStatement(types.EdgeFileImports, fileID, id, nil),
	}

	if imp.IsRelative {
		if targetRel, ok := resolveRelativeImport(relativePath, imp.Source); ok {
			targetID := types.NodeID(tx.ProjectID, types.LabelFile, types.FileLocalKey(targetRel))
			stmts = append(stmts, edgeStatement(types.EdgeImportReference, id, targetID, nil))
		}
	}

	return stmts
}

// resolveRelativeImport joins a relative import source onto the importing
// file's directory and returns that path as-is. No extension or index-file
// candidates are tried (RelativeImportCandidates is not consulted here), and
// since this builder has no filesystem access the target is not checked for
// existence. The IMPORT_REFERENCES edge MATCHes its target FILE by id, so it
// is only created when the import source already names the target file
// including its extension.
func resolveRelativeImport(fromRelativePath, importSource string) (string, bool) {
	if !strings.HasPrefix(importSource, ".") {
		return "", false
	}
	base := path.Join(path.Dir(fromRelativePath), importSource)
	return base, true
}

// RelativeImportCandidates returns the ordered suffix candidates for
// resolving a relative import against the discovered file set.
func RelativeImportCandidates(base string) []string {
	return []string{
		base + ".ts",
		base + ".tsx",
		path.Join(base, "index.ts"),
		path.Join(base, "index.tsx"),
	}
}

func (b *Builder) upsertExport(tx Tx, fileID, relativePath string, exp types.ParsedExport, ordinal int) []types.Statement {
	id := types.NodeID(tx.ProjectID, types.LabelExport, types.ExportLocalKey(relativePath, ordinal))
	return []types.Statement{
		upsertStatement(types.LabelExport, id, baseParams(tx, map[string]any{
			"name":      exp.Name,
			"isDefault": exp.IsDefault,
			"startLine": exp.StartLine,
		})),
		edgeStatement(types.EdgeFileExports, fileID, id, nil),
	}
}

func (b *Builder) upsertTestSuite(tx Tx, fileID, relativePath string, ts types.ParsedTestSuite, ordinal int) []types.Statement {
	id := types.NodeID(tx.ProjectID, types.LabelTestSuite, types.TestSuiteLocalKey(relativePath, ts.Name, ordinal))
	return []types.Statement{
		upsertStatement(types.LabelTestSuite, id, baseParams(tx, map[string]any{
			"name":      ts.Name,
			"type":      ts.Type,
			"category":  ts.Category,
			"startLine": ts.StartLine,
			"endLine":   ts.EndLine,
		})),
		edgeStatement(types.EdgeFileContains, fileID, id, nil),
	}
}
