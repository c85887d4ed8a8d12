// Package orchestrator drives one build transaction end to end (C6):
// discover source files, select which need reparsing, parse and build
// statements for each, derive cross-file edges, execute against the graph
// store, reconcile the shared in-memory index, and persist the hash cache.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/graphcode-dev/graphcode-server/internal/cache"
	"github.com/graphcode-dev/graphcode-server/internal/config"
	"github.com/graphcode-dev/graphcode-server/internal/docsengine"
	"github.com/graphcode-dev/graphcode-server/internal/graphbuild"
	"github.com/graphcode-dev/graphcode-server/internal/graphstore"
	"github.com/graphcode-dev/graphcode-server/internal/memindex"
	"github.com/graphcode-dev/graphcode-server/internal/parser"
	"github.com/graphcode-dev/graphcode-server/internal/security"
	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// largeFileThresholdKB gates when a file gets header-sniffed before parsing;
// below this, files are parsed unconditionally.
const largeFileThresholdKB = 512

// FeatureSeed is a progress/roadmap node the caller wants present after the
// build, without overwriting its status on re-runs (ON CREATE semantics).
type FeatureSeed struct {
	Name     string
	Status   string
	Priority string
}

// Input is one build transaction's parameters.
type Input struct {
	Mode          Mode
	WorkspaceRoot string
	ProjectID     string
	SourceDir     string
	Exclude       []string
	ChangedFiles  []string
	TxID          string
	TxTimestamp   time.Time
	IndexDocs     bool
	Features      []FeatureSeed
}

// Result summarizes one completed build transaction.
type Result struct {
	TxID              string
	TxTimestamp       time.Time
	FilesDiscovered   int
	FilesSelected     int
	FilesParsed       int
	FilesFailed       int
	Statements        int
	StatementFailures int
	DocsIndexed       int
	Warnings          []string
	FileErrors        map[string]string
	Duration          time.Duration
}

// Orchestrator holds the long-lived collaborators a build transaction
// writes through: the (possibly disconnected) store client, the
// project-scoped in-memory index, and the persistent hash cache.
type Orchestrator struct {
	Store     *graphstore.Client
	Index     *memindex.Index
	HashCache *cache.HashCache
	Parser    *parser.Parser
	Builder   *graphbuild.Builder
	Docs      *docsengine.Engine
	Validator *security.FileValidator

	// RespectGitignore gates whether discover() also excludes whatever the
	// source directory's own .gitignore matches, on top of the caller's
	// explicit Exclude globs and any detected build-artifact directories.
	RespectGitignore bool
}

func New(store *graphstore.Client, index *memindex.Index, hc *cache.HashCache, respectGitignore bool) *Orchestrator {
	return &Orchestrator{
		Store:            store,
		Index:            index,
		HashCache:        hc,
		Parser:           parser.New(),
		Builder:          graphbuild.NewBuilder(),
		Validator:        security.NewFileValidator(largeFileThresholdKB),
		Docs:             docsengine.New(),
		RespectGitignore: respectGitignore,
	}
}

// Run executes one build transaction per the ten-step algorithm: discover,
// select, record tx, parse+build, derive edges, seed progress, execute,
// docs, reconcile, persist cache.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()

	txID := in.TxID
	if txID == "" {
		txID = uuid.NewString()
	}
	txTimestamp := in.TxTimestamp
	if txTimestamp.IsZero() {
		txTimestamp = start
	}
	tx := graphbuild.Tx{ProjectID: in.ProjectID, TxID: txID, Timestamp: txTimestamp}

	result := &Result{TxID: txID, TxTimestamp: txTimestamp, FileErrors: map[string]string{}}

	// 1. Discover
	exclude := o.resolveExcludes(in.SourceDir, in.Exclude)
	discovered, err := discover(in.SourceDir, exclude)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	result.FilesDiscovered = len(discovered)

	// 2. Select
	selected := selectFiles(in.Mode, in.SourceDir, discovered, in.ChangedFiles, o.HashCache)
	result.FilesSelected = len(selected)

	storeLive := o.Store != nil && o.Store.IsConnected()

	// 3. Record TX
	if storeLive {
		txStmt := graphTxStatement(tx, in.Mode, in.SourceDir)
		if qr := o.Store.ExecuteQuery(ctx, txStmt); qr.Error != nil {
			result.Warnings = append(result.Warnings, "tx record: "+qr.Error.Error())
		}
	}

	// 4. Parse+Build
	var allStatements []types.Statement
	parsed := make(map[string]*types.ParsedFile, len(selected))
	fileIndex := make(map[string]bool, len(discovered))
	symbolIndex := make(map[string]string)

	for _, d := range discovered {
		fileIndex[d] = true
	}

	for _, rel := range selected {
		abs := filepath.Join(in.SourceDir, rel)
		if o.Validator != nil {
			if vErr := o.Validator.ValidateLargeFile(abs); vErr != nil {
				result.FilesFailed++
				result.FileErrors[rel] = "rejected: " + vErr.Error()
				continue
			}
		}
		content, readErr := os.ReadFile(abs)
		if readErr != nil {
			result.FilesFailed++
			result.FileErrors[rel] = readErr.Error()
			continue
		}

		pf := o.Parser.ParseFile(rel, abs, content)
		if pf.Warning != "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", rel, pf.Warning))
		}

		stmts := o.Builder.Build(tx, pf)
		allStatements = append(allStatements, stmts...)
		parsed[rel] = pf
		result.FilesParsed++

		fileID := types.NodeID(in.ProjectID, types.LabelFile, types.FileLocalKey(rel))
		for i, fn := range pf.Functions {
			symbolIndex[fn.Name] = types.NodeID(in.ProjectID, types.LabelFunction, types.FunctionLocalKey(rel, fn.Name, i))
		}
		for i, cl := range pf.Classes {
			symbolIndex[cl.Name] = types.NodeID(in.ProjectID, types.LabelClass, types.ClassLocalKey(rel, cl.Name, i))
		}
		o.syncParsedIntoIndex(fileID, in.ProjectID, rel, pf)

		hc := cache.HashContent(content)
		o.HashCache.Set(rel, hc, pf.LOC)
	}

	// 5. Derived edges
	allStatements = append(allStatements, derivedTestEdges(tx, parsed, fileIndex)...)

	// 6. Seed progress
	for _, f := range in.Features {
		allStatements = append(allStatements, seedFeatureStatement(tx, f))
	}

	result.Statements = len(allStatements)

	// 7. Execute
	if storeLive {
		for _, qr := range o.Store.ExecuteBatch(ctx, allStatements) {
			if qr.Error != nil {
				result.StatementFailures++
				result.Warnings = append(result.Warnings, qr.Error.Error())
			}
		}
	}

	// 8. Docs
	if in.Mode == ModeFull && in.IndexDocs && storeLive {
		docsResult, docsErr := o.Docs.Run(ctx, o.Store, tx, in.WorkspaceRoot, in.Exclude, fileIndex, symbolIndex)
		if docsErr != nil {
			result.Warnings = append(result.Warnings, "docs: "+docsErr.Error())
		} else {
			result.DocsIndexed = docsResult.DocsIndexed
			result.Statements += docsResult.Statements
			result.Warnings = append(result.Warnings, docsResult.Warnings...)
		}
	}

	// 9. Reconcile — handled by the caller via Orchestrator.Index directly,
	// since syncFrom needs the *other* (shared/internal) index handle this
	// package doesn't own; see ReconcileFrom.

	// 10. Persist cache
	if err := o.HashCache.Save(); err != nil {
		result.Warnings = append(result.Warnings, "hash cache save: "+err.Error())
	}

	result.Duration = time.Since(start)
	return result, nil
}

// resolveExcludes extends the caller's explicit exclude globs with whatever
// the source directory's .gitignore matches (when RespectGitignore is set)
// and with build-output directories detected from the project's own
// build configuration files (package.json, tsconfig.json, Cargo.toml, ...).
func (o *Orchestrator) resolveExcludes(sourceDir string, explicit []string) []string {
	exclude := append([]string{}, explicit...)

	if o.RespectGitignore {
		gp := config.NewGitignoreParser()
		if err := gp.LoadGitignore(sourceDir); err == nil {
			exclude = append(exclude, gp.GetExclusionPatterns()...)
		}
	}

	detector := config.NewBuildArtifactDetector(sourceDir)
	exclude = append(exclude, detector.DetectOutputDirectories()...)

	return config.DeduplicatePatterns(exclude)
}

// ReconcileFrom merges another (typically request-scoped or drift-check)
// index into the orchestrator's shared index, step 9 of the build
// algorithm — done as a separate call since the caller decides which index
// instance is authoritative for a given deployment shape.
func (o *Orchestrator) ReconcileFrom(other *memindex.Index) {
	o.Index.SyncFrom(other)
}

// syncParsedIntoIndex mirrors every node and edge o.Builder.Build emits for
// this file into the in-memory index, so the hot-path queries that read
// o.Index (graph expansion, the lexical fallback scanner, the drift
// detector) see the same symbol set the store statements carry.
func (o *Orchestrator) syncParsedIntoIndex(fileID, projectID, relPath string, pf *types.ParsedFile) {
	o.Index.AddNode(&types.Node{
		ID:        fileID,
		Label:     types.LabelFile,
		ProjectID: projectID,
		Properties: map[string]any{
			"relativePath": relPath,
			"language":     pf.Language,
			"loc":          pf.LOC,
			"hash":         pf.Hash,
		},
	})

	for i, fn := range pf.Functions {
		id := types.NodeID(projectID, types.LabelFunction, types.FunctionLocalKey(relPath, fn.Name, i))
		o.Index.AddNode(&types.Node{
			ID:        id,
			Label:     types.LabelFunction,
			ProjectID: projectID,
			Properties: map[string]any{
				"name":         fn.Name,
				"kind":         fn.Kind,
				"relativePath": relPath,
				"startLine":    fn.StartLine,
				"endLine":      fn.EndLine,
				"isExported":   fn.IsExported,
			},
		})
		o.Index.AddEdge(&types.Edge{Type: types.EdgeFileContains, FromID: fileID, ToID: id, ProjectID: projectID})
	}

	for i, cl := range pf.Classes {
		id := types.NodeID(projectID, types.LabelClass, types.ClassLocalKey(relPath, cl.Name, i))
		o.Index.AddNode(&types.Node{
			ID:        id,
			Label:     types.LabelClass,
			ProjectID: projectID,
			Properties: map[string]any{
				"name":         cl.Name,
				"kind":         cl.Kind,
				"relativePath": relPath,
				"startLine":    cl.StartLine,
				"endLine":      cl.EndLine,
				"isExported":   cl.IsExported,
			},
		})
		o.Index.AddEdge(&types.Edge{Type: types.EdgeFileContains, FromID: fileID, ToID: id, ProjectID: projectID})

		if cl.Extends != "" {
			o.Index.AddEdge(&types.Edge{
				Type: types.EdgeClassExtends, FromID: id,
				ToID: types.NodeID(projectID, types.LabelClass, graphbuild.ClassParentLocalKey(cl.Extends)), ProjectID: projectID,
			})
		}
		for _, iface := range cl.Implements {
			o.Index.AddEdge(&types.Edge{
				Type: types.EdgeClassImplements, FromID: id,
				ToID: types.NodeID(projectID, types.LabelClass, graphbuild.ClassParentLocalKey(iface)), ProjectID: projectID,
			})
		}
	}

	for i, imp := range pf.Imports {
		id := types.NodeID(projectID, types.LabelImport, types.ImportLocalKey(relPath, i))
		o.Index.AddNode(&types.Node{
			ID:        id,
			Label:     types.LabelImport,
			ProjectID: projectID,
			Properties: map[string]any{
				"source":       imp.Source,
				"relativePath": relPath,
				"startLine":    imp.StartLine,
				"isRelative":   imp.IsRelative,
			},
		})
		o.Index.AddEdge(&types.Edge{Type: types.EdgeFileImports, FromID: fileID, ToID: id, ProjectID: projectID})
	}

	for i, exp := range pf.Exports {
		id := types.NodeID(projectID, types.LabelExport, types.ExportLocalKey(relPath, i))
		o.Index.AddNode(&types.Node{
			ID:        id,
			Label:     types.LabelExport,
			ProjectID: projectID,
			Properties: map[string]any{
				"name":         exp.Name,
				"relativePath": relPath,
				"isDefault":    exp.IsDefault,
				"startLine":    exp.StartLine,
			},
		})
		o.Index.AddEdge(&types.Edge{Type: types.EdgeFileExports, FromID: fileID, ToID: id, ProjectID: projectID})
	}

	for i, ts := range pf.TestSuites {
		id := types.NodeID(projectID, types.LabelTestSuite, types.TestSuiteLocalKey(relPath, ts.Name, i))
		o.Index.AddNode(&types.Node{
			ID:        id,
			Label:     types.LabelTestSuite,
			ProjectID: projectID,
			Properties: map[string]any{
				"name":         ts.Name,
				"type":         ts.Type,
				"category":     ts.Category,
				"relativePath": relPath,
				"startLine":    ts.StartLine,
				"endLine":      ts.EndLine,
			},
		})
		o.Index.AddEdge(&types.Edge{Type: types.EdgeFileContains, FromID: fileID, ToID: id, ProjectID: projectID})
	}
}

func graphTxStatement(tx graphbuild.Tx, mode Mode, sourceDir string) types.Statement {
	id := types.NodeID(tx.ProjectID, types.LabelGraphTx, "tx:"+tx.TxID)
	return types.Statement{
		Query: "MERGE (n:GRAPH_TX {id: $id}) SET n += $props",
		Params: map[string]any{
			"id": id,
			"props": map[string]any{
				"projectId": tx.ProjectID,
				"type":      string(mode),
				"timestamp": tx.Timestamp,
				"mode":      string(mode),
				"sourceDir": sourceDir,
			},
		},
	}
}

func seedFeatureStatement(tx graphbuild.Tx, f FeatureSeed) types.Statement {
	id := types.NodeID(tx.ProjectID, types.LabelFeature, "feature:"+f.Name)
	return types.Statement{
		Query: "MERGE (n:FEATURE {id: $id}) ON CREATE SET n += $props",
		Params: map[string]any{
			"id": id,
			"props": map[string]any{
				"name":      f.Name,
				"status":    f.Status,
				"priority":  f.Priority,
				"projectId": tx.ProjectID,
				"createdAt": tx.Timestamp,
			},
		},
	}
}
