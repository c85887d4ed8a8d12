// Package docsengine is the C15 markdown counterpart to the source-file
// build the orchestrator drives for C1/C3: discover every markdown file in
// a workspace, parse it into a ParsedDoc, and build its DOCUMENT/SECTION
// statements through the same graph builder the orchestrator uses for
// source symbols.
package docsengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/graphcode-dev/graphcode-server/internal/graphbuild"
	"github.com/graphcode-dev/graphcode-server/internal/graphstore"
	"github.com/graphcode-dev/graphcode-server/internal/parser"
)

// Engine holds no per-run state; a single instance can be reused across
// build transactions.
type Engine struct {
	parser *parser.Parser
}

func New() *Engine {
	return &Engine{parser: parser.New()}
}

// Result summarizes one docs indexing pass.
type Result struct {
	DocsIndexed int
	Statements  int
	Warnings    []string
}

// Run discovers markdown under workspaceRoot, parses and builds statements
// for each, and executes them through store when store is connected.
// fileIndex and symbolIndex drive the builder's DOC_DESCRIBES backtick-ref
// matching — typically derived from the in-memory index the same build
// transaction populated.
func (e *Engine) Run(
	ctx context.Context,
	store *graphstore.Client,
	tx graphbuild.Tx,
	workspaceRoot string,
	exclude []string,
	fileIndex map[string]bool,
	symbolIndex map[string]string,
) (*Result, error) {
	paths, err := Discover(workspaceRoot, exclude)
	if err != nil {
		return nil, err
	}

	builder := graphbuild.NewDocsBuilder(fileIndex, symbolIndex)
	result := &Result{}

	for _, rel := range paths {
		abs := filepath.Join(workspaceRoot, rel)
		content, readErr := os.ReadFile(abs)
		if readErr != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", rel, readErr))
			continue
		}

		doc := e.parser.ParseDoc(rel, abs, content)
		stmts := builder.Build(tx, doc)
		result.Statements += len(stmts)
		result.DocsIndexed++

		if store == nil || !store.IsConnected() {
			continue
		}
		for _, qr := range store.ExecuteBatch(ctx, stmts) {
			if qr.Error != nil {
				result.Warnings = append(result.Warnings, qr.Error.Error())
			}
		}
	}

	return result, nil
}
