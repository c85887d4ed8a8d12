package orchestrator

import (
	"path"

	"github.com/graphcode-dev/graphcode-server/internal/graphbuild"
	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// derivedTestEdges computes TEST_SUITE-TESTS→FILE edges once every selected
// file in the build has been parsed: each test file's relative imports are
// resolved against the full known-file set using the same candidate-suffix
// logic the graph builder uses for IMPORT-REFERENCES, since a single
// file's Build call has no visibility into whether a sibling file exists.
func derivedTestEdges(tx graphbuild.Tx, parsed map[string]*types.ParsedFile, known map[string]bool) []types.Statement {
	var stmts []types.Statement

	for relPath, pf := range parsed {
		if len(pf.TestSuites) == 0 {
			continue
		}

		targetFileID, ok := resolveTestTarget(tx, relPath, pf, known)
		if !ok {
			continue
		}

		for i, ts := range pf.TestSuites {
			testID := types.NodeID(tx.ProjectID, types.LabelTestSuite, types.TestSuiteLocalKey(relPath, ts.Name, i))
			stmts = append(stmts, graphbuild.EdgeStatement(types.EdgeTestSuiteTests, testID, targetFileID, nil))
		}
	}

	return stmts
}

func resolveTestTarget(tx graphbuild.Tx, relPath string, pf *types.ParsedFile, known map[string]bool) (string, bool) {
	for _, imp := range pf.Imports {
		if !imp.IsRelative {
			continue
		}
		base := path.Join(path.Dir(relPath), imp.Source)
		for _, candidate := range graphbuild.RelativeImportCandidates(base) {
			if known[candidate] {
				return types.NodeID(tx.ProjectID, types.LabelFile, types.FileLocalKey(candidate)), true
			}
		}
	}
	return "", false
}
