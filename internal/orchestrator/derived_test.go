package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphcode-dev/graphcode-server/internal/graphbuild"
	"github.com/graphcode-dev/graphcode-server/internal/types"
)

func TestDerivedTestEdges_ResolvesRelativeImportToKnownFile(t *testing.T) {
	tx := graphbuild.Tx{ProjectID: "proj", TxID: "tx1", Timestamp: time.Unix(0, 0)}

	parsed := map[string]*types.ParsedFile{
		"widget.test.ts": {
			RelativePath: "widget.test.ts",
			Imports: []types.ParsedImport{
				{Source: "./widget", IsRelative: true},
			},
			TestSuites: []types.ParsedTestSuite{
				{Name: "renders", Type: "unit"},
			},
		},
	}
	known := map[string]bool{"widget.ts": true}

	stmts := derivedTestEdges(tx, parsed, known)

	require.Len(t, stmts, 1)
	wantTarget := types.NodeID("proj", types.LabelFile, types.FileLocalKey("widget.ts"))
	assert.Equal(t, wantTarget, stmts[0].Params["toId"])
}

func TestDerivedTestEdges_NoEdgeWhenImportUnresolved(t *testing.T) {
	tx := graphbuild.Tx{ProjectID: "proj", TxID: "tx1", Timestamp: time.Unix(0, 0)}

	parsed := map[string]*types.ParsedFile{
		"widget.test.ts": {
			RelativePath: "widget.test.ts",
			TestSuites:   []types.ParsedTestSuite{{Name: "renders"}},
		},
	}

	stmts := derivedTestEdges(tx, parsed, map[string]bool{})
	assert.Empty(t, stmts)
}
