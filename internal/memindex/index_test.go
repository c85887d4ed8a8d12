package memindex

import (
	"testing"

	"github.com/graphcode-dev/graphcode-server/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_AddNodeIsIdempotent(t *testing.T) {
	idx := New()
	n := &types.Node{ID: "p:file:a.go", Label: types.LabelFile}

	idx.AddNode(n)
	idx.AddNode(n)

	nodes, edges := idx.Counts()
	assert.Equal(t, 1, nodes)
	assert.Equal(t, 0, edges)

	got, ok := idx.GetNode("p:file:a.go")
	require.True(t, ok)
	assert.Equal(t, n, got)
}

func TestIndex_AddEdgeDedupesAndTracksBothDirections(t *testing.T) {
	idx := New()
	idx.AddNode(&types.Node{ID: "a", Label: types.LabelFile})
	idx.AddNode(&types.Node{ID: "b", Label: types.LabelFunction})

	e := &types.Edge{Type: types.EdgeFileContains, FromID: "a", ToID: "b"}
	idx.AddEdge(e)
	idx.AddEdge(e)

	_, edgeCount := idx.Counts()
	assert.Equal(t, 1, edgeCount)

	assert.Len(t, idx.Outgoing("a"), 1)
	assert.Len(t, idx.Incoming("b"), 1)
	assert.Len(t, idx.EdgesByType(types.EdgeFileContains), 1)
}

func TestIndex_SyncFromMergesWithoutDuplicating(t *testing.T) {
	a := New()
	a.AddNode(&types.Node{ID: "x", Label: types.LabelFile})

	b := New()
	b.AddNode(&types.Node{ID: "x", Label: types.LabelFile})
	b.AddNode(&types.Node{ID: "y", Label: types.LabelFunction})
	b.AddEdge(&types.Edge{Type: types.EdgeFileContains, FromID: "x", ToID: "y"})

	a.SyncFrom(b)

	nodes, edges := a.Counts()
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 1, edges)
}

func TestIndex_ExportReflectsByTypeCounts(t *testing.T) {
	idx := New()
	idx.AddNode(&types.Node{ID: "a", Label: types.LabelFile})
	idx.AddNode(&types.Node{ID: "b", Label: types.LabelFile})
	idx.AddNode(&types.Node{ID: "c", Label: types.LabelFunction})

	data, err := idx.Export()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"nodes":3`)
}
