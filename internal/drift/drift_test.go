package drift

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphcode-dev/graphcode-server/internal/memindex"
	"github.com/graphcode-dev/graphcode-server/internal/types"
)

func newIndexWithFunctions(n int) *memindex.Index {
	idx := memindex.New()
	for i := 0; i < n; i++ {
		idx.AddNode(&types.Node{
			ID:    types.NodeID("proj", types.LabelFunction, types.FunctionLocalKey("f.ts", "fn", i)),
			Label: types.LabelFunction, ProjectID: "proj",
		})
	}
	return idx
}

func TestDetect_StoreDisconnectedSkipsNodeDriftButStillReportsCachedCounts(t *testing.T) {
	d := New(nil, nil)
	idx := newIndexWithFunctions(5)

	report := d.Detect(context.Background(), idx, "proj")

	assert.False(t, report.NodeDrift)
	assert.Equal(t, 5, report.CachedIndexableTotal)
	assert.NotEmpty(t, report.Recommendations)
}

func TestDetect_NoVectorClientSkipsVectorDrift(t *testing.T) {
	d := New(nil, nil)
	idx := newIndexWithFunctions(1)

	report := d.Detect(context.Background(), idx, "proj")

	assert.False(t, report.VectorDrift)
	assert.Equal(t, 0, report.VectorCount)
}

func TestReport_CachedIndexableTotalOnlyCountsIndexableLabels(t *testing.T) {
	idx := memindex.New()
	idx.AddNode(&types.Node{ID: "proj:function:a", Label: types.LabelFunction, ProjectID: "proj"})
	idx.AddNode(&types.Node{ID: "proj:folder:b", Label: types.LabelFolder, ProjectID: "proj"})

	d := New(nil, nil)
	report := d.Detect(context.Background(), idx, "proj")

	require.Contains(t, report.CachedNodeCounts, types.LabelFunction)
	assert.Equal(t, 1, report.CachedIndexableTotal, "FOLDER is not in the indexable label set")
}
