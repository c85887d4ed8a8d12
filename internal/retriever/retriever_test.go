package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphcode-dev/graphcode-server/internal/memindex"
	"github.com/graphcode-dev/graphcode-server/internal/types"
)

func newTestIndex() *memindex.Index {
	idx := memindex.New()
	idx.AddNode(&types.Node{
		ID: "proj:function:widget.ts:render:0", Label: types.LabelFunction, ProjectID: "proj",
		Properties: map[string]any{"name": "render", "relativePath": "widget.ts", "content": "function render() { return compute(result) }"},
	})
	idx.AddNode(&types.Node{
		ID: "proj:function:helpers.ts:compute:0", Label: types.LabelFunction, ProjectID: "proj",
		Properties: map[string]any{"name": "compute", "relativePath": "helpers.ts", "content": "function compute(x) { return x * 2 }"},
	})
	idx.AddNode(&types.Node{
		ID: "proj:file:widget.ts", Label: types.LabelFile, ProjectID: "proj",
		Properties: map[string]any{"relativePath": "widget.ts"},
	})
	idx.AddNode(&types.Node{
		ID: "other:function:unrelated.ts:foo:0", Label: types.LabelFunction, ProjectID: "other",
		Properties: map[string]any{"name": "foo", "relativePath": "unrelated.ts", "content": "function foo() { return compute(result) }"},
	})
	idx.AddEdge(&types.Edge{
		Type: types.EdgeCalls, FromID: "proj:function:widget.ts:render:0", ToID: "proj:function:helpers.ts:compute:0", ProjectID: "proj",
	})
	idx.AddEdge(&types.Edge{
		Type: types.EdgeFileContains, FromID: "proj:file:widget.ts", ToID: "proj:function:widget.ts:render:0", ProjectID: "proj",
	})
	return idx
}

func TestRetrieve_BM25ModeFallsBackToLexicalWhenStoreDisconnected(t *testing.T) {
	r := New(nil, newTestIndex(), nil, nil)

	results := r.Retrieve(context.Background(), Request{
		Query: "compute result", ProjectID: "proj", Mode: ModeBM25, Limit: 10,
	})

	require.NotEmpty(t, results)
	assert.Equal(t, "render", results[0].Name)
	for _, res := range results {
		assert.Equal(t, types.Label("FUNCTION"), res.Type)
	}
}

func TestRetrieve_ExcludesOtherProjectNodesEvenWhenLexicallyRelevant(t *testing.T) {
	r := New(nil, newTestIndex(), nil, nil)

	results := r.Retrieve(context.Background(), Request{
		Query: "compute result", ProjectID: "proj", Mode: ModeBM25, Limit: 10,
	})

	for _, res := range results {
		assert.NotEqual(t, "foo", res.Name)
	}
}

func TestRetrieve_VectorModeWithNoEmbedderFallsBackToLexical(t *testing.T) {
	r := New(nil, newTestIndex(), nil, nil)

	results := r.Retrieve(context.Background(), Request{
		Query: "compute", ProjectID: "proj", Mode: ModeVector, Limit: 10,
	})

	assert.NotEmpty(t, results)
}

func TestRetrieve_GraphModeExpandsFromBM25Seeds(t *testing.T) {
	r := New(nil, newTestIndex(), nil, nil)

	results := r.Retrieve(context.Background(), Request{
		Query: "render", ProjectID: "proj", Mode: ModeGraph, Limit: 10,
	})

	ids := make([]string, len(results))
	for i, res := range results {
		ids[i] = res.ID
	}
	assert.Contains(t, ids, "proj:function:helpers.ts:compute:0")
}

func TestRetrieve_TypeFilterExcludesOtherLabels(t *testing.T) {
	r := New(nil, newTestIndex(), nil, nil)

	results := r.Retrieve(context.Background(), Request{
		Query: "widget", ProjectID: "proj", Mode: ModeBM25, Limit: 10,
		Types: []types.Label{types.LabelFile},
	})

	for _, res := range results {
		assert.Equal(t, types.LabelFile, res.Type)
	}
}

func TestRetrieve_RepeatedIdenticalQueryServesFromCache(t *testing.T) {
	r := New(nil, newTestIndex(), nil, nil)
	req := Request{Query: "compute result", ProjectID: "proj", Mode: ModeBM25, Limit: 10}

	first := r.Retrieve(context.Background(), req)
	r.Index.AddNode(&types.Node{
		ID: "proj:function:helpers.ts:compute:1", Label: types.LabelFunction, ProjectID: "proj",
		Properties: map[string]any{"name": "computeResult", "relativePath": "helpers.ts", "content": "function computeResult() { return compute(result) }"},
	})
	second := r.Retrieve(context.Background(), req)

	assert.Equal(t, first, second, "an identical request within the cache TTL should not re-run ranking against the just-added node")
}

func TestRetrieve_LimitIsClampedToMax(t *testing.T) {
	r := New(nil, newTestIndex(), nil, nil)

	results := r.Retrieve(context.Background(), Request{
		Query: "compute", ProjectID: "proj", Mode: ModeBM25, Limit: 1000,
	})
	assert.LessOrEqual(t, len(results), maxLimit)
}

func TestReciprocalRankFusion_CombinesRanksAcrossLists(t *testing.T) {
	lists := []rankedList{
		{source: "bm25", ids: []string{"a", "b", "c"}},
		{source: "vector", ids: []string{"b", "a"}},
	}

	fused := reciprocalRankFusion(lists, 60)

	byID := make(map[string]fusedResult)
	for _, f := range fused {
		byID[f.id] = f
	}

	assert.Greater(t, byID["a"].score, byID["c"].score)
	assert.Greater(t, byID["b"].score, byID["a"].score, "b ranks first in one list and second in the other, beating a which never ranks first")
	assert.ElementsMatch(t, []string{"bm25", "vector"}, byID["a"].sources)
}

func TestReciprocalRankFusion_TiesBreakByLexicographicID(t *testing.T) {
	lists := []rankedList{
		{source: "bm25", ids: []string{"zzz"}},
		{source: "vector", ids: []string{"aaa"}},
	}
	fused := reciprocalRankFusion(lists, 60)
	// both at rank 1 of one list each: equal scores, so id order decides.
	require.Len(t, fused, 2)
	assert.Equal(t, fused[0].score, fused[1].score)
	assert.Equal(t, "aaa", fused[0].id)
}

func TestFuseSeedIDs_DedupesAndTruncatesToLimit(t *testing.T) {
	vectorList := rankedList{ids: []string{"a", "b"}}
	bm25List := rankedList{ids: []string{"b", "c", "d"}}

	seeds := fuseSeedIDs(vectorList, bm25List, 3)
	assert.Equal(t, []string{"a", "b", "c"}, seeds)
}

func TestGraphExpansion_WeightsCallsHigherThanFileContains(t *testing.T) {
	idx := newTestIndex()
	r := New(nil, idx, nil, nil)

	list := r.graphExpansion([]string{"proj:function:widget.ts:render:0"}, 10)
	require.Contains(t, list.ids, "proj:function:helpers.ts:compute:0")
	// CALLS (0.9) to compute outranks the incoming FILE_CONTAINS (0.5) from the file.
	assert.Equal(t, []string{"proj:function:helpers.ts:compute:0", "proj:file:widget.ts"}, list.ids)
}

func TestHydrateAndFilter_DropsUnknownNodeIDs(t *testing.T) {
	r := New(nil, newTestIndex(), nil, nil)

	results := r.hydrateAndFilter([]fusedResult{
		{id: "proj:function:widget.ts:render:0", score: 1},
		{id: "does-not-exist", score: 2},
	}, "proj", nil)

	require.Len(t, results, 1)
	assert.Equal(t, "render", results[0].Name)
}
