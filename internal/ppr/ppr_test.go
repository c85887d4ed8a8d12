package ppr

import (
	"testing"

	"github.com/graphcode-dev/graphcode-server/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRank_EmptySeedsYieldsEmptyResult(t *testing.T) {
	results := Rank(Request{Edges: []CandidateEdge{{From: "a", To: "b"}}})
	assert.Empty(t, results)
}

func TestRank_DirectNeighborOutranksDistantNode(t *testing.T) {
	edges := []CandidateEdge{
		{Type: types.EdgeCalls, From: "seed", To: "near"},
		{Type: types.EdgeCalls, From: "near", To: "far"},
	}

	results := Rank(Request{
		SeedIDs:    []string{"seed"},
		Iterations: 20,
		Edges:      edges,
	})

	byID := make(map[string]Result)
	for _, r := range results {
		byID[r.ID] = r
	}

	require.Contains(t, byID, "near")
	require.Contains(t, byID, "far")
	assert.Greater(t, byID["near"].Score, byID["far"].Score)
}

func TestRank_TruncatesToMaxResults(t *testing.T) {
	edges := make([]CandidateEdge, 0, 10)
	for i := 0; i < 10; i++ {
		edges = append(edges, CandidateEdge{Type: types.EdgeCalls, From: "seed", To: string(rune('a' + i))})
	}

	results := Rank(Request{SeedIDs: []string{"seed"}, Iterations: 5, MaxResults: 3, Edges: edges})
	assert.Len(t, results, 3)
}

func TestRank_IterationsClampToRange(t *testing.T) {
	edges := []CandidateEdge{{Type: types.EdgeCalls, From: "seed", To: "a"}}

	results := Rank(Request{SeedIDs: []string{"seed"}, Iterations: 1000, Edges: edges})
	assert.NotEmpty(t, results)
}

func TestRank_TiesBreakByLexicographicID(t *testing.T) {
	edges := []CandidateEdge{
		{Type: types.EdgeCalls, From: "seed", To: "zzz"},
		{Type: types.EdgeCalls, From: "seed", To: "aaa"},
	}

	results := Rank(Request{SeedIDs: []string{"seed"}, Iterations: 1, Edges: edges})
	require.Len(t, results, 3) // seed, zzz, aaa

	var aaaIdx, zzzIdx int
	for i, r := range results {
		if r.ID == "aaa" {
			aaaIdx = i
		}
		if r.ID == "zzz" {
			zzzIdx = i
		}
	}
	assert.Less(t, aaaIdx, zzzIdx)
}
