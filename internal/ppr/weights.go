package ppr

import "github.com/graphcode-dev/graphcode-server/internal/types"

// DefaultEdgeWeights is the weighting scheme shared with the hybrid
// retriever's graph expansion: CALLS counts most, a catch-all default
// covers edge types neither component names explicitly.
var DefaultEdgeWeights = map[types.EdgeType]float64{
	types.EdgeCalls:           0.9,
	types.EdgeFileImports:     0.7,
	types.EdgeImportReference: 0.7,
	types.EdgeFileContains:    0.5,
	types.EdgeFolderContains:  0.5,
	types.EdgeCommunityHas:    0.5,
	types.EdgeTestSuiteTests:  0.4,
	types.EdgeClaimAppliesTo:  0.4,
	types.EdgeEpisodeInvolves: 0.3,
}

const defaultEdgeWeight = 0.2

// WeightFor resolves an edge's weight from an override map, falling back to
// the package default and finally the universal default weight.
func WeightFor(overrides map[types.EdgeType]float64, t types.EdgeType) float64 {
	if overrides != nil {
		if w, ok := overrides[t]; ok {
			return w
		}
	}
	if w, ok := DefaultEdgeWeights[t]; ok {
		return w
	}
	return defaultEdgeWeight
}
