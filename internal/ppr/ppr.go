// Package ppr implements seeded personalized PageRank over a bounded
// candidate edge set: a fixed iteration budget rather than a convergence
// check, chosen deliberately for predictable latency.
package ppr

import (
	"sort"

	"github.com/graphcode-dev/graphcode-server/internal/types"
)

const (
	maxCandidateEdges = 20000
	minIterations     = 1
	maxIterations     = 100
	defaultDamping    = 0.85
)

// CandidateEdge is one edge of the bounded candidate set the caller loads
// from the store, scoped to a project.
type CandidateEdge struct {
	Type types.EdgeType
	From string
	To   string
}

// NodeMeta is the cached metadata attached to a ranked result.
type NodeMeta struct {
	Type     types.Label
	FilePath string
	Name     string
}

// Request is the seeded-PPR input.
type Request struct {
	SeedIDs     []string
	EdgeWeights map[types.EdgeType]float64
	Damping     float64
	Iterations  int
	MaxResults  int
	Edges       []CandidateEdge
	Meta        map[string]NodeMeta
}

// Result is one ranked node.
type Result struct {
	ID    string
	Score float64
	Meta  NodeMeta
}

// Rank runs seeded PPR and returns nodes sorted by final rank, descending,
// truncated to Request.MaxResults. Empty SeedIDs yields an empty result
// without building any adjacency; the store-touching part is the caller's
// responsibility, not this package's.
func Rank(req Request) []Result {
	if len(req.SeedIDs) == 0 {
		return nil
	}

	damping := req.Damping
	if damping <= 0 {
		damping = defaultDamping
	}

	iterations := clamp(req.Iterations, minIterations, maxIterations)

	edges := req.Edges
	if len(edges) > maxCandidateEdges {
		edges = edges[:maxCandidateEdges]
	}

	nodes, outAdj, outWeightSum := buildAdjacency(edges, req.SeedIDs, req.EdgeWeights)

	seedSet := make(map[string]bool, len(req.SeedIDs))
	for _, id := range req.SeedIDs {
		seedSet[id] = true
	}

	personalization := make(map[string]float64, len(nodes))
	if len(seedSet) > 0 {
		p := 1.0 / float64(len(seedSet))
		for id := range nodes {
			if seedSet[id] {
				personalization[id] = p
			}
		}
	}

	rank := make(map[string]float64, len(nodes))
	for id := range nodes {
		rank[id] = personalization[id]
	}

	for i := 0; i < iterations; i++ {
		next := make(map[string]float64, len(nodes))
		for id := range nodes {
			next[id] = (1 - damping) * personalization[id]
		}

		for from, adj := range outAdj {
			sum := outWeightSum[from]
			if sum == 0 {
				continue
			}
			contribution := rank[from] / sum
			for to, w := range adj {
				next[to] += damping * contribution * w
			}
		}

		rank = next
	}

	results := make([]Result, 0, len(rank))
	for id, score := range rank {
		results = append(results, Result{
			ID:    id,
			Score: roundTo6(score),
			Meta:  req.Meta[id],
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	maxResults := req.MaxResults
	if maxResults <= 0 || maxResults > 500 {
		maxResults = 500
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	return results
}

// buildAdjacency builds the node set (seeds union endpoints) and weighted
// outgoing adjacency with per-source weight sums for normalization.
func buildAdjacency(edges []CandidateEdge, seedIDs []string, overrides map[types.EdgeType]float64) (
	nodes map[string]bool, outAdj map[string]map[string]float64, outWeightSum map[string]float64,
) {
	nodes = make(map[string]bool)
	outAdj = make(map[string]map[string]float64)
	outWeightSum = make(map[string]float64)

	for _, id := range seedIDs {
		nodes[id] = true
	}

	for _, e := range edges {
		nodes[e.From] = true
		nodes[e.To] = true

		w := WeightFor(overrides, e.Type)
		if outAdj[e.From] == nil {
			outAdj[e.From] = make(map[string]float64)
		}
		outAdj[e.From][e.To] += w
		outWeightSum[e.From] += w
	}

	return nodes, outAdj, outWeightSum
}

func clamp(v, lo, hi int) int {
	if v <= 0 {
		return 20 // default iteration count
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundTo6(v float64) float64 {
	const scale = 1e6
	return float64(int64(v*scale+sign(v)*0.5)) / scale
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
