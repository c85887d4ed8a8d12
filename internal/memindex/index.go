// Package memindex is a project-scoped in-memory mirror of the graph:
// good enough for hot-path queries when the store is offline, and the
// comparison point the drift detector (C17) runs against.
package memindex

import (
	"encoding/json"
	"sync"

	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// Index holds byId/byType/outgoing/incoming/byRelType maps over a single
// project's nodes and edges, guarded by one RWMutex. A sync.Map-per-field
// approach would trade simplicity for lock-free reads, but this index's
// write pattern (the orchestrator's sync step is the writer) makes a single
// mutex the simpler choice. No lock above this mutex serializes builds: two
// orchestrator runs for the same project can interleave their writes here.
type Index struct {
	mu sync.RWMutex

	byID      map[string]*types.Node
	byType    map[types.Label][]*types.Node
	outgoing  map[string][]*types.Edge
	incoming  map[string][]*types.Edge
	byRelType map[types.EdgeType][]*types.Edge

	nodeCount int
	edgeCount int
}

func New() *Index {
	return &Index{
		byID:      make(map[string]*types.Node),
		byType:    make(map[types.Label][]*types.Node),
		outgoing:  make(map[string][]*types.Edge),
		incoming:  make(map[string][]*types.Edge),
		byRelType: make(map[types.EdgeType][]*types.Edge),
	}
}

// AddNode is idempotent: re-adding the same id is a no-op.
func (idx *Index) AddNode(n *types.Node) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.byID[n.ID]; exists {
		return
	}
	idx.byID[n.ID] = n
	idx.byType[n.Label] = append(idx.byType[n.Label], n)
	idx.nodeCount++
}

// AddEdge records both the outgoing and incoming adjacency for e.
func (idx *Index) AddEdge(e *types.Edge) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, existing := range idx.outgoing[e.FromID] {
		if existing.ToID == e.ToID && existing.Type == e.Type {
			return
		}
	}

	idx.outgoing[e.FromID] = append(idx.outgoing[e.FromID], e)
	idx.incoming[e.ToID] = append(idx.incoming[e.ToID], e)
	idx.byRelType[e.Type] = append(idx.byRelType[e.Type], e)
	idx.edgeCount++
}

func (idx *Index) GetNode(id string) (*types.Node, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n, ok := idx.byID[id]
	return n, ok
}

func (idx *Index) NodesByType(label types.Label) []*types.Node {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]*types.Node, len(idx.byType[label]))
	copy(out, idx.byType[label])
	return out
}

func (idx *Index) Outgoing(id string) []*types.Edge {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]*types.Edge, len(idx.outgoing[id]))
	copy(out, idx.outgoing[id])
	return out
}

func (idx *Index) Incoming(id string) []*types.Edge {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]*types.Edge, len(idx.incoming[id]))
	copy(out, idx.incoming[id])
	return out
}

func (idx *Index) EdgesByType(t types.EdgeType) []*types.Edge {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]*types.Edge, len(idx.byRelType[t]))
	copy(out, idx.byRelType[t])
	return out
}

// Counts reports current node and edge totals (used by the drift detector).
func (idx *Index) Counts() (nodes, edges int) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.nodeCount, idx.edgeCount
}

// CountsByLabel reports the per-label node count, for a finer-grained drift
// comparison than the aggregate Counts.
func (idx *Index) CountsByLabel() map[types.Label]int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[types.Label]int, len(idx.byType))
	for label, nodes := range idx.byType {
		out[label] = len(nodes)
	}
	return out
}

// SyncFrom merges other's nodes and edges into idx; duplicates (by id, or
// by from/to/type for edges) are silently skipped, matching AddNode/AddEdge
// semantics.
func (idx *Index) SyncFrom(other *Index) {
	other.mu.RLock()
	nodes := make([]*types.Node, 0, len(other.byID))
	for _, n := range other.byID {
		nodes = append(nodes, n)
	}
	edges := make([]*types.Edge, 0, other.edgeCount)
	for _, es := range other.outgoing {
		edges = append(edges, es...)
	}
	other.mu.RUnlock()

	for _, n := range nodes {
		idx.AddNode(n)
	}
	for _, e := range edges {
		idx.AddEdge(e)
	}
}

// snapshot is the JSON export shape: by-type counts plus aggregate stats,
// for debug dumps. The drift detector reads the same figures through
// CountsByLabel and Counts, not through Export.
type snapshot struct {
	ByType map[types.Label]int `json:"byType"`
	Nodes  int                 `json:"nodes"`
	Edges  int                 `json:"edges"`
}

// Export returns a JSON snapshot of the by-type map and statistics.
func (idx *Index) Export() ([]byte, error) {
	idx.mu.RLock()
	byType := make(map[types.Label]int, len(idx.byType))
	for label, nodes := range idx.byType {
		byType[label] = len(nodes)
	}
	s := snapshot{ByType: byType, Nodes: idx.nodeCount, Edges: idx.edgeCount}
	idx.mu.RUnlock()

	return json.Marshal(s)
}
