// Package drift implements the drift detector (C17): it compares the
// in-memory index against live store counts and the vector store's point
// count against the number of indexed symbols, surfacing recommendations
// without ever acting on them itself.
package drift

import (
	"context"
	"fmt"

	"github.com/graphcode-dev/graphcode-server/internal/graphstore"
	"github.com/graphcode-dev/graphcode-server/internal/memindex"
	"github.com/graphcode-dev/graphcode-server/internal/types"
	"github.com/graphcode-dev/graphcode-server/internal/vectorstore"
)

// indexableLabels are the labels the BM25/vector pipeline actually
// indexes — the same {FUNCTION, CLASS, FILE, SECTION} scope
// internal/graphstore's symbol_index covers, so "indexed symbols" means
// the same thing here as it does to the retriever.
var indexableLabels = []types.Label{types.LabelFunction, types.LabelClass, types.LabelFile, types.LabelSection}

// driftThreshold is the absolute node-count difference past which the
// in-memory index and the store are considered drifted, per the spec's
// literal `|cachedNodes - storeIndexableNodes| > 3`.
const driftThreshold = 3

// Report is the drift detector's output: counts plus two independent
// drift booleans and human-readable recommendations. Nothing here
// triggers work on its own.
type Report struct {
	ProjectID            string
	CachedNodeCounts     map[types.Label]int
	CachedEdgeCount      int
	StoreNodeCounts      map[types.Label]int
	StoreIndexableTotal  int
	CachedIndexableTotal int
	VectorCount          int
	NodeDrift            bool
	VectorDrift          bool
	Recommendations      []string
}

// Detector compares an in-memory index against a graph store and
// (optionally) a vector store.
type Detector struct {
	Store  *graphstore.Client
	Vector *vectorstore.Client
}

func New(store *graphstore.Client, vector *vectorstore.Client) *Detector {
	return &Detector{Store: store, Vector: vector}
}

// Detect builds a Report for projectID using the given in-memory index as
// the "cached" side of the comparison.
func (d *Detector) Detect(ctx context.Context, index *memindex.Index, projectID string) *Report {
	cachedCounts := index.CountsByLabel()
	_, cachedEdges := index.Counts()

	report := &Report{
		ProjectID:        projectID,
		CachedNodeCounts: cachedCounts,
		CachedEdgeCount:  cachedEdges,
		StoreNodeCounts:  map[types.Label]int{},
	}

	for _, label := range indexableLabels {
		report.CachedIndexableTotal += cachedCounts[label]
	}

	storeReachable := d.Store != nil && d.Store.IsConnected()
	if storeReachable {
		for _, label := range indexableLabels {
			count, err := d.countLiveNodes(ctx, label, projectID)
			if err != nil {
				report.Recommendations = append(report.Recommendations,
					fmt.Sprintf("could not query live count for %s: %v — drift comparison for this label skipped", label, err))
				continue
			}
			report.StoreNodeCounts[label] = count
			report.StoreIndexableTotal += count
		}

		diff := report.CachedIndexableTotal - report.StoreIndexableTotal
		if diff < 0 {
			diff = -diff
		}
		report.NodeDrift = diff > driftThreshold
		if report.NodeDrift {
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("in-memory index has %d indexable nodes, store has %d (diff %d > %d) — consider a full rebuild",
					report.CachedIndexableTotal, report.StoreIndexableTotal, diff, driftThreshold))
		}
	} else {
		report.Recommendations = append(report.Recommendations, "graph store is not connected — node drift comparison skipped")
	}

	if d.Vector != nil && d.Vector.IsConnected() {
		count, err := d.Vector.Count(ctx, projectID)
		if err != nil {
			report.Recommendations = append(report.Recommendations, fmt.Sprintf("could not query vector point count: %v", err))
		} else {
			report.VectorCount = int(count)
			report.VectorDrift = report.VectorCount < report.CachedIndexableTotal
			if report.VectorDrift {
				report.Recommendations = append(report.Recommendations,
					fmt.Sprintf("vector store has %d points but %d symbols are indexed — consider re-embedding", report.VectorCount, report.CachedIndexableTotal))
			}
		}
	}

	return report
}

func (d *Detector) countLiveNodes(ctx context.Context, label types.Label, projectID string) (int, error) {
	result := d.Store.ExecuteQuery(ctx, types.Statement{
		Query: fmt.Sprintf("MATCH (n:%s {projectId: $projectId}) WHERE n.validTo IS NULL RETURN count(n) AS c", label),
		Params: map[string]any{"projectId": projectID},
	})
	if result.Error != nil {
		return 0, result.Error
	}
	if len(result.Rows) == 0 {
		return 0, nil
	}
	switch c := result.Rows[0]["c"].(type) {
	case int64:
		return int(c), nil
	case int:
		return c, nil
	default:
		return 0, fmt.Errorf("unexpected count result type %T", c)
	}
}
