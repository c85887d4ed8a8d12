package docsengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/graphcode-dev/graphcode-server/internal/graphstore"
	"github.com/graphcode-dev/graphcode-server/internal/memindex"
	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// DocHit is one SECTION matched by a docs query.
type DocHit struct {
	ID           string
	Heading      string
	RelativePath string
	Score        float64
}

// SearchDocs is served from the store's docs_index full-text index when a
// connected store is available, falling back to an in-memory lexical scan
// over SECTION nodes otherwise.
func SearchDocs(ctx context.Context, store *graphstore.Client, index *memindex.Index, query, projectID string, limit int) ([]DocHit, error) {
	if limit <= 0 {
		limit = 10
	}

	if store != nil && store.IsConnected() {
		hits, err := nativeSearchDocs(ctx, store, query, projectID, limit)
		if err == nil {
			return hits, nil
		}
	}

	return scanSections(index, projectID, query, limit), nil
}

func nativeSearchDocs(ctx context.Context, store *graphstore.Client, query, projectID string, limit int) ([]DocHit, error) {
	result := store.ExecuteQuery(ctx, types.Statement{
		Query: `CALL db.index.fulltext.queryNodes("docs_index", $query) YIELD node, score
WHERE node.projectId = $projectId
RETURN node.id AS id, node.heading AS heading, node.relativePath AS relativePath, score
ORDER BY score DESC LIMIT $limit`,
		Params: map[string]any{"query": query, "projectId": projectID, "limit": limit},
	})
	if result.Error != nil {
		return nil, result.Error
	}

	hits := make([]DocHit, 0, len(result.Rows))
	for _, row := range result.Rows {
		hits = append(hits, DocHit{
			ID:           fmt.Sprint(row["id"]),
			Heading:      fmt.Sprint(row["heading"]),
			RelativePath: fmt.Sprint(row["relativePath"]),
			Score:        toFloat64(row["score"]),
		})
	}
	return hits, nil
}

func scanSections(index *memindex.Index, projectID, query string, limit int) []DocHit {
	scorer := graphstore.NewLexicalScorer()
	nodes := index.NodesByType(types.LabelSection)
	byID := make(map[string]*types.Node, len(nodes))

	for _, n := range nodes {
		if n.ProjectID != projectID {
			continue
		}
		byID[n.ID] = n
		scorer.Index(n.ID, sectionText(n))
	}

	scores := scorer.Score(query)
	hits := make([]DocHit, 0, len(scores))
	for id, score := range scores {
		n := byID[id]
		hits = append(hits, DocHit{
			ID:           n.ID,
			Heading:      fmt.Sprint(n.Properties["heading"]),
			RelativePath: fmt.Sprint(n.Properties["relativePath"]),
			Score:        score,
		})
	}

	sortHitsDescending(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// GetDocsBySymbol finds sections whose DOC_DESCRIBES edges (or, lacking a
// store connection, whose content) reference symbol.
func GetDocsBySymbol(ctx context.Context, store *graphstore.Client, index *memindex.Index, symbol, projectID string, limit int) ([]DocHit, error) {
	if limit <= 0 {
		limit = 10
	}

	if store != nil && store.IsConnected() {
		result := store.ExecuteQuery(ctx, types.Statement{
			Query: `MATCH (s:SECTION)-[:DOC_DESCRIBES]->(e)
WHERE (e.name = $symbol OR e.relativePath = $symbol)
AND s.projectId = $projectId
RETURN s.id AS id, s.heading AS heading, s.relativePath AS relativePath LIMIT $limit`,
			Params: map[string]any{"symbol": symbol, "projectId": projectID, "limit": limit},
		})
		if result.Error == nil {
			hits := make([]DocHit, 0, len(result.Rows))
			for _, row := range result.Rows {
				hits = append(hits, DocHit{
					ID:           fmt.Sprint(row["id"]),
					Heading:      fmt.Sprint(row["heading"]),
					RelativePath: fmt.Sprint(row["relativePath"]),
				})
			}
			return hits, nil
		}
	}

	return scanSections(index, projectID, symbol, limit), nil
}

func sectionText(n *types.Node) string {
	var b strings.Builder
	b.WriteString(fmt.Sprint(n.Properties["heading"]))
	b.WriteByte(' ')
	b.WriteString(fmt.Sprint(n.Properties["content"]))
	return b.String()
}

func sortHitsDescending(hits []DocHit) {
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].Score > hits[i].Score {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
