// Package retriever implements the hybrid retrieval operation (C8): lexical
// (BM25), vector, and graph-expansion rankings fused with Reciprocal Rank
// Fusion, each with a documented fallback path when its backend is absent
// or errors.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/graphcode-dev/graphcode-server/internal/cache"
	"github.com/graphcode-dev/graphcode-server/internal/graphstore"
	"github.com/graphcode-dev/graphcode-server/internal/memindex"
	"github.com/graphcode-dev/graphcode-server/internal/ppr"
	"github.com/graphcode-dev/graphcode-server/internal/types"
	"github.com/graphcode-dev/graphcode-server/internal/vectorstore"
)

// resultCacheTTL bounds how long a fused result list is reused for an
// identical query before the ranking signals are consulted again.
const resultCacheTTL = 30 * time.Second

// Mode selects which ranking signal(s) feed the final result.
type Mode string

const (
	ModeVector Mode = "vector"
	ModeBM25   Mode = "bm25"
	ModeGraph  Mode = "graph"
	ModeHybrid Mode = "hybrid"

	defaultLimit = 10
	maxLimit     = 100
	defaultRRFK  = 60
)

// lexicalFallbackLabels is the node set the in-memory token-overlap scanner
// covers when neither the native BM25 index nor the vector backend is
// available — FUNCTION/CLASS/FILE, per the spec's bm25 fallback scope; the
// vector fallback reuses the same scope rather than inventing a second one.
var lexicalFallbackLabels = []types.Label{types.LabelFunction, types.LabelClass, types.LabelFile}

// Embedder turns a query string into the same vector space the indexed
// points live in. A nil Embedder means the vector backend is treated as
// absent: vectorSearch falls through to the lexical list tagged source
// "vector", per the spec's documented fall-through.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Request is one retrieve() call.
type Request struct {
	Query     string
	ProjectID string
	Limit     int
	Types     []types.Label
	Mode      Mode
	RRFK      int
}

// Result is one fused, ranked hit, carrying enough cached metadata that
// most callers don't need a follow-up node lookup.
type Result struct {
	ID       string
	Score    float64
	Sources  []string
	Type     types.Label
	Name     string
	FilePath string
}

// Retriever fuses BM25, vector, and graph-expansion rankings. Store and
// Vector may both be nil or disconnected — every list-builder degrades to
// an in-memory fallback rather than requiring either backend.
type Retriever struct {
	Store  *graphstore.Client
	Index  *memindex.Index
	Vector *vectorstore.Client
	Embed  Embedder

	resultCache *cache.ResultCache
}

func New(store *graphstore.Client, index *memindex.Index, vector *vectorstore.Client, embed Embedder) *Retriever {
	return &Retriever{
		Store:  store,
		Index:  index,
		Vector: vector,
		Embed:  embed,
		resultCache: cache.NewResultCache(cache.CacheConfig{
			MaxEntries: 200,
			TTL:        resultCacheTTL,
		}),
	}
}

// rankedList is one ordered id list tagged with the signal it came from —
// the unit Reciprocal Rank Fusion combines.
type rankedList struct {
	source string
	ids    []string
}

// Retrieve runs the requested mode and returns fused, project- and
// type-filtered results truncated to the request's limit.
func (r *Retriever) Retrieve(ctx context.Context, req Request) []Result {
	limit := clampLimit(req.Limit)
	rrfK := req.RRFK
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeHybrid
	}

	cacheKey := resultCacheKey(req, limit, mode, rrfK)
	if cached := r.resultCache.Get(cacheKey); cached != nil {
		return cached.([]Result)
	}
	results := r.retrieve(ctx, req, limit, mode, rrfK)
	r.resultCache.Put(cacheKey, results)
	return results
}

func resultCacheKey(req Request, limit int, mode Mode, rrfK int) string {
	return fmt.Sprintf("%s|%s|%s|%d|%d|%v", req.ProjectID, mode, req.Query, limit, rrfK, req.Types)
}

func (r *Retriever) retrieve(ctx context.Context, req Request, limit int, mode Mode, rrfK int) []Result {
	var lists []rankedList
	switch mode {
	case ModeVector:
		lists = []rankedList{r.vectorSearch(ctx, req, limit)}
	case ModeBM25:
		lists = []rankedList{r.bm25Search(ctx, req, limit)}
	case ModeGraph:
		// Graph mode has no query-derived seed of its own; it seeds
		// expansion from the lexical ranking, same as hybrid's seed
		// selection but using bm25 alone.
		seeds := r.bm25Search(ctx, req, limit).ids
		lists = []rankedList{r.graphExpansion(seeds, limit)}
	default:
		vectorList := r.vectorSearch(ctx, req, limit)
		bm25List := r.bm25Search(ctx, req, limit)
		seeds := fuseSeedIDs(vectorList, bm25List, limit)
		graphList := r.graphExpansion(seeds, limit)
		lists = []rankedList{vectorList, bm25List, graphList}
	}

	fused := reciprocalRankFusion(lists, rrfK)
	results := r.hydrateAndFilter(fused, req.ProjectID, req.Types)

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// bm25Search tries the store's native full-text indices first; on success
// the list is tagged native, on any failure (including a disconnected
// store) it falls back to the in-memory lexical scanner.
func (r *Retriever) bm25Search(ctx context.Context, req Request, limit int) rankedList {
	if r.Store != nil && r.Store.IsConnected() {
		if ids, err := r.nativeBM25(ctx, req, limit); err == nil {
			return rankedList{source: "bm25:native", ids: ids}
		}
	}
	return rankedList{source: "bm25:lexical_fallback", ids: r.lexicalFallback(req, limit)}
}

// nativeBM25 queries both the symbol and docs full-text indices — the
// combined label scope {FUNCTION, CLASS, FILE, SECTION} the spec names —
// and merges by score since the two indices are separate Cypher calls.
func (r *Retriever) nativeBM25(ctx context.Context, req Request, limit int) ([]string, error) {
	type scored struct {
		id    string
		score float64
	}
	var all []scored

	for _, indexName := range []string{"symbol_index", "docs_index"} {
		stmt := types.Statement{
			Query: "CALL db.index.fulltext.queryNodes($indexName, $query) YIELD node, score " +
				"WHERE node.projectId = $projectId RETURN node.id AS id, score AS score LIMIT $limit",
			Params: map[string]any{
				"indexName": indexName,
				"query":     req.Query,
				"projectId": req.ProjectID,
				"limit":     int64(limit),
			},
		}
		qr := r.Store.ExecuteQuery(ctx, stmt)
		if qr.Error != nil {
			return nil, qr.Error
		}
		for _, row := range qr.Rows {
			id, ok := row["id"].(string)
			if !ok {
				continue
			}
			score, _ := row["score"].(float64)
			all = append(all, scored{id: id, score: score})
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].id < all[j].id
	})
	if len(all) > limit {
		all = all[:limit]
	}

	ids := make([]string, len(all))
	for i, s := range all {
		ids[i] = s.id
	}
	return ids, nil
}

// vectorSearch embeds the query and searches every collection; a nil
// Embedder/Vector client or any search error is treated as "backend
// absent" and falls through to the lexical list, tagged source vector per
// the spec's documented fall-through.
func (r *Retriever) vectorSearch(ctx context.Context, req Request, limit int) rankedList {
	if r.Vector != nil && r.Embed != nil {
		if vec, err := r.Embed.Embed(ctx, req.Query); err == nil {
			if ids, err := r.nativeVectorSearch(ctx, req, vec, limit); err == nil {
				return rankedList{source: "vector:native", ids: ids}
			}
		}
	}
	return rankedList{source: "vector:lexical_fallback", ids: r.lexicalFallback(req, limit)}
}

func (r *Retriever) nativeVectorSearch(ctx context.Context, req Request, vec []float32, limit int) ([]string, error) {
	kinds := []vectorstore.Kind{vectorstore.KindFunction, vectorstore.KindClass, vectorstore.KindFile, vectorstore.KindSection}

	type scored struct {
		id    string
		score float64
	}
	var all []scored

	for _, kind := range kinds {
		hits, err := r.Vector.Search(ctx, kind, req.ProjectID, vec, limit)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			all = append(all, scored{id: h.NodeID, score: h.Score})
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].id < all[j].id
	})
	if len(all) > limit {
		all = all[:limit]
	}

	ids := make([]string, len(all))
	for i, s := range all {
		ids[i] = s.id
	}
	return ids, nil
}

// lexicalFallback builds an ephemeral BM25 scorer over the in-memory
// index's FUNCTION/CLASS/FILE nodes for the request's project, scoped fresh
// per call since the index mutates between builds.
func (r *Retriever) lexicalFallback(req Request, limit int) []string {
	if r.Index == nil {
		return nil
	}

	scorer := graphstore.NewLexicalScorer()
	for _, label := range lexicalFallbackLabels {
		for _, n := range r.Index.NodesByType(label) {
			if n.ProjectID != req.ProjectID {
				continue
			}
			scorer.Index(n.ID, lexicalText(n))
		}
	}

	return topNByScore(scorer.Score(req.Query), limit)
}

func lexicalText(n *types.Node) string {
	var parts []string
	if name, ok := n.Properties["name"].(string); ok {
		parts = append(parts, name)
	}
	if rel, ok := n.Properties["relativePath"].(string); ok {
		parts = append(parts, rel)
	}
	if content, ok := n.Properties["content"].(string); ok {
		parts = append(parts, content)
	}
	return strings.Join(parts, " ")
}

// graphExpansion sums weighted degrees over incident edges, both
// directions, for every seed — using the same default weight table
// internal/ppr uses for PPR, since the spec defines them identically.
func (r *Retriever) graphExpansion(seeds []string, limit int) rankedList {
	if len(seeds) == 0 || r.Index == nil {
		return rankedList{source: "graph"}
	}

	scores := make(map[string]float64)
	for _, seed := range seeds {
		for _, e := range r.Index.Outgoing(seed) {
			scores[e.ToID] += ppr.WeightFor(nil, e.Type)
		}
		for _, e := range r.Index.Incoming(seed) {
			scores[e.FromID] += ppr.WeightFor(nil, e.Type)
		}
	}

	return rankedList{source: "graph", ids: topNByScore(scores, limit)}
}

// fuseSeedIDs takes the first limit distinct ids across vectorList then
// bm25List, the hybrid mode's seed selection for graph expansion.
func fuseSeedIDs(vectorList, bm25List rankedList, limit int) []string {
	seeds := make([]string, 0, limit)
	seen := make(map[string]bool, limit)
	for _, ids := range [][]string{vectorList.ids, bm25List.ids} {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			seeds = append(seeds, id)
			if len(seeds) >= limit {
				return seeds
			}
		}
	}
	return seeds
}

// topNByScore sorts a score map descending (ties broken lexicographically
// by id) and truncates to n.
func topNByScore(scores map[string]float64, n int) []string {
	type idScore struct {
		id    string
		score float64
	}
	list := make([]idScore, 0, len(scores))
	for id, s := range scores {
		list = append(list, idScore{id, s})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].id < list[j].id
	})
	if len(list) > n {
		list = list[:n]
	}

	ids := make([]string, len(list))
	for i, e := range list {
		ids[i] = e.id
	}
	return ids
}

// fusedResult is one id after Reciprocal Rank Fusion, before metadata
// hydration and project/type filtering.
type fusedResult struct {
	id      string
	score   float64
	sources []string
}

// reciprocalRankFusion computes score(id) = Σ_list 1/(rrfK + rank_list(id))
// over 1-indexed ranks, breaking ties by descending score then id.
func reciprocalRankFusion(lists []rankedList, rrfK int) []fusedResult {
	agg := make(map[string]*fusedResult)
	var order []string

	for _, list := range lists {
		for i, id := range list.ids {
			e, ok := agg[id]
			if !ok {
				e = &fusedResult{id: id}
				agg[id] = e
				order = append(order, id)
			}
			rank := i + 1
			e.score += 1.0 / float64(rrfK+rank)
			e.sources = append(e.sources, list.source)
		}
	}

	fused := make([]fusedResult, 0, len(order))
	for _, id := range order {
		fused = append(fused, *agg[id])
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].id < fused[j].id
	})
	return fused
}

// hydrateAndFilter attaches cached node metadata and applies the post-fusion
// project/type filters; an id whose node is missing or belongs to a
// different project is dropped rather than surfaced with blank metadata.
func (r *Retriever) hydrateAndFilter(fused []fusedResult, projectID string, typeFilter []types.Label) []Result {
	typeSet := make(map[types.Label]bool, len(typeFilter))
	for _, t := range typeFilter {
		typeSet[t] = true
	}

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		if r.Index == nil {
			continue
		}
		n, ok := r.Index.GetNode(f.id)
		if !ok || n.ProjectID != projectID {
			continue
		}
		if len(typeSet) > 0 && !typeSet[n.Label] {
			continue
		}

		res := Result{ID: f.id, Score: f.score, Sources: dedupe(f.sources), Type: n.Label}
		if name, ok := n.Properties["name"].(string); ok {
			res.Name = name
		}
		if rel, ok := n.Properties["relativePath"].(string); ok {
			res.FilePath = rel
		}
		results = append(results, res)
	}
	return results
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
