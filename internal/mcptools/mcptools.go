// Package mcptools registers every operation in the system as an MCP tool:
// retrieval, build, claim coordination, episodic memory, drift detection,
// docs search, and project-context resolution, each backed by the package
// that actually implements it rather than by logic living in this layer.
package mcptools

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/graphcode-dev/graphcode-server/internal/coordination"
	"github.com/graphcode-dev/graphcode-server/internal/drift"
	"github.com/graphcode-dev/graphcode-server/internal/graphstore"
	"github.com/graphcode-dev/graphcode-server/internal/memindex"
	"github.com/graphcode-dev/graphcode-server/internal/memory"
	"github.com/graphcode-dev/graphcode-server/internal/orchestrator"
	"github.com/graphcode-dev/graphcode-server/internal/retriever"
	"github.com/graphcode-dev/graphcode-server/internal/session"
)

// Deps is every collaborator a tool handler may call into. Store and
// Vector (reachable indirectly through Retriever/Orchestrator/Drift) may
// be disconnected — each collaborator already degrades gracefully, so
// nothing here needs a nil-ness check beyond what those packages do
// themselves.
type Deps struct {
	Sessions     *session.Manager
	Orchestrator *orchestrator.Orchestrator
	Retriever    *retriever.Retriever
	Coordination *coordination.Manager
	Memory       *memory.Manager
	Drift        *drift.Detector
	Store        *graphstore.Client
	Index        *memindex.Index
}

// Server wraps the MCP SDK server with the tool set this module exposes.
type Server struct {
	mcp  *mcp.Server
	deps *Deps
}

// NewServer builds the MCP server and registers every tool against deps.
func NewServer(name, version string, deps *Deps) *Server {
	s := &Server{
		mcp:  mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		deps: deps,
	}
	s.registerTools()
	return s
}

// Underlying returns the wrapped SDK server, e.g. for Run(ctx, transport).
func (s *Server) Underlying() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "resolve_context",
		Description: "Resolve and activate the project context (workspaceRoot, sourceDir, projectId) a call should run against, merging explicit overrides over the currently active session over environment defaults.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"workspaceRoot": {Type: "string", Description: "Absolute or relative path to the project root"},
				"sourceDir":     {Type: "string", Description: "Source directory relative to workspaceRoot, default \"src\""},
				"projectId":     {Type: "string", Description: "Explicit project id override, default basename(workspaceRoot)"},
				"startWatcher":  {Type: "boolean", Description: "Start a filesystem watcher bound to the resolved sourceDir"},
				"debounceMs":    {Type: "integer", Description: "Watcher debounce window in milliseconds"},
			},
		},
	}, s.handleResolveContext)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "adapt_workspace_for_runtime",
		Description: "Adapt a resolved context's workspaceRoot to a container/runtime mount root when the original path is unreachable, reporting whether a fallback was used.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"workspaceRoot": {Type: "string", Description: "workspaceRoot to adapt"},
				"sourceDir":     {Type: "string"},
				"projectId":     {Type: "string"},
				"allowFallback": {Type: "boolean", Description: "Whether a mount-root fallback is permitted"},
				"mountRoot":     {Type: "string", Description: "Runtime mount root to try if workspaceRoot is unreachable"},
			},
			Required: []string{"workspaceRoot", "mountRoot"},
		},
	}, s.handleAdaptWorkspaceForRuntime)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "retrieve",
		Description: "Hybrid retrieval over the project graph: fuses BM25, vector, and graph-expansion rankings with Reciprocal Rank Fusion. Falls back to in-memory lexical scans when the graph/vector backends are absent.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query":     {Type: "string", Description: "Free-text query"},
				"projectId": {Type: "string"},
				"limit":     {Type: "integer", Description: "Max results, default 10, capped at 100"},
				"mode":      {Type: "string", Description: "One of vector, bm25, graph, hybrid (default)"},
				"types": {Type: "array", Items: &jsonschema.Schema{Type: "string"},
					Description: "Restrict results to these node labels, e.g. [\"FUNCTION\",\"CLASS\"]"},
			},
			Required: []string{"query", "projectId"},
		},
	}, s.handleRetrieve)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "rebuild",
		Description: "Run one build transaction: discover source files, parse changed ones, build/derive graph statements, execute them, index docs, and reconcile the in-memory index.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"workspaceRoot": {Type: "string"},
				"projectId":     {Type: "string"},
				"sourceDir":     {Type: "string"},
				"mode":          {Type: "string", Description: "full or incremental (default)"},
				"changedFiles":  {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
				"indexDocs":     {Type: "boolean"},
			},
			Required: []string{"workspaceRoot", "projectId"},
		},
	}, s.handleRebuild)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "claim",
		Description: "Claim exclusive agent ownership of a target (file, function, task) within a project; fails with the existing claim when another agent already holds one for the same target.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"projectId": {Type: "string"},
				"agentId":   {Type: "string"},
				"targetId":  {Type: "string"},
				"claimType": {Type: "string", Description: "One of file, function, task, feature"},
				"intent":    {Type: "string", Description: "Free-text description of what the agent intends to do with the target"},
				"taskId":    {Type: "string"},
				"sessionId": {Type: "string"},
			},
			Required: []string{"projectId", "agentId", "targetId", "claimType"},
		},
	}, s.handleClaim)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "release_claim",
		Description: "Release a previously acquired claim, recording its outcome (success, failure, partial).",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"claimId": {Type: "string"},
				"outcome": {Type: "string"},
			},
			Required: []string{"claimId", "outcome"},
		},
	}, s.handleReleaseClaim)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "claim_status",
		Description: "Look up one claim by id.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"claimId": {Type: "string"}},
			Required:   []string{"claimId"},
		},
	}, s.handleClaimStatus)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "claim_overview",
		Description: "List every active claim for a project.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"projectId": {Type: "string"}},
			Required:   []string{"projectId"},
		},
	}, s.handleClaimOverview)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "invalidate_stale_claims",
		Description: "Invalidate every active claim in a project whose target no longer exists in the current in-memory index (typically called after a rebuild), returning how many were invalidated.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"projectId": {Type: "string"}},
			Required:   []string{"projectId"},
		},
	}, s.handleInvalidateStaleClaims)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "memory_add",
		Description: "Record one episodic memory (OBSERVATION, DECISION, EDIT, TEST_RESULT, ERROR, REFLECTION, LEARNING). DECISION episodes require metadata.rationale.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"projectId": {Type: "string"},
				"type":      {Type: "string"},
				"content":   {Type: "string"},
				"outcome":   {Type: "string", Description: "success, failure, or partial"},
				"entities":  {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
				"sensitive": {Type: "boolean"},
				"metadata":  {Type: "object", Description: "Arbitrary key/value metadata; DECISION requires a rationale key"},
				"agentId":   {Type: "string"},
				"taskId":    {Type: "string"},
				"sessionId": {Type: "string"},
			},
			Required: []string{"projectId", "type", "content"},
		},
	}, s.handleMemoryAdd)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "memory_recall",
		Description: "Rank episodic memories by text match, entity overlap, and recency. Sensitive episodes are excluded unless includeSensitive is set.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"projectId":        {Type: "string"},
				"query":            {Type: "string"},
				"entities":         {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
				"type":             {Type: "string"},
				"agentId":          {Type: "string"},
				"taskId":           {Type: "string"},
				"limit":            {Type: "integer"},
				"includeSensitive": {Type: "boolean"},
			},
			Required: []string{"projectId"},
		},
	}, s.handleMemoryRecall)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "memory_decision_query",
		Description: "Recall restricted to DECISION episodes.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"projectId": {Type: "string"},
				"query":     {Type: "string"},
				"entities":  {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
				"agentId":   {Type: "string"},
				"taskId":    {Type: "string"},
				"limit":     {Type: "integer"},
			},
			Required: []string{"projectId"},
		},
	}, s.handleMemoryDecisionQuery)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "memory_reflect",
		Description: "Group recurring ERROR episodes by their first content line and emit a LEARNING episode for every pattern that recurred at least twice.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"projectId": {Type: "string"},
				"agentId":   {Type: "string"},
				"taskId":    {Type: "string"},
				"limit":     {Type: "integer"},
			},
			Required: []string{"projectId"},
		},
	}, s.handleMemoryReflect)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "detect_drift",
		Description: "Compare the in-memory index against live store node counts and the vector store's point count, surfacing recommendations without acting on them.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{"projectId": {Type: "string"}},
			Required:   []string{"projectId"},
		},
	}, s.handleDetectDrift)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "ensure_bm25_index",
		Description: "Idempotently provision the native full-text index(es) the store's BM25 search and docs search depend on.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleEnsureBM25Index)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "search_docs",
		Description: "Full-text search over documentation sections, served from the store's docs index when connected, otherwise an in-memory lexical scan.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query":     {Type: "string"},
				"projectId": {Type: "string"},
				"limit":     {Type: "integer"},
			},
			Required: []string{"query", "projectId"},
		},
	}, s.handleSearchDocs)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_docs_by_symbol",
		Description: "Find documentation sections describing a given symbol or file path.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"symbol":    {Type: "string"},
				"projectId": {Type: "string"},
				"limit":     {Type: "integer"},
			},
			Required: []string{"symbol", "projectId"},
		},
	}, s.handleGetDocsBySymbol)
}
