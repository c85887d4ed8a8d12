package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/graphcode-dev/graphcode-server/internal/coordination"
	"github.com/graphcode-dev/graphcode-server/internal/docsengine"
	"github.com/graphcode-dev/graphcode-server/internal/memory"
	"github.com/graphcode-dev/graphcode-server/internal/orchestrator"
	"github.com/graphcode-dev/graphcode-server/internal/retriever"
	"github.com/graphcode-dev/graphcode-server/internal/session"
	"github.com/graphcode-dev/graphcode-server/internal/types"
)

func toLabels(names []string) []types.Label {
	if len(names) == 0 {
		return nil
	}
	labels := make([]types.Label, len(names))
	for i, n := range names {
		labels[i] = types.Label(n)
	}
	return labels
}

func unmarshalParams(req *mcp.CallToolRequest, v interface{}) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	return json.Unmarshal(req.Params.Arguments, v)
}

// --- resolve_context / adapt_workspace_for_runtime ---

type resolveContextParams struct {
	WorkspaceRoot string `json:"workspaceRoot"`
	SourceDir     string `json:"sourceDir"`
	ProjectID     string `json:"projectId"`
	StartWatcher  bool   `json:"startWatcher"`
	DebounceMs    int    `json:"debounceMs"`
}

func (s *Server) handleResolveContext(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p resolveContextParams
	if err := unmarshalParams(req, &p); err != nil {
		return createErrorResponse("resolve_context", fmt.Errorf("invalid parameters: %w", err))
	}

	sess, err := session.ResolveProjectContext(session.ContextArgs{
		WorkspaceRoot: p.WorkspaceRoot,
		SourceDir:     p.SourceDir,
		ProjectID:     p.ProjectID,
	}, s.deps.Sessions.Active())
	if err != nil {
		return createErrorResponse("resolve_context", err)
	}

	var handler func(context.Context, []string) error
	if p.StartWatcher && s.deps.Orchestrator != nil {
		handler = func(ctx context.Context, paths []string) error {
			_, err := s.deps.Orchestrator.Run(ctx, orchestrator.Input{
				Mode:          orchestrator.ModeIncremental,
				WorkspaceRoot: sess.WorkspaceRoot,
				ProjectID:     sess.ProjectID,
				SourceDir:     sess.SourceDir,
				ChangedFiles:  paths,
			})
			return err
		}
	}

	if err := s.deps.Sessions.SetContext(sess, nil, p.DebounceMs, handler); err != nil {
		return createErrorResponse("resolve_context", err)
	}

	return createJSONResponse(sess)
}

type adaptWorkspaceParams struct {
	WorkspaceRoot string `json:"workspaceRoot"`
	SourceDir     string `json:"sourceDir"`
	ProjectID     string `json:"projectId"`
	AllowFallback bool   `json:"allowFallback"`
	MountRoot     string `json:"mountRoot"`
}

func (s *Server) handleAdaptWorkspaceForRuntime(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p adaptWorkspaceParams
	if err := unmarshalParams(req, &p); err != nil {
		return createErrorResponse("adapt_workspace_for_runtime", fmt.Errorf("invalid parameters: %w", err))
	}

	sess := &session.Session{WorkspaceRoot: p.WorkspaceRoot, SourceDir: p.SourceDir, ProjectID: p.ProjectID}
	adapted, result, err := session.AdaptWorkspaceForRuntime(sess, p.AllowFallback, p.MountRoot)
	if err != nil {
		return createErrorResponse("adapt_workspace_for_runtime", err)
	}

	return createJSONResponse(map[string]interface{}{
		"session": adapted,
		"adapt":   result,
	})
}

// --- retrieve ---

type retrieveParams struct {
	Query     string   `json:"query"`
	ProjectID string   `json:"projectId"`
	Limit     int      `json:"limit"`
	Mode      string   `json:"mode"`
	Types     []string `json:"types"`
}

func (s *Server) handleRetrieve(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p retrieveParams
	if err := unmarshalParams(req, &p); err != nil {
		return createErrorResponse("retrieve", fmt.Errorf("invalid parameters: %w", err))
	}

	results := s.deps.Retriever.Retrieve(ctx, retriever.Request{
		Query:     p.Query,
		ProjectID: p.ProjectID,
		Limit:     p.Limit,
		Mode:      retriever.Mode(p.Mode),
		Types:     toLabels(p.Types),
	})

	return createJSONResponse(map[string]interface{}{"results": results})
}

// --- rebuild ---

type rebuildParams struct {
	WorkspaceRoot string   `json:"workspaceRoot"`
	ProjectID     string   `json:"projectId"`
	SourceDir     string   `json:"sourceDir"`
	Mode          string   `json:"mode"`
	ChangedFiles  []string `json:"changedFiles"`
	IndexDocs     bool     `json:"indexDocs"`
}

func (s *Server) handleRebuild(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p rebuildParams
	if err := unmarshalParams(req, &p); err != nil {
		return createErrorResponse("rebuild", fmt.Errorf("invalid parameters: %w", err))
	}

	mode := orchestrator.ModeIncremental
	if p.Mode == string(orchestrator.ModeFull) {
		mode = orchestrator.ModeFull
	}

	result, err := s.deps.Orchestrator.Run(ctx, orchestrator.Input{
		Mode:          mode,
		WorkspaceRoot: p.WorkspaceRoot,
		ProjectID:     p.ProjectID,
		SourceDir:     p.SourceDir,
		ChangedFiles:  p.ChangedFiles,
		IndexDocs:     p.IndexDocs,
	})
	if err != nil {
		return createErrorResponse("rebuild", err)
	}

	if s.deps.Coordination != nil {
		s.deps.Coordination.InvalidateStaleClaims(ctx, p.ProjectID)
	}

	return createJSONResponse(result)
}

// --- claims ---

type claimParams struct {
	ProjectID string `json:"projectId"`
	AgentID   string `json:"agentId"`
	TargetID  string `json:"targetId"`
	ClaimType string `json:"claimType"`
	Intent    string `json:"intent"`
	TaskID    string `json:"taskId"`
	SessionID string `json:"sessionId"`
}

func (s *Server) handleClaim(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p claimParams
	if err := unmarshalParams(req, &p); err != nil {
		return createErrorResponse("claim", fmt.Errorf("invalid parameters: %w", err))
	}

	result := s.deps.Coordination.Claim(ctx, coordination.ClaimRequest{
		ProjectID: p.ProjectID,
		AgentID:   p.AgentID,
		TargetID:  p.TargetID,
		ClaimType: coordination.ClaimType(p.ClaimType),
		Intent:    p.Intent,
		TaskID:    p.TaskID,
		SessionID: p.SessionID,
	})
	return createJSONResponse(result)
}

type releaseClaimParams struct {
	ClaimID string `json:"claimId"`
	Outcome string `json:"outcome"`
}

func (s *Server) handleReleaseClaim(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p releaseClaimParams
	if err := unmarshalParams(req, &p); err != nil {
		return createErrorResponse("release_claim", fmt.Errorf("invalid parameters: %w", err))
	}
	return createJSONResponse(s.deps.Coordination.Release(ctx, p.ClaimID, p.Outcome))
}

type claimIDParams struct {
	ClaimID string `json:"claimId"`
}

func (s *Server) handleClaimStatus(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p claimIDParams
	if err := unmarshalParams(req, &p); err != nil {
		return createErrorResponse("claim_status", fmt.Errorf("invalid parameters: %w", err))
	}
	claim, ok := s.deps.Coordination.Status(p.ClaimID)
	if !ok {
		return createErrorResponse("claim_status", fmt.Errorf("no claim with id %q", p.ClaimID))
	}
	return createJSONResponse(claim)
}

type projectIDParams struct {
	ProjectID string `json:"projectId"`
}

func (s *Server) handleClaimOverview(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p projectIDParams
	if err := unmarshalParams(req, &p); err != nil {
		return createErrorResponse("claim_overview", fmt.Errorf("invalid parameters: %w", err))
	}
	return createJSONResponse(map[string]interface{}{"claims": s.deps.Coordination.Overview(p.ProjectID)})
}

func (s *Server) handleInvalidateStaleClaims(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p projectIDParams
	if err := unmarshalParams(req, &p); err != nil {
		return createErrorResponse("invalidate_stale_claims", fmt.Errorf("invalid parameters: %w", err))
	}
	n := s.deps.Coordination.InvalidateStaleClaims(ctx, p.ProjectID)
	return createJSONResponse(map[string]interface{}{"invalidated": n})
}

// --- memory ---

type memoryAddParams struct {
	ProjectID string         `json:"projectId"`
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Outcome   string         `json:"outcome"`
	Entities  []string       `json:"entities"`
	Sensitive bool           `json:"sensitive"`
	Metadata  map[string]any `json:"metadata"`
	AgentID   string         `json:"agentId"`
	TaskID    string         `json:"taskId"`
	SessionID string         `json:"sessionId"`
}

func (s *Server) handleMemoryAdd(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p memoryAddParams
	if err := unmarshalParams(req, &p); err != nil {
		return createErrorResponse("memory_add", fmt.Errorf("invalid parameters: %w", err))
	}

	id, err := s.deps.Memory.Add(ctx, memory.Episode{
		Type:      memory.EpisodeType(p.Type),
		Content:   p.Content,
		Outcome:   memory.Outcome(p.Outcome),
		Entities:  p.Entities,
		Sensitive: p.Sensitive,
		Metadata:  p.Metadata,
		AgentID:   p.AgentID,
		TaskID:    p.TaskID,
		SessionID: p.SessionID,
	}, p.ProjectID)
	if err != nil {
		return createErrorResponse("memory_add", err)
	}
	return createJSONResponse(map[string]interface{}{"id": id})
}

type memoryRecallParams struct {
	ProjectID        string   `json:"projectId"`
	Query            string   `json:"query"`
	Entities         []string `json:"entities"`
	Type             string   `json:"type"`
	AgentID          string   `json:"agentId"`
	TaskID           string   `json:"taskId"`
	Limit            int      `json:"limit"`
	IncludeSensitive bool     `json:"includeSensitive"`
}

func (s *Server) handleMemoryRecall(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p memoryRecallParams
	if err := unmarshalParams(req, &p); err != nil {
		return createErrorResponse("memory_recall", fmt.Errorf("invalid parameters: %w", err))
	}

	r := toRecallRequest(p)
	var episodes []memory.Episode
	if p.IncludeSensitive {
		episodes = s.deps.Memory.RecallSensitive(r)
	} else {
		episodes = s.deps.Memory.Recall(r)
	}
	return createJSONResponse(map[string]interface{}{"episodes": episodes})
}

func (s *Server) handleMemoryDecisionQuery(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p memoryRecallParams
	if err := unmarshalParams(req, &p); err != nil {
		return createErrorResponse("memory_decision_query", fmt.Errorf("invalid parameters: %w", err))
	}
	episodes := s.deps.Memory.DecisionQuery(toRecallRequest(p))
	return createJSONResponse(map[string]interface{}{"episodes": episodes})
}

func toRecallRequest(p memoryRecallParams) memory.RecallRequest {
	r := memory.RecallRequest{
		Query:     p.Query,
		ProjectID: p.ProjectID,
		AgentID:   p.AgentID,
		TaskID:    p.TaskID,
		Entities:  p.Entities,
		Limit:     p.Limit,
	}
	if p.Type != "" {
		r.Types = []memory.EpisodeType{memory.EpisodeType(p.Type)}
	}
	return r
}

type memoryReflectParams struct {
	ProjectID string `json:"projectId"`
	AgentID   string `json:"agentId"`
	TaskID    string `json:"taskId"`
	Limit     int    `json:"limit"`
}

func (s *Server) handleMemoryReflect(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p memoryReflectParams
	if err := unmarshalParams(req, &p); err != nil {
		return createErrorResponse("memory_reflect", fmt.Errorf("invalid parameters: %w", err))
	}
	result := s.deps.Memory.Reflect(ctx, memory.ReflectRequest{
		ProjectID: p.ProjectID,
		AgentID:   p.AgentID,
		TaskID:    p.TaskID,
		Limit:     p.Limit,
	})
	return createJSONResponse(result)
}

// --- drift ---

func (s *Server) handleDetectDrift(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p projectIDParams
	if err := unmarshalParams(req, &p); err != nil {
		return createErrorResponse("detect_drift", fmt.Errorf("invalid parameters: %w", err))
	}
	report := s.deps.Drift.Detect(ctx, s.deps.Index, p.ProjectID)
	return createJSONResponse(report)
}

// --- bm25 provisioning ---

func (s *Server) handleEnsureBM25Index(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Store == nil {
		return createErrorResponse("ensure_bm25_index", fmt.Errorf("no graph store configured"))
	}
	result := s.deps.Store.EnsureBM25Index(ctx)
	if result.Error != nil {
		return createErrorResponse("ensure_bm25_index", result.Error)
	}
	return createJSONResponse(map[string]interface{}{
		"created":       result.Created,
		"alreadyExists": result.AlreadyExists,
	})
}

// --- docs ---

type docsSearchParams struct {
	Query     string `json:"query"`
	ProjectID string `json:"projectId"`
	Limit     int    `json:"limit"`
}

func (s *Server) handleSearchDocs(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p docsSearchParams
	if err := unmarshalParams(req, &p); err != nil {
		return createErrorResponse("search_docs", fmt.Errorf("invalid parameters: %w", err))
	}
	hits, err := docsengine.SearchDocs(ctx, s.deps.Store, s.deps.Index, p.Query, p.ProjectID, p.Limit)
	if err != nil {
		return createErrorResponse("search_docs", err)
	}
	return createJSONResponse(map[string]interface{}{"hits": hits})
}

type docsBySymbolParams struct {
	Symbol    string `json:"symbol"`
	ProjectID string `json:"projectId"`
	Limit     int    `json:"limit"`
}

func (s *Server) handleGetDocsBySymbol(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p docsBySymbolParams
	if err := unmarshalParams(req, &p); err != nil {
		return createErrorResponse("get_docs_by_symbol", fmt.Errorf("invalid parameters: %w", err))
	}
	hits, err := docsengine.GetDocsBySymbol(ctx, s.deps.Store, s.deps.Index, p.Symbol, p.ProjectID, p.Limit)
	if err != nil {
		return createErrorResponse("get_docs_by_symbol", err)
	}
	return createJSONResponse(map[string]interface{}{"hits": hits})
}
