package mcptools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphcode-dev/graphcode-server/internal/coordination"
	"github.com/graphcode-dev/graphcode-server/internal/memindex"
	"github.com/graphcode-dev/graphcode-server/internal/memory"
	"github.com/graphcode-dev/graphcode-server/internal/retriever"
	"github.com/graphcode-dev/graphcode-server/internal/session"
	"github.com/graphcode-dev/graphcode-server/internal/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	index := memindex.New()
	index.AddNode(&types.Node{
		ID: "proj:function:a.go:fn:0", Label: types.LabelFunction, ProjectID: "proj",
		Properties: map[string]any{"name": "fn", "relativePath": "a.go"},
	})

	deps := &Deps{
		Sessions:     session.NewManager(),
		Retriever:    retriever.New(nil, index, nil, nil),
		Coordination: coordination.NewManager(nil, index),
		Memory:       memory.NewManager(nil),
		Index:        index,
	}
	return NewServer("graphcode-server-test", "0.0.0-test", deps)
}

func callTool(ctx context.Context, handler func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error), args interface{}) (*mcp.CallToolResult, error) {
	raw, _ := json.Marshal(args)
	return handler(ctx, &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: raw}})
}

func TestNewServer_RegistersTools(t *testing.T) {
	s := newTestServer(t)
	require.NotNil(t, s.Underlying())
}

func TestHandleRetrieve_ReturnsResults(t *testing.T) {
	s := newTestServer(t)
	res, err := callTool(context.Background(), s.handleRetrieve, retrieveParams{
		Query: "fn", ProjectID: "proj", Mode: "bm25",
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestHandleClaim_ThenOverviewThenRelease(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	claimRes, err := callTool(ctx, s.handleClaim, claimParams{
		ProjectID: "proj", AgentID: "agent-1", TargetID: "proj:function:a.go:fn:0", ClaimType: "function",
	})
	require.NoError(t, err)
	require.False(t, claimRes.IsError)

	var parsed struct {
		Status  string `json:"Status"`
		ClaimID string `json:"ClaimID"`
	}
	require.NoError(t, json.Unmarshal([]byte(claimRes.Content[0].(*mcp.TextContent).Text), &parsed))
	assert.Equal(t, "CREATED", parsed.Status)
	require.NotEmpty(t, parsed.ClaimID)

	overviewRes, err := callTool(ctx, s.handleClaimOverview, projectIDParams{ProjectID: "proj"})
	require.NoError(t, err)
	assert.False(t, overviewRes.IsError)

	releaseRes, err := callTool(ctx, s.handleReleaseClaim, releaseClaimParams{ClaimID: parsed.ClaimID, Outcome: "success"})
	require.NoError(t, err)
	assert.False(t, releaseRes.IsError)
}

func TestHandleClaim_ConflictBetweenAgents(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := callTool(ctx, s.handleClaim, claimParams{
		ProjectID: "proj", AgentID: "agent-1", TargetID: "shared-target", ClaimType: "file",
	})
	require.NoError(t, err)

	conflictRes, err := callTool(ctx, s.handleClaim, claimParams{
		ProjectID: "proj", AgentID: "agent-2", TargetID: "shared-target", ClaimType: "file",
	})
	require.NoError(t, err)

	var parsed struct {
		Status             string `json:"Status"`
		ConflictingAgentID string `json:"ConflictingAgentID"`
	}
	require.NoError(t, json.Unmarshal([]byte(conflictRes.Content[0].(*mcp.TextContent).Text), &parsed))
	assert.Equal(t, "CONFLICT", parsed.Status)
	assert.Equal(t, "agent-1", parsed.ConflictingAgentID)
}

func TestHandleMemoryAdd_RejectsDecisionWithoutRationale(t *testing.T) {
	s := newTestServer(t)
	res, err := callTool(context.Background(), s.handleMemoryAdd, memoryAddParams{
		ProjectID: "proj", Type: "DECISION", Content: "chose X over Y",
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleMemoryAdd_ThenRecall(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	addRes, err := callTool(ctx, s.handleMemoryAdd, memoryAddParams{
		ProjectID: "proj", Type: "OBSERVATION", Content: "the retriever falls back to lexical scan without a store",
	})
	require.NoError(t, err)
	require.False(t, addRes.IsError)

	recallRes, err := callTool(ctx, s.handleMemoryRecall, memoryRecallParams{
		ProjectID: "proj", Query: "lexical scan",
	})
	require.NoError(t, err)
	require.False(t, recallRes.IsError)

	var parsed struct {
		Episodes []struct{ Content string } `json:"episodes"`
	}
	require.NoError(t, json.Unmarshal([]byte(recallRes.Content[0].(*mcp.TextContent).Text), &parsed))
	require.NotEmpty(t, parsed.Episodes)
}

func TestHandleResolveContext_DefaultsSourceDirAndProjectID(t *testing.T) {
	s := newTestServer(t)
	root := t.TempDir()

	res, err := callTool(context.Background(), s.handleResolveContext, resolveContextParams{WorkspaceRoot: root})
	require.NoError(t, err)
	require.False(t, res.IsError)

	var sess session.Session
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].(*mcp.TextContent).Text), &sess))
	assert.Equal(t, root, sess.WorkspaceRoot)
	assert.NotEmpty(t, sess.ProjectFingerprint)
}
