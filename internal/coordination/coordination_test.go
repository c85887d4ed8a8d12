package coordination

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphcode-dev/graphcode-server/internal/memindex"
	"github.com/graphcode-dev/graphcode-server/internal/types"
)

func TestClaim_CreatesWhenNoExistingClaim(t *testing.T) {
	m := NewManager(nil, nil)

	res := m.Claim(context.Background(), ClaimRequest{
		AgentID: "agent-a", TargetID: "proj:function:f.ts:foo:0", ClaimType: ClaimFunction,
		Intent: "refactor", ProjectID: "proj",
	})

	assert.Equal(t, "CREATED", res.Status)
	assert.NotEmpty(t, res.ClaimID)
}

func TestClaim_ConflictsWhenHeldByDifferentAgent(t *testing.T) {
	m := NewManager(nil, nil)
	target := "proj:function:f.ts:foo:0"

	first := m.Claim(context.Background(), ClaimRequest{AgentID: "agent-a", TargetID: target, ClaimType: ClaimFunction, ProjectID: "proj"})
	require.Equal(t, "CREATED", first.Status)

	second := m.Claim(context.Background(), ClaimRequest{AgentID: "agent-b", TargetID: target, ClaimType: ClaimFunction, ProjectID: "proj"})

	assert.Equal(t, "CONFLICT", second.Status)
	assert.Equal(t, "agent-a", second.ConflictingAgentID)
	assert.Equal(t, first.ClaimID, second.ConflictingClaimID)
}

func TestClaim_SameAgentReclaimingSameTargetReturnsExistingClaim(t *testing.T) {
	m := NewManager(nil, nil)
	target := "proj:function:f.ts:foo:0"

	first := m.Claim(context.Background(), ClaimRequest{AgentID: "agent-a", TargetID: target, ClaimType: ClaimFunction, ProjectID: "proj"})
	second := m.Claim(context.Background(), ClaimRequest{AgentID: "agent-a", TargetID: target, ClaimType: ClaimFunction, ProjectID: "proj"})

	assert.Equal(t, "CREATED", second.Status)
	assert.Equal(t, first.ClaimID, second.ClaimID)
}

func TestClaim_DifferentProjectsDoNotConflict(t *testing.T) {
	m := NewManager(nil, nil)
	target := "shared-target"

	a := m.Claim(context.Background(), ClaimRequest{AgentID: "agent-a", TargetID: target, ClaimType: ClaimFile, ProjectID: "proj-1"})
	b := m.Claim(context.Background(), ClaimRequest{AgentID: "agent-b", TargetID: target, ClaimType: ClaimFile, ProjectID: "proj-2"})

	assert.Equal(t, "CREATED", a.Status)
	assert.Equal(t, "CREATED", b.Status)
}

func TestRelease_ReportsFoundAndAlreadyClosedTruthfully(t *testing.T) {
	m := NewManager(nil, nil)
	created := m.Claim(context.Background(), ClaimRequest{AgentID: "agent-a", TargetID: "t", ClaimType: ClaimTask, ProjectID: "proj"})

	first := m.Release(context.Background(), created.ClaimID, "success")
	assert.True(t, first.Found)
	assert.False(t, first.AlreadyClosed)

	second := m.Release(context.Background(), created.ClaimID, "success")
	assert.True(t, second.Found)
	assert.True(t, second.AlreadyClosed)

	missing := m.Release(context.Background(), "does-not-exist", "")
	assert.False(t, missing.Found)
}

func TestRelease_FreesTargetForNewClaim(t *testing.T) {
	m := NewManager(nil, nil)
	target := "proj:function:f.ts:foo:0"

	created := m.Claim(context.Background(), ClaimRequest{AgentID: "agent-a", TargetID: target, ClaimType: ClaimFunction, ProjectID: "proj"})
	m.Release(context.Background(), created.ClaimID, "success")

	res := m.Claim(context.Background(), ClaimRequest{AgentID: "agent-b", TargetID: target, ClaimType: ClaimFunction, ProjectID: "proj"})
	assert.Equal(t, "CREATED", res.Status)
	assert.NotEqual(t, created.ClaimID, res.ClaimID)
}

func TestInvalidateStaleClaims_InvalidatesClaimsOnMissingTargets(t *testing.T) {
	idx := memindex.New()
	idx.AddNode(&types.Node{ID: "proj:function:f.ts:foo:0", Label: types.LabelFunction, ProjectID: "proj"})

	m := NewManager(nil, idx)
	live := m.Claim(context.Background(), ClaimRequest{AgentID: "a", TargetID: "proj:function:f.ts:foo:0", ClaimType: ClaimFunction, ProjectID: "proj"})
	stale := m.Claim(context.Background(), ClaimRequest{AgentID: "a", TargetID: "proj:function:gone.ts:bar:0", ClaimType: ClaimFunction, ProjectID: "proj"})

	invalidated := m.InvalidateStaleClaims(context.Background(), "proj")
	assert.Equal(t, 1, invalidated)

	liveClaim, _ := m.Status(live.ClaimID)
	assert.Equal(t, StatusActive, liveClaim.Status)

	staleClaim, _ := m.Status(stale.ClaimID)
	assert.Equal(t, StatusInvalidated, staleClaim.Status)
}

func TestOnTaskCompleted_ReleasesOnlyMatchingClaims(t *testing.T) {
	m := NewManager(nil, nil)
	a := m.Claim(context.Background(), ClaimRequest{AgentID: "agent-a", TargetID: "t1", ClaimType: ClaimTask, TaskID: "task-1", ProjectID: "proj"})
	b := m.Claim(context.Background(), ClaimRequest{AgentID: "agent-a", TargetID: "t2", ClaimType: ClaimTask, TaskID: "task-2", ProjectID: "proj"})

	released := m.OnTaskCompleted(context.Background(), "task-1", "agent-a", "proj")
	assert.Equal(t, 1, released)

	claimA, _ := m.Status(a.ClaimID)
	assert.Equal(t, StatusReleased, claimA.Status)

	claimB, _ := m.Status(b.ClaimID)
	assert.Equal(t, StatusActive, claimB.Status)
}

func TestOverview_ReturnsOnlyRequestedProject(t *testing.T) {
	m := NewManager(nil, nil)
	m.Claim(context.Background(), ClaimRequest{AgentID: "a", TargetID: "t1", ClaimType: ClaimTask, ProjectID: "proj-1"})
	m.Claim(context.Background(), ClaimRequest{AgentID: "a", TargetID: "t2", ClaimType: ClaimTask, ProjectID: "proj-2"})

	overview := m.Overview("proj-1")
	require.Len(t, overview, 1)
	assert.Equal(t, "proj-1", overview[0].ProjectID)
}
