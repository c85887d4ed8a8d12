// Package coordination implements agent claims with conflict detection
// (C13): at most one active claim per (projectId, targetId), surfaced as a
// conflict report rather than a silent overwrite.
package coordination

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/graphcode-dev/graphcode-server/internal/graphbuild"
	"github.com/graphcode-dev/graphcode-server/internal/graphstore"
	"github.com/graphcode-dev/graphcode-server/internal/memindex"
	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// ClaimType enumerates the kinds of target a claim can cover.
type ClaimType string

const (
	ClaimTask     ClaimType = "task"
	ClaimFile     ClaimType = "file"
	ClaimFunction ClaimType = "function"
	ClaimFeature  ClaimType = "feature"
)

// ClaimStatus is a claim's lifecycle state.
type ClaimStatus string

const (
	StatusActive      ClaimStatus = "active"
	StatusReleased    ClaimStatus = "released"
	StatusInvalidated ClaimStatus = "invalidated"
)

// Claim mirrors the CLAIM entity: an agent's stated intent to work on a
// target, scoped to a project.
type Claim struct {
	ID         string
	AgentID    string
	TargetID   string
	ClaimType  ClaimType
	Intent     string
	TaskID     string
	SessionID  string
	ProjectID  string
	Status     ClaimStatus
	Outcome    string
	CreatedAt  time.Time
	ReleasedAt time.Time
}

// ClaimRequest is the input to Claim.
type ClaimRequest struct {
	AgentID   string
	TargetID  string
	ClaimType ClaimType
	Intent    string
	TaskID    string
	SessionID string
	ProjectID string
}

// ClaimResult reports whether the claim was created or conflicted with an
// existing one.
type ClaimResult struct {
	Status             string // "CREATED" or "CONFLICT"
	ClaimID            string
	ConflictingAgentID string
	ConflictingClaimID string
}

// ReleaseResult reports what release found, truthfully — a caller asking
// to release an already-released or nonexistent claim gets told so rather
// than a bare success.
type ReleaseResult struct {
	Found         bool
	AlreadyClosed bool
}

// Manager holds the active and historical claims for every project this
// process serves. It mirrors internal/core's IndexCoordinator shape — a
// mutex-guarded registry fronting lock-like state — generalized from
// index-type locks to per-(project,target) claims.
type Manager struct {
	mu     sync.Mutex
	claims map[string]*Claim // by claim id
	nextID int

	store *graphstore.Client // optional: claims persist as CLAIM nodes when set
	index *memindex.Index    // used by InvalidateStaleClaims to check target liveness
}

// NewManager builds a Manager. store and index may both be nil: claims
// then live purely in process memory, which is still enough for a single
// server instance's conflict detection.
func NewManager(store *graphstore.Client, index *memindex.Index) *Manager {
	return &Manager{
		claims: make(map[string]*Claim),
		store:  store,
		index:  index,
	}
}

// Claim scans active claims for the same (projectId, targetId). If one is
// held by a different agent it returns CONFLICT without mutating state;
// otherwise it creates (or, for the same agent reclaiming the same target,
// returns the existing) claim and reports CREATED.
func (m *Manager) Claim(ctx context.Context, req ClaimRequest) ClaimResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.claims {
		if c.Status != StatusActive || c.ProjectID != req.ProjectID || c.TargetID != req.TargetID {
			continue
		}
		if c.AgentID != req.AgentID {
			return ClaimResult{
				Status:             "CONFLICT",
				ConflictingAgentID: c.AgentID,
				ConflictingClaimID: c.ID,
			}
		}
		return ClaimResult{Status: "CREATED", ClaimID: c.ID}
	}

	m.nextID++
	claim := &Claim{
		ID:        types.NodeID(req.ProjectID, types.LabelClaim, claimLocalKey(m.nextID)),
		AgentID:   req.AgentID,
		TargetID:  req.TargetID,
		ClaimType: req.ClaimType,
		Intent:    req.Intent,
		TaskID:    req.TaskID,
		SessionID: req.SessionID,
		ProjectID: req.ProjectID,
		Status:    StatusActive,
		CreatedAt: time.Now(),
	}
	m.claims[claim.ID] = claim
	m.persist(ctx, claim)

	return ClaimResult{Status: "CREATED", ClaimID: claim.ID}
}

// Release marks a claim released, recording an optional outcome.
func (m *Manager) Release(ctx context.Context, claimID string, outcome string) ReleaseResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	claim, ok := m.claims[claimID]
	if !ok {
		return ReleaseResult{Found: false}
	}
	if claim.Status != StatusActive {
		return ReleaseResult{Found: true, AlreadyClosed: true}
	}

	claim.Status = StatusReleased
	claim.Outcome = outcome
	claim.ReleasedAt = time.Now()
	m.persist(ctx, claim)

	return ReleaseResult{Found: true, AlreadyClosed: false}
}

// Status returns a single claim's current state.
func (m *Manager) Status(claimID string) (*Claim, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	claim, ok := m.claims[claimID]
	if !ok {
		return nil, false
	}
	cp := *claim
	return &cp, true
}

// Overview returns every claim for a project, most recent first.
func (m *Manager) Overview(projectID string) []Claim {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Claim
	for _, c := range m.claims {
		if c.ProjectID == projectID {
			result = append(result, *c)
		}
	}
	for i := 0; i < len(result); i++ {
		for j := i + 1; j < len(result); j++ {
			if result[j].CreatedAt.After(result[i].CreatedAt) {
				result[i], result[j] = result[j], result[i]
			}
		}
	}
	return result
}

// InvalidateStaleClaims transitions active claims whose targetId no
// longer exists in the refreshed in-memory index to invalidated. Called
// after a rebuild, per the spec's stated trigger.
func (m *Manager) InvalidateStaleClaims(ctx context.Context, projectID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	invalidated := 0
	for _, c := range m.claims {
		if c.Status != StatusActive || c.ProjectID != projectID {
			continue
		}
		if m.index != nil {
			if _, ok := m.index.GetNode(c.TargetID); ok {
				continue
			}
		}
		c.Status = StatusInvalidated
		m.persist(ctx, c)
		invalidated++
	}
	return invalidated
}

// OnTaskCompleted releases every active claim bearing taskId for agentId
// in a project.
func (m *Manager) OnTaskCompleted(ctx context.Context, taskID, agentID, projectID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := 0
	for _, c := range m.claims {
		if c.Status == StatusActive && c.ProjectID == projectID && c.TaskID == taskID && c.AgentID == agentID {
			c.Status = StatusReleased
			c.Outcome = "task_completed"
			c.ReleasedAt = time.Now()
			m.persist(ctx, c)
			released++
		}
	}
	return released
}

// persist writes the claim through to the graph store as a best effort:
// claims still function as in-process conflict guards when the store is
// absent or offline, mirroring how the graph store client degrades the
// rest of the system rather than failing callers.
func (m *Manager) persist(ctx context.Context, c *Claim) {
	if m.store == nil || !m.store.IsConnected() {
		return
	}
	stmt := graphbuild.UpsertStatement(types.LabelClaim, c.ID, map[string]any{
		"agentId":   c.AgentID,
		"targetId":  c.TargetID,
		"claimType": string(c.ClaimType),
		"intent":    c.Intent,
		"taskId":    c.TaskID,
		"sessionId": c.SessionID,
		"status":    string(c.Status),
		"outcome":   c.Outcome,
		"createdAt": c.CreatedAt,
		"projectId": c.ProjectID,
	})
	stmts := []types.Statement{stmt, graphbuild.EdgeStatement(types.EdgeClaimAppliesTo, c.ID, c.TargetID, nil)}
	m.store.ExecuteBatch(ctx, stmts)
}

func claimLocalKey(n int) string {
	return "claim:" + strconv.Itoa(n)
}
