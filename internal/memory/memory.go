// Package memory implements episodic memory (C14): typed episodes an
// agent records as it works, recalled later by text match, entity
// overlap, and recency, plus a reflection pass that distills recurring
// episodes into LEARNING episodes.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/graphcode-dev/graphcode-server/internal/graphbuild"
	"github.com/graphcode-dev/graphcode-server/internal/graphstore"
	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// EpisodeType enumerates the kinds of episode an agent can record.
type EpisodeType string

const (
	TypeObservation EpisodeType = "OBSERVATION"
	TypeDecision    EpisodeType = "DECISION"
	TypeEdit        EpisodeType = "EDIT"
	TypeTestResult  EpisodeType = "TEST_RESULT"
	TypeError       EpisodeType = "ERROR"
	TypeReflection  EpisodeType = "REFLECTION"
	TypeLearning    EpisodeType = "LEARNING"
)

var validTypes = map[EpisodeType]bool{
	TypeObservation: true, TypeDecision: true, TypeEdit: true,
	TypeTestResult: true, TypeError: true, TypeReflection: true, TypeLearning: true,
}

// Outcome enumerates the allowed values for Episode.Outcome.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomePartial Outcome = "partial"
)

var validOutcomes = map[Outcome]bool{OutcomeSuccess: true, OutcomeFailure: true, OutcomePartial: true}

// Episode mirrors the EPISODE entity.
type Episode struct {
	ID        string
	Type      EpisodeType
	Content   string
	Entities  []string
	TaskID    string
	Outcome   Outcome
	Metadata  map[string]any
	Sensitive bool
	AgentID   string
	SessionID string
	CreatedAt time.Time
	ProjectID string
}

// RecallRequest is the input to Recall.
type RecallRequest struct {
	Query     string
	ProjectID string
	AgentID   string
	TaskID    string
	Types     []EpisodeType
	Entities  []string
	Limit     int
	Since     time.Time
}

// ReflectRequest is the input to Reflect.
type ReflectRequest struct {
	TaskID    string
	AgentID   string
	Limit     int
	ProjectID string
}

// ReflectResult reports what a reflection pass produced.
type ReflectResult struct {
	ReflectionID     string
	LearningsCreated int
}

const defaultRecallLimit = 20

// Manager is the episodic memory store for a single process. Episodes are
// kept in-process (so recall/reflect never depend on a live store) and
// persisted through to the graph store as a best effort when connected,
// mirroring internal/coordination's persist-if-connected shape.
type Manager struct {
	mu       sync.Mutex
	episodes []*Episode
	nextID   int
	store    *graphstore.Client
}

func NewManager(store *graphstore.Client) *Manager {
	return &Manager{store: store}
}

// Add validates and stores an episode, returning its id.
func (m *Manager) Add(ctx context.Context, ep Episode, projectID string) (string, error) {
	if !validTypes[ep.Type] {
		return "", fmt.Errorf("episode type %q is not one of the enumerated set", ep.Type)
	}
	if ep.Type == TypeDecision {
		if ep.Metadata == nil || ep.Metadata["rationale"] == nil || ep.Metadata["rationale"] == "" {
			return "", fmt.Errorf("DECISION episodes require metadata.rationale")
		}
	}
	if ep.Outcome != "" && !validOutcomes[ep.Outcome] {
		return "", fmt.Errorf("outcome %q must be one of success, failure, partial", ep.Outcome)
	}

	m.mu.Lock()
	m.nextID++
	ep.ID = types.NodeID(projectID, types.LabelEpisode, episodeLocalKey(m.nextID))
	ep.ProjectID = projectID
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now()
	}
	m.episodes = append(m.episodes, &ep)
	m.mu.Unlock()

	m.persist(ctx, &ep)
	return ep.ID, nil
}

// Recall ranks stored episodes by a combination of text match against
// Content, entity overlap with req.Entities, and recency, filtering by
// project, type, agent, task, and since. sensitive=true episodes are always
// excluded, whatever req contains; RecallSensitive is the variant that
// includes them.
func (m *Manager) Recall(req RecallRequest) []Episode {
	return m.recall(req, false)
}

// RecallSensitive is Recall but includes sensitive=true episodes — for
// flows (reflection, audit) that explicitly need them.
func (m *Manager) RecallSensitive(req RecallRequest) []Episode {
	return m.recall(req, true)
}

func (m *Manager) recall(req RecallRequest, includeSensitive bool) []Episode {
	m.mu.Lock()
	candidates := make([]*Episode, len(m.episodes))
	copy(candidates, m.episodes)
	m.mu.Unlock()

	typeFilter := make(map[EpisodeType]bool, len(req.Types))
	for _, t := range req.Types {
		typeFilter[t] = true
	}
	entityFilter := make(map[string]bool, len(req.Entities))
	for _, e := range req.Entities {
		entityFilter[e] = true
	}

	scorer := graphstore.NewLexicalScorer()
	filtered := make([]*Episode, 0, len(candidates))
	for _, ep := range candidates {
		if ep.ProjectID != req.ProjectID {
			continue
		}
		if !includeSensitive && ep.Sensitive {
			continue
		}
		if req.AgentID != "" && ep.AgentID != req.AgentID {
			continue
		}
		if req.TaskID != "" && ep.TaskID != req.TaskID {
			continue
		}
		if len(typeFilter) > 0 && !typeFilter[ep.Type] {
			continue
		}
		if !req.Since.IsZero() && ep.CreatedAt.Before(req.Since) {
			continue
		}
		filtered = append(filtered, ep)
		scorer.Index(ep.ID, ep.Content)
	}

	textScores := scorer.Score(req.Query)
	now := time.Now()

	type scored struct {
		ep    *Episode
		score float64
	}
	ranked := make([]scored, 0, len(filtered))
	for _, ep := range filtered {
		score := textScores[ep.ID]
		score += entityOverlapScore(ep.Entities, entityFilter)
		score += recencyScore(ep.CreatedAt, now)
		ranked = append(ranked, scored{ep: ep, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].ep.CreatedAt.After(ranked[j].ep.CreatedAt)
	})

	limit := req.Limit
	if limit <= 0 {
		limit = defaultRecallLimit
	}
	if limit > len(ranked) {
		limit = len(ranked)
	}

	result := make([]Episode, limit)
	for i := 0; i < limit; i++ {
		result[i] = *ranked[i].ep
	}
	return result
}

func entityOverlapScore(episodeEntities []string, wanted map[string]bool) float64 {
	if len(wanted) == 0 {
		return 0
	}
	matches := 0
	for _, e := range episodeEntities {
		if wanted[e] {
			matches++
		}
	}
	return float64(matches)
}

// recencyScore decays over a week so very recent episodes get a mild
// boost without drowning out strong text/entity matches.
func recencyScore(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt).Hours() / 24
	if age < 0 {
		age = 0
	}
	return 1.0 / (1.0 + age/7.0)
}

// DecisionQuery is Recall filtered to type=DECISION.
func (m *Manager) DecisionQuery(req RecallRequest) []Episode {
	req.Types = []EpisodeType{TypeDecision}
	return m.Recall(req)
}

// Reflect scans recent episodes for a task/agent, looks for recurring
// ERROR episodes with the same first line of content, and writes one
// LEARNING episode per recurring pattern found.
func (m *Manager) Reflect(ctx context.Context, req ReflectRequest) ReflectResult {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultRecallLimit
	}

	episodes := m.recall(RecallRequest{
		ProjectID: req.ProjectID,
		AgentID:   req.AgentID,
		TaskID:    req.TaskID,
		Limit:     limit,
	}, true)

	groups := make(map[string][]*Episode)
	for i := range episodes {
		ep := &episodes[i]
		if ep.Type != TypeError {
			continue
		}
		key := firstLine(ep.Content)
		groups[key] = append(groups[key], ep)
	}

	created := 0
	var reflectionID string
	for pattern, group := range groups {
		if len(group) < 2 {
			continue
		}
		entities := dedupeEntities(group)
		learning := Episode{
			Type:     TypeLearning,
			Content:  fmt.Sprintf("recurring error pattern (%d occurrences): %s", len(group), pattern),
			Entities: entities,
			TaskID:   req.TaskID,
			AgentID:  req.AgentID,
			Metadata: map[string]any{"occurrences": len(group)},
		}
		id, err := m.Add(ctx, learning, req.ProjectID)
		if err != nil {
			continue
		}
		created++
		if reflectionID == "" {
			reflectionID = id
		}
	}

	return ReflectResult{ReflectionID: reflectionID, LearningsCreated: created}
}

func firstLine(content string) string {
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		return content[:idx]
	}
	return content
}

func dedupeEntities(episodes []*Episode) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ep := range episodes {
		for _, e := range ep.Entities {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out
}

func (m *Manager) persist(ctx context.Context, ep *Episode) {
	if m.store == nil || !m.store.IsConnected() {
		return
	}
	stmt := graphbuild.UpsertStatement(types.LabelEpisode, ep.ID, map[string]any{
		"type":      string(ep.Type),
		"content":   ep.Content,
		"entities":  ep.Entities,
		"taskId":    ep.TaskID,
		"outcome":   string(ep.Outcome),
		"sensitive": ep.Sensitive,
		"agentId":   ep.AgentID,
		"sessionId": ep.SessionID,
		"createdAt": ep.CreatedAt,
		"projectId": ep.ProjectID,
	})
	stmts := []types.Statement{stmt}
	for _, entity := range ep.Entities {
		stmts = append(stmts, graphbuild.EdgeStatement(types.EdgeEpisodeInvolves, ep.ID, entity, nil))
	}
	m.store.ExecuteBatch(ctx, stmts)
}

func episodeLocalKey(n int) string {
	return "episode:" + strconv.Itoa(n)
}
