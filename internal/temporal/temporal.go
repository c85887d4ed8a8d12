// Package temporal resolves "since" anchors and rewrites Cypher queries to
// respect the bitemporal validity window. It never talks to the store
// directly — callers supply the narrow StoreQuerier it needs.
package temporal

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// StoreQuerier is the minimal graph-store surface resolveSinceAnchor needs:
// looking up a GRAPH_TX by id, and the most recent EPISODE by agent.
type StoreQuerier interface {
	GraphTxTimestamp(ctx context.Context, projectID, txID string) (time.Time, bool, error)
	LatestEpisodeByAgent(ctx context.Context, projectID, agentID string) (time.Time, bool, error)
}

// AnchorMode records which resolution strategy resolveSinceAnchor used.
type AnchorMode string

const (
	AnchorModeTxID     AnchorMode = "tx_id"
	AnchorModeTimestamp AnchorMode = "timestamp"
	AnchorModeGitCommit AnchorMode = "git_commit"
	AnchorModeEpisode   AnchorMode = "episode"
)

// Anchor is the resolved since-point.
type Anchor struct {
	Mode        AnchorMode
	AnchorValue string
	SinceTs     time.Time
}

// ToEpochMillis accepts ISO-8601, an integer epoch ms, or a numeric string,
// and returns epoch milliseconds or (0, false) when none parse.
func ToEpochMillis(anchor string) (int64, bool) {
	anchor = strings.TrimSpace(anchor)
	if anchor == "" {
		return 0, false
	}

	if ms, err := strconv.ParseInt(anchor, 10, 64); err == nil {
		return ms, true
	}

	if t, err := time.Parse(time.RFC3339Nano, anchor); err == nil {
		return t.UnixMilli(), true
	}
	if t, err := time.Parse(time.RFC3339, anchor); err == nil {
		return t.UnixMilli(), true
	}

	return 0, false
}

// ResolveSinceAnchorOpts bundles the optional lookups resolveSinceAnchor can
// fall through to.
type ResolveSinceAnchorOpts struct {
	GitRepoRoot string
	AgentID     string
}

// ResolveSinceAnchor tries, in order: exact GRAPH_TX.id match, parse as
// timestamp, external git-commit lookup, most recent EPISODE by agentId.
// Returns nil when nothing resolves.
func ResolveSinceAnchor(ctx context.Context, q StoreQuerier, since, projectID string, opts ResolveSinceAnchorOpts) (*Anchor, error) {
	if since == "" {
		return nil, nil
	}

	if ts, found, err := q.GraphTxTimestamp(ctx, projectID, since); err != nil {
		return nil, err
	} else if found {
		return &Anchor{Mode: AnchorModeTxID, AnchorValue: since, SinceTs: ts}, nil
	}

	if ms, ok := ToEpochMillis(since); ok {
		return &Anchor{Mode: AnchorModeTimestamp, AnchorValue: since, SinceTs: time.UnixMilli(ms).UTC()}, nil
	}

	if opts.GitRepoRoot != "" {
		if ts, err := CommitTimestamp(ctx, opts.GitRepoRoot, since); err == nil {
			return &Anchor{Mode: AnchorModeGitCommit, AnchorValue: since, SinceTs: ts}, nil
		}
	}

	if opts.AgentID != "" {
		if ts, found, err := q.LatestEpisodeByAgent(ctx, projectID, opts.AgentID); err != nil {
			return nil, err
		} else if found {
			return &Anchor{Mode: AnchorModeEpisode, AnchorValue: opts.AgentID, SinceTs: ts}, nil
		}
	}

	return nil, nil
}

// labeledNodePattern matches a Cypher node pattern carrying a label, e.g.
// "(n:FUNCTION)" or "(f:FILE {name: $name})" — intentionally conservative
// so ApplyTemporalFilterToCypher only rewrites patterns it can recognize,
// leaving everything else untouched.
var labeledNodePattern = regexp.MustCompile(`\(([A-Za-z_][A-Za-z0-9_]*):([A-Z_]+)([^)]*)\)`)

// ApplyTemporalFilterToCypher rewrites query to add a validity guard for
// every labeled node pattern it recognizes, binding $asOfTs as a query
// parameter the caller must also pass at execution time.
func ApplyTemporalFilterToCypher(query string) string {
	var guards []string
	seen := make(map[string]bool)

	rewritten := labeledNodePattern.ReplaceAllStringFunc(query, func(match string) string {
		groups := labeledNodePattern.FindStringSubmatch(match)
		varName := groups[1]
		if !seen[varName] {
			seen[varName] = true
			guards = append(guards, varName+".validFrom <= $asOfTs AND ("+varName+".validTo IS NULL OR "+varName+".validTo > $asOfTs)")
		}
		return match
	})

	if len(guards) == 0 {
		return query
	}

	clause := strings.Join(guards, " AND ")
	if strings.Contains(strings.ToUpper(rewritten), " WHERE ") {
		return insertIntoWhere(rewritten, clause)
	}
	return rewritten + " WHERE " + clause
}

func insertIntoWhere(query, clause string) string {
	upper := strings.ToUpper(query)
	idx := strings.Index(upper, " WHERE ")
	insertAt := idx + len(" WHERE ")
	return query[:insertAt] + clause + " AND " + query[insertAt:]
}

// DiffResult is the output of DiffSince.
type DiffResult struct {
	Added    []string
	Removed  []string
	Modified []string
	TxIDs    []string
}

// NodeVersionSet is the input to ComputeDiff: node ids keyed by validFrom/
// validTo relative to sinceTs, already filtered by the caller's query
// against the store for the requested types.
type NodeVersionSet struct {
	AddedSinceIDs   []string // validFrom >= sinceTs
	RemovedSinceIDs []string // validTo >= sinceTs
	TxIDsSince      []string // GRAPH_TX ids with timestamp >= sinceTs
}

// ComputeDiff derives added/removed/modified from the raw version sets:
// modified is the intersection of added and removed — an id replaced
// during the window.
func ComputeDiff(set NodeVersionSet) DiffResult {
	removedSet := make(map[string]bool, len(set.RemovedSinceIDs))
	for _, id := range set.RemovedSinceIDs {
		removedSet[id] = true
	}

	var added, modified []string
	for _, id := range set.AddedSinceIDs {
		if removedSet[id] {
			modified = append(modified, id)
		} else {
			added = append(added, id)
		}
	}

	modifiedSet := make(map[string]bool, len(modified))
	for _, id := range modified {
		modifiedSet[id] = true
	}
	var removed []string
	for _, id := range set.RemovedSinceIDs {
		if !modifiedSet[id] {
			removed = append(removed, id)
		}
	}

	return DiffResult{
		Added:    added,
		Removed:  removed,
		Modified: modified,
		TxIDs:    set.TxIDsSince,
	}
}
