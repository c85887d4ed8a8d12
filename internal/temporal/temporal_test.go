package temporal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuerier struct {
	txTimestamps map[string]time.Time
	episodeTs    time.Time
	hasEpisode   bool
}

func (f *fakeQuerier) GraphTxTimestamp(ctx context.Context, projectID, txID string) (time.Time, bool, error) {
	ts, ok := f.txTimestamps[txID]
	return ts, ok, nil
}

func (f *fakeQuerier) LatestEpisodeByAgent(ctx context.Context, projectID, agentID string) (time.Time, bool, error) {
	return f.episodeTs, f.hasEpisode, nil
}

func TestToEpochMillis_ParsesVariants(t *testing.T) {
	ms, ok := ToEpochMillis("1700000000000")
	require.True(t, ok)
	assert.Equal(t, int64(1700000000000), ms)

	ms, ok = ToEpochMillis("2023-11-14T22:13:20Z")
	require.True(t, ok)
	assert.Equal(t, int64(1700000000000), ms)

	_, ok = ToEpochMillis("not-a-timestamp")
	assert.False(t, ok)
}

func TestResolveSinceAnchor_PrefersTxIDMatch(t *testing.T) {
	expected := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := &fakeQuerier{txTimestamps: map[string]time.Time{"tx-123": expected}}

	anchor, err := ResolveSinceAnchor(context.Background(), q, "tx-123", "proj", ResolveSinceAnchorOpts{})
	require.NoError(t, err)
	require.NotNil(t, anchor)
	assert.Equal(t, AnchorModeTxID, anchor.Mode)
	assert.Equal(t, expected, anchor.SinceTs)
}

func TestResolveSinceAnchor_FallsBackToTimestamp(t *testing.T) {
	q := &fakeQuerier{txTimestamps: map[string]time.Time{}}

	anchor, err := ResolveSinceAnchor(context.Background(), q, "1700000000000", "proj", ResolveSinceAnchorOpts{})
	require.NoError(t, err)
	require.NotNil(t, anchor)
	assert.Equal(t, AnchorModeTimestamp, anchor.Mode)
}

func TestResolveSinceAnchor_FallsBackToEpisode(t *testing.T) {
	expected := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	q := &fakeQuerier{txTimestamps: map[string]time.Time{}, episodeTs: expected, hasEpisode: true}

	anchor, err := ResolveSinceAnchor(context.Background(), q, "not-a-tx-or-ts", "proj", ResolveSinceAnchorOpts{AgentID: "agent1"})
	require.NoError(t, err)
	require.NotNil(t, anchor)
	assert.Equal(t, AnchorModeEpisode, anchor.Mode)
	assert.Equal(t, expected, anchor.SinceTs)
}

func TestResolveSinceAnchor_NilWhenNothingResolves(t *testing.T) {
	q := &fakeQuerier{txTimestamps: map[string]time.Time{}}

	anchor, err := ResolveSinceAnchor(context.Background(), q, "garbage", "proj", ResolveSinceAnchorOpts{})
	require.NoError(t, err)
	assert.Nil(t, anchor)
}

func TestApplyTemporalFilterToCypher_AddsGuardWithoutWhere(t *testing.T) {
	out := ApplyTemporalFilterToCypher("MATCH (n:FUNCTION) RETURN n")
	assert.Contains(t, out, "n.validFrom <= $asOfTs")
	assert.Contains(t, out, "n.validTo IS NULL OR n.validTo > $asOfTs")
}

func TestApplyTemporalFilterToCypher_MergesIntoExistingWhere(t *testing.T) {
	out := ApplyTemporalFilterToCypher("MATCH (n:FUNCTION) WHERE n.name = $name RETURN n")
	assert.Contains(t, out, "n.validFrom <= $asOfTs")
	assert.Contains(t, out, "n.name = $name")
}

func TestApplyTemporalFilterToCypher_LeavesUnlabeledPatternsAlone(t *testing.T) {
	out := ApplyTemporalFilterToCypher("MATCH (n) RETURN n")
	assert.Equal(t, "MATCH (n) RETURN n", out)
}

func TestComputeDiff_ModifiedIsIntersection(t *testing.T) {
	diff := ComputeDiff(NodeVersionSet{
		AddedSinceIDs:   []string{"a", "b"},
		RemovedSinceIDs: []string{"b", "c"},
		TxIDsSince:      []string{"tx1"},
	})

	assert.ElementsMatch(t, []string{"a"}, diff.Added)
	assert.ElementsMatch(t, []string{"c"}, diff.Removed)
	assert.ElementsMatch(t, []string{"b"}, diff.Modified)
	assert.Equal(t, []string{"tx1"}, diff.TxIDs)
}
