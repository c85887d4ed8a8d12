package syncstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_StartsUninitializedAndUnhealthy(t *testing.T) {
	m := New(0)
	assert.False(t, m.IsHealthy())
	sub, needs := m.NeedsSync()
	assert.True(t, needs)
	assert.Equal(t, SubsystemGraphStore, sub)
}

func TestMachine_HealthyOnlyWhenAllSynced(t *testing.T) {
	m := New(0)
	m.CompleteRebuild()
	assert.True(t, m.IsHealthy())

	m.Transition(SubsystemVectorStore, StatusDrifted)
	assert.False(t, m.IsHealthy())
	sub, needs := m.NeedsSync()
	assert.True(t, needs)
	assert.Equal(t, SubsystemVectorStore, sub)
}

func TestMachine_IncrementalRebuildTouchesOnlyIndexAndEmbeddings(t *testing.T) {
	m := New(0)
	m.CompleteRebuild()

	m.StartIncrementalRebuild()
	assert.Equal(t, StatusSynced, m.Get(SubsystemGraphStore))
	assert.Equal(t, StatusSynced, m.Get(SubsystemVectorStore))
	assert.Equal(t, StatusRebuilding, m.Get(SubsystemIndex))
	assert.Equal(t, StatusRebuilding, m.Get(SubsystemEmbeddings))
}

func TestMachine_CancelRebuildSetsAllDrifted(t *testing.T) {
	m := New(0)
	m.StartRebuild()
	m.CancelRebuild()

	for _, s := range allSubsystems {
		assert.Equal(t, StatusDrifted, m.Get(s))
	}
}

func TestMachine_HistoryIsBoundedRing(t *testing.T) {
	m := New(3)
	m.Transition(SubsystemIndex, StatusSynced)
	m.Transition(SubsystemIndex, StatusDrifted)
	m.Transition(SubsystemIndex, StatusSynced)
	m.Transition(SubsystemIndex, StatusDrifted)

	history := m.History()
	require.Len(t, history, 3)
	assert.Equal(t, StatusDrifted, history[len(history)-1].To)
}
