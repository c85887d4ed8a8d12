// Package syncstate tracks four subsystem states — graphStore, index,
// vectorStore, embeddings — each an explicit, logged transition rather
// than inferred from other state.
package syncstate

import (
	"sync"
	"time"
)

type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusSynced        Status = "synced"
	StatusDrifted        Status = "drifted"
	StatusRebuilding     Status = "rebuilding"
)

type Subsystem string

const (
	SubsystemGraphStore  Subsystem = "graphStore"
	SubsystemIndex       Subsystem = "index"
	SubsystemVectorStore Subsystem = "vectorStore"
	SubsystemEmbeddings  Subsystem = "embeddings"
)

var allSubsystems = []Subsystem{SubsystemGraphStore, SubsystemIndex, SubsystemVectorStore, SubsystemEmbeddings}

// Snapshot is one recorded transition, kept in the bounded history ring.
type Snapshot struct {
	Subsystem Subsystem
	From      Status
	To        Status
	At        time.Time
}

// Machine is the sync state machine. HistoryMaxSize bounds the ring buffer;
// zero means unbounded history growth is disabled and a default is used.
type Machine struct {
	mu             sync.RWMutex
	state          map[Subsystem]Status
	history        []Snapshot
	historyMaxSize int
}

const defaultHistoryMaxSize = 200

func New(historyMaxSize int) *Machine {
	if historyMaxSize <= 0 {
		historyMaxSize = defaultHistoryMaxSize
	}
	m := &Machine{
		state:          make(map[Subsystem]Status, len(allSubsystems)),
		historyMaxSize: historyMaxSize,
	}
	for _, s := range allSubsystems {
		m.state[s] = StatusUninitialized
	}
	return m
}

// Transition moves subsystem to a new status, recording a snapshot.
func (m *Machine) Transition(subsystem Subsystem, to Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state[subsystem]
	m.state[subsystem] = to
	m.record(Snapshot{Subsystem: subsystem, From: from, To: to, At: time.Now()})
}

func (m *Machine) record(s Snapshot) {
	m.history = append(m.history, s)
	if len(m.history) > m.historyMaxSize {
		m.history = m.history[len(m.history)-m.historyMaxSize:]
	}
}

// Get returns the current status of a subsystem.
func (m *Machine) Get(subsystem Subsystem) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state[subsystem]
}

// IsHealthy reports true iff all four subsystems are synced.
func (m *Machine) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range allSubsystems {
		if m.state[s] != StatusSynced {
			return false
		}
	}
	return true
}

// NeedsSync returns the first subsystem that is neither synced nor
// rebuilding, in the fixed iteration order graphStore, index, vectorStore,
// embeddings, or ("", false) if none qualify.
func (m *Machine) NeedsSync() (Subsystem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range allSubsystems {
		status := m.state[s]
		if status != StatusSynced && status != StatusRebuilding {
			return s, true
		}
	}
	return "", false
}

// StartRebuild sets all four subsystems to rebuilding atomically.
func (m *Machine) StartRebuild() {
	m.setAll(StatusRebuilding)
}

// CompleteRebuild sets all four subsystems to synced atomically.
func (m *Machine) CompleteRebuild() {
	m.setAll(StatusSynced)
}

// CancelRebuild sets all four subsystems back to drifted.
func (m *Machine) CancelRebuild() {
	m.setAll(StatusDrifted)
}

func (m *Machine) setAll(to Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, s := range allSubsystems {
		from := m.state[s]
		m.state[s] = to
		m.record(Snapshot{Subsystem: s, From: from, To: to, At: now})
	}
}

// StartIncrementalRebuild touches only index and embeddings, leaving
// graphStore and vectorStore as-is.
func (m *Machine) StartIncrementalRebuild() {
	m.setSubset(StatusRebuilding, SubsystemIndex, SubsystemEmbeddings)
}

func (m *Machine) CompleteIncrementalRebuild() {
	m.setSubset(StatusSynced, SubsystemIndex, SubsystemEmbeddings)
}

func (m *Machine) setSubset(to Status, subsystems ...Subsystem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, s := range subsystems {
		from := m.state[s]
		m.state[s] = to
		m.record(Snapshot{Subsystem: s, From: from, To: to, At: now})
	}
}

// History returns a copy of the recorded transitions, oldest first.
func (m *Machine) History() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, len(m.history))
	copy(out, m.history)
	return out
}
