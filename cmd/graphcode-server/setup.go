package main

import (
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/graphcode-dev/graphcode-server/internal/cache"
	"github.com/graphcode-dev/graphcode-server/internal/config"
	"github.com/graphcode-dev/graphcode-server/internal/coordination"
	"github.com/graphcode-dev/graphcode-server/internal/drift"
	"github.com/graphcode-dev/graphcode-server/internal/graphstore"
	"github.com/graphcode-dev/graphcode-server/internal/mcptools"
	"github.com/graphcode-dev/graphcode-server/internal/memindex"
	"github.com/graphcode-dev/graphcode-server/internal/memory"
	"github.com/graphcode-dev/graphcode-server/internal/orchestrator"
	"github.com/graphcode-dev/graphcode-server/internal/retriever"
	"github.com/graphcode-dev/graphcode-server/internal/session"
	"github.com/graphcode-dev/graphcode-server/internal/vectorstore"
)

// defaultVectorDim is the embedding width assumed for the vector store's
// collections when the config doesn't say otherwise; 768 matches the most
// common small embedding models (e.g. all-mpnet-base-v2).
const defaultVectorDim = 768

// collaborators is every long-lived object a command builds once from cfg
// and shares across its tool calls or build transactions.
type collaborators struct {
	cfg          *config.Config
	store        *graphstore.Client
	vector       *vectorstore.Client
	index        *memindex.Index
	hashCache    *cache.HashCache
	orchestrator *orchestrator.Orchestrator
	retriever    *retriever.Retriever
	coordination *coordination.Manager
	memory       *memory.Manager
	drift        *drift.Detector
	sessions     *session.Manager
}

func buildCollaborators(cfg *config.Config) (*collaborators, error) {
	store := graphstore.NewClient(cfg.Store.BoltURI, cfg.Store.Username, cfg.Store.Password,
		time.Duration(cfg.Store.ConnectTimeoutMs)*time.Millisecond)

	var vector *vectorstore.Client
	if cfg.Vector.Enabled {
		host, portStr, err := net.SplitHostPort(cfg.Vector.Endpoint)
		if err != nil {
			host, portStr = cfg.Vector.Endpoint, "6334"
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			port = 6334
		}
		vector = vectorstore.NewClient(host, port, "", false, defaultVectorDim)
	}

	index := memindex.New()

	hashCachePath := filepath.Join(cfg.Project.WorkspaceRoot, ".graphcode", "hashes.json")
	hc, err := cache.NewHashCache(hashCachePath)
	if err != nil {
		return nil, err
	}

	return &collaborators{
		cfg:          cfg,
		store:        store,
		vector:       vector,
		index:        index,
		hashCache:    hc,
		orchestrator: orchestrator.New(store, index, hc, cfg.Index.RespectGitignore),
		retriever:    retriever.New(store, index, vector, nil),
		coordination: coordination.NewManager(store, index),
		memory:       memory.NewManager(store),
		drift:        drift.New(store, vector),
		sessions:     session.NewManager(),
	}, nil
}

func (c *collaborators) mcpDeps() *mcptools.Deps {
	return &mcptools.Deps{
		Sessions:     c.sessions,
		Orchestrator: c.orchestrator,
		Retriever:    c.retriever,
		Coordination: c.coordination,
		Memory:       c.memory,
		Drift:        c.drift,
		Store:        c.store,
		Index:        c.index,
	}
}
