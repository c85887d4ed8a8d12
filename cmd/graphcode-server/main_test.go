package main

import (
	"context"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/graphcode-dev/graphcode-server/internal/config"
)

func newTestContext(t *testing.T, root string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String("root", root, "")
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestLoadConfig_UsesRootFlag(t *testing.T) {
	root := t.TempDir()
	cfg, err := loadConfig(newTestContext(t, root))
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Project.WorkspaceRoot)
}

func TestBuildCollaborators_DegradeWithoutLiveBackends(t *testing.T) {
	root := t.TempDir()
	cfg, err := config.Load(root)
	require.NoError(t, err)

	collab, err := buildCollaborators(cfg)
	require.NoError(t, err)
	require.NotNil(t, collab.orchestrator)
	require.NotNil(t, collab.retriever)
	require.NotNil(t, collab.coordination)
	require.NotNil(t, collab.memory)
	require.NotNil(t, collab.drift)

	report := collab.drift.Detect(context.Background(), collab.index, cfg.Project.ProjectID)
	assert.False(t, report.NodeDrift)
	assert.NotEmpty(t, report.Recommendations)
}

func TestBuildCollaborators_McpDepsWireEveryCollaborator(t *testing.T) {
	root := t.TempDir()
	cfg, err := config.Load(root)
	require.NoError(t, err)

	collab, err := buildCollaborators(cfg)
	require.NoError(t, err)

	deps := collab.mcpDeps()
	assert.Same(t, collab.sessions, deps.Sessions)
	assert.Same(t, collab.orchestrator, deps.Orchestrator)
	assert.Same(t, collab.retriever, deps.Retriever)
	assert.Same(t, collab.coordination, deps.Coordination)
	assert.Same(t, collab.memory, deps.Memory)
	assert.Same(t, collab.drift, deps.Drift)
	assert.Same(t, collab.store, deps.Store)
	assert.Same(t, collab.index, deps.Index)
}
