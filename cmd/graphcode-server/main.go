package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/graphcode-dev/graphcode-server/internal/config"
	"github.com/graphcode-dev/graphcode-server/internal/mcptools"
	"github.com/graphcode-dev/graphcode-server/internal/orchestrator"
	"github.com/graphcode-dev/graphcode-server/internal/session"
	"github.com/graphcode-dev/graphcode-server/internal/version"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		root = wd
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", root, err)
	}
	return cfg, nil
}

func main() {
	app := &cli.App{
		Name:  "graphcode-server",
		Usage: "Property-graph code intelligence and retrieval server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "Project workspace root (default: current directory)"},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the MCP server over stdio",
				Action: serveCommand,
			},
			{
				Name:  "rebuild",
				Usage: "Run one build transaction against the configured store",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "full", Usage: "Force a full rebuild instead of incremental selection"},
				},
				Action: rebuildCommand,
			},
			{
				Name:   "status",
				Usage:  "Print the resolved project context and configuration",
				Action: statusCommand,
			},
			{
				Name:   "detect-drift",
				Usage:  "Compare the in-memory index against the store and vector backends",
				Action: detectDriftCommand,
			},
			{
				Name:   "version",
				Usage:  "Print the server version",
				Action: func(c *cli.Context) error { fmt.Println(version.FullInfo()); return nil },
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	collab, err := buildCollaborators(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize collaborators: %w", err)
	}

	sess, err := session.ResolveProjectContext(session.ContextArgs{
		WorkspaceRoot: cfg.Project.WorkspaceRoot,
		SourceDir:     cfg.Project.SourceDir,
		ProjectID:     cfg.Project.ProjectID,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to resolve project context: %w", err)
	}

	var watchHandler func(context.Context, []string) error
	if cfg.Index.WatchMode {
		watchHandler = func(ctx context.Context, paths []string) error {
			_, err := collab.orchestrator.Run(ctx, orchestrator.Input{
				Mode:          orchestrator.ModeIncremental,
				WorkspaceRoot: sess.WorkspaceRoot,
				ProjectID:     sess.ProjectID,
				SourceDir:     sess.SourceDir,
				ChangedFiles:  paths,
				IndexDocs:     cfg.Index.IndexDocs,
			})
			if err == nil {
				collab.coordination.InvalidateStaleClaims(ctx, sess.ProjectID)
			}
			return err
		}
	}
	if err := collab.sessions.SetContext(sess, cfg.Exclude, cfg.Index.WatchDebounceMs, watchHandler); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer collab.sessions.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := collab.orchestrator.Run(ctx, orchestrator.Input{
		Mode:          orchestrator.ModeIncremental,
		WorkspaceRoot: sess.WorkspaceRoot,
		ProjectID:     sess.ProjectID,
		SourceDir:     sess.SourceDir,
		IndexDocs:     cfg.Index.IndexDocs,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: initial build failed, serving against a possibly stale index: %v\n", err)
	}

	srv := mcptools.NewServer("graphcode-server", version.Version, collab.mcpDeps())
	return srv.Underlying().Run(ctx, &mcp.StdioTransport{})
}

func rebuildCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	collab, err := buildCollaborators(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize collaborators: %w", err)
	}

	mode := orchestrator.ModeIncremental
	if c.Bool("full") {
		mode = orchestrator.ModeFull
	}

	result, err := collab.orchestrator.Run(context.Background(), orchestrator.Input{
		Mode:          mode,
		WorkspaceRoot: cfg.Project.WorkspaceRoot,
		ProjectID:     cfg.Project.ProjectID,
		SourceDir:     cfg.Project.SourceDir,
		IndexDocs:     cfg.Index.IndexDocs,
	})
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func statusCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	sess, err := session.ResolveProjectContext(session.ContextArgs{
		WorkspaceRoot: cfg.Project.WorkspaceRoot,
		SourceDir:     cfg.Project.SourceDir,
		ProjectID:     cfg.Project.ProjectID,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to resolve project context: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"session": sess,
		"store":   cfg.Store.BoltURI,
		"vector":  cfg.Vector.Endpoint,
		"version": version.Version,
	})
}

func detectDriftCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	collab, err := buildCollaborators(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize collaborators: %w", err)
	}

	report := collab.drift.Detect(context.Background(), collab.index, cfg.Project.ProjectID)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
