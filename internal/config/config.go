package config

import (
	"os"
	"runtime"

	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// Config is the full process configuration: workspace/session defaults,
// index discovery, store connections, and retrieval tuning.
type Config struct {
	Version int
	Project Project
	Index   Index
	Store   Store
	Vector  Vector
	Sync    Sync
	Search  SearchTuning

	Include []string
	Exclude []string
}

// Project holds the session context fields: workspaceRoot, sourceDir,
// projectId all default from here unless a session overrides them.
type Project struct {
	WorkspaceRoot string
	SourceDir     string // default "src", kept relative; session.ResolveProjectContext resolves it against WorkspaceRoot
	ProjectID     string // default basename(workspaceRoot)
}

type Index struct {
	MaxFileSize      int64
	MaxTotalSizeMB   int64
	MaxFileCount     int
	FollowSymlinks   bool
	RespectGitignore bool
	WatchMode        bool
	WatchDebounceMs  int // default 500
	IndexDocs        bool
}

// Store configures the graph store client (C4). Host/port/credentials are
// intentionally not given dev-friendly defaults beyond "localhost:7687" —
// the out-of-scope graph engine is assumed provisioned externally.
type Store struct {
	BoltURI          string
	Username         string
	Password         string
	ConnectTimeoutMs int
}

// Vector configures the vector-store client. Collections map kind ->
// collection name so functions/classes/files/sections can live in separate
// collections.
type Vector struct {
	Endpoint    string
	Collections map[string]string
	Enabled     bool
}

// Sync tunes the async/background build and cancellation/timeout behavior.
type Sync struct {
	RebuildThresholdMs       int
	AllowRuntimePathFallback bool
	StateHistoryMaxSize      int
	SummarizerURL            string // optional; empty means summaries are ""
}

// SearchTuning holds the hybrid retriever and PPR defaults.
type SearchTuning struct {
	DefaultLimit  int
	RRFK          int
	PPRDamping    float64
	PPRIterations int
	PPRMaxResults int
}

// Load resolves configuration by merging a global base file under a
// project file, falling back to built-in defaults when neither exists.
func Load(workspaceRoot string) (*Config, error) {
	var base *Config
	if home, err := os.UserHomeDir(); err == nil {
		if c, err := LoadKDL(home); err == nil && c != nil {
			base = c
		}
	}

	var project *Config
	if c, err := LoadKDL(workspaceRoot); err != nil {
		return nil, err
	} else if c != nil {
		project = c
	} else if c, err := LoadTOML(workspaceRoot); err != nil {
		return nil, err
	} else if c != nil {
		project = c
	}

	var cfg *Config
	switch {
	case base != nil && project != nil:
		cfg = mergeConfigs(base, project)
	case project != nil:
		cfg = project
	case base != nil:
		cfg = base
	default:
		cfg = defaultConfig()
	}

	if cfg.Project.WorkspaceRoot == "" {
		cfg.Project.WorkspaceRoot = workspaceRoot
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Version: 1,
		Index: Index{
			MaxFileSize:      types.DefaultMaxFileSize,
			MaxTotalSizeMB:   types.DefaultMaxTotalSizeMB,
			MaxFileCount:     types.DefaultMaxFileCount,
			FollowSymlinks:   false,
			RespectGitignore: true,
			WatchMode:        true,
			WatchDebounceMs:  500,
			IndexDocs:        true,
		},
		Store: Store{
			BoltURI:          "bolt://localhost:7687",
			ConnectTimeoutMs: 5000,
		},
		Vector: Vector{
			Endpoint: "localhost:6334",
			Collections: map[string]string{
				"functions": "functions",
				"classes":   "classes",
				"files":     "files",
				"sections":  "sections",
			},
			Enabled: true,
		},
		Sync: Sync{
			RebuildThresholdMs:       3000,
			AllowRuntimePathFallback: true,
			StateHistoryMaxSize:      200,
		},
		Search: SearchTuning{
			DefaultLimit:  20,
			RRFK:          60,
			PPRDamping:    0.85,
			PPRIterations: 20,
			PPRMaxResults: 500,
		},
		Include: []string{},
		Exclude: defaultExcludes(),
	}
}

func defaultExcludes() []string {
	return []string{
		"**/.git/**",
		"**/.*/**",
		"**/node_modules/**",
		"**/vendor/**",
		"**/dist/**",
		"**/build/**",
		"**/out/**",
		"**/target/**",
		"**/bin/**",
		"**/obj/**",
		"**/__pycache__/**",
		"**/*.min.js",
	}
}

// mergeConfigs merges a base config with a project config: project
// overrides base, but base exclusions are preserved and deduplicated.
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	if len(base.Exclude) > 0 {
		seen := make(map[string]bool, len(base.Exclude)+len(project.Exclude))
		var out []string
		for _, p := range append(append([]string{}, base.Exclude...), project.Exclude...) {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
		merged.Exclude = out
	}

	if len(project.Include) == 0 && len(base.Include) > 0 {
		merged.Include = base.Include
	}

	return &merged
}

// EffectiveWorkers returns the parallel file-worker count, auto-detecting
// from NumCPU when unset.
func EffectiveWorkers(configured int) int {
	if configured > 0 {
		return configured
	}
	if n := runtime.NumCPU() - 1; n > 0 {
		return n
	}
	return 1
}
