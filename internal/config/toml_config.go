package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// legacyTOML mirrors the deprecated .graphcode.toml shape kept around for
// projects that have not migrated to .graphcode.kdl yet.
type legacyTOML struct {
	Project struct {
		Root      string `toml:"root"`
		SourceDir string `toml:"source_dir"`
		ID        string `toml:"id"`
	} `toml:"project"`
	Index struct {
		MaxFileSize      int64 `toml:"max_file_size"`
		MaxTotalSizeMB   int64 `toml:"max_total_size_mb"`
		MaxFileCount     int   `toml:"max_file_count"`
		FollowSymlinks   bool  `toml:"follow_symlinks"`
		RespectGitignore *bool `toml:"respect_gitignore"`
		WatchMode        *bool `toml:"watch_mode"`
		WatchDebounceMs  int   `toml:"watch_debounce_ms"`
		IndexDocs        *bool `toml:"index_docs"`
	} `toml:"index"`
	Store struct {
		BoltURI          string `toml:"bolt_uri"`
		Username         string `toml:"username"`
		Password         string `toml:"password"`
		ConnectTimeoutMs int    `toml:"connect_timeout_ms"`
	} `toml:"store"`
	Vector struct {
		Endpoint string `toml:"endpoint"`
		Enabled  *bool  `toml:"enabled"`
	} `toml:"vector"`
	Sync struct {
		RebuildThresholdMs       int    `toml:"rebuild_threshold_ms"`
		AllowRuntimePathFallback *bool  `toml:"allow_runtime_path_fallback"`
		StateHistoryMaxSize      int    `toml:"state_history_max_size"`
		SummarizerURL            string `toml:"summarizer_url"`
	} `toml:"sync"`
	Search struct {
		DefaultLimit  int     `toml:"default_limit"`
		RRFK          int     `toml:"rrf_k"`
		PPRDamping    float64 `toml:"ppr_damping"`
		PPRIterations int     `toml:"ppr_iterations"`
		PPRMaxResults int     `toml:"ppr_max_results"`
	} `toml:"search"`
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

// LoadTOML is the legacy fallback for projects that have not migrated their
// .graphcode.toml to the KDL format yet. New projects should prefer
// LoadKDL; this exists only so an existing .graphcode.toml keeps working.
func LoadTOML(root string) (*Config, error) {
	tomlPath := filepath.Join(root, ".graphcode.toml")
	content, err := os.ReadFile(tomlPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read .graphcode.toml: %w", err)
	}

	var legacy legacyTOML
	if err := toml.Unmarshal(content, &legacy); err != nil {
		return nil, fmt.Errorf("failed to parse .graphcode.toml: %w", err)
	}

	cfg := defaultConfig()

	cfg.Project.WorkspaceRoot = legacy.Project.Root
	cfg.Project.SourceDir = legacy.Project.SourceDir
	cfg.Project.ProjectID = legacy.Project.ID

	if legacy.Index.MaxFileSize > 0 {
		cfg.Index.MaxFileSize = legacy.Index.MaxFileSize
	}
	if legacy.Index.MaxTotalSizeMB > 0 {
		cfg.Index.MaxTotalSizeMB = legacy.Index.MaxTotalSizeMB
	}
	if legacy.Index.MaxFileCount > 0 {
		cfg.Index.MaxFileCount = legacy.Index.MaxFileCount
	}
	cfg.Index.FollowSymlinks = legacy.Index.FollowSymlinks
	if legacy.Index.RespectGitignore != nil {
		cfg.Index.RespectGitignore = *legacy.Index.RespectGitignore
	}
	if legacy.Index.WatchMode != nil {
		cfg.Index.WatchMode = *legacy.Index.WatchMode
	}
	if legacy.Index.WatchDebounceMs > 0 {
		cfg.Index.WatchDebounceMs = legacy.Index.WatchDebounceMs
	}
	if legacy.Index.IndexDocs != nil {
		cfg.Index.IndexDocs = *legacy.Index.IndexDocs
	}

	if legacy.Store.BoltURI != "" {
		cfg.Store.BoltURI = legacy.Store.BoltURI
	}
	cfg.Store.Username = legacy.Store.Username
	cfg.Store.Password = legacy.Store.Password
	if legacy.Store.ConnectTimeoutMs > 0 {
		cfg.Store.ConnectTimeoutMs = legacy.Store.ConnectTimeoutMs
	}

	if legacy.Vector.Endpoint != "" {
		cfg.Vector.Endpoint = legacy.Vector.Endpoint
	}
	if legacy.Vector.Enabled != nil {
		cfg.Vector.Enabled = *legacy.Vector.Enabled
	}

	if legacy.Sync.RebuildThresholdMs > 0 {
		cfg.Sync.RebuildThresholdMs = legacy.Sync.RebuildThresholdMs
	}
	if legacy.Sync.AllowRuntimePathFallback != nil {
		cfg.Sync.AllowRuntimePathFallback = *legacy.Sync.AllowRuntimePathFallback
	}
	if legacy.Sync.StateHistoryMaxSize > 0 {
		cfg.Sync.StateHistoryMaxSize = legacy.Sync.StateHistoryMaxSize
	}
	cfg.Sync.SummarizerURL = legacy.Sync.SummarizerURL

	if legacy.Search.DefaultLimit > 0 {
		cfg.Search.DefaultLimit = legacy.Search.DefaultLimit
	}
	if legacy.Search.RRFK > 0 {
		cfg.Search.RRFK = legacy.Search.RRFK
	}
	if legacy.Search.PPRDamping > 0 {
		cfg.Search.PPRDamping = legacy.Search.PPRDamping
	}
	if legacy.Search.PPRIterations > 0 {
		cfg.Search.PPRIterations = legacy.Search.PPRIterations
	}
	if legacy.Search.PPRMaxResults > 0 {
		cfg.Search.PPRMaxResults = legacy.Search.PPRMaxResults
	}

	if len(legacy.Include) > 0 {
		cfg.Include = legacy.Include
	}
	if len(legacy.Exclude) > 0 {
		cfg.Exclude = legacy.Exclude
	}

	return cfg, nil
}
