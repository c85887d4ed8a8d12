package config

import (
	"fmt"

	graphcodeerrors "github.com/graphcode-dev/graphcode-server/internal/errors"
)

// Validator validates configuration and sets smart defaults.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults:
// per-section validation first, then defaults that depend on runtime
// capabilities.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateProject(&cfg.Project); err != nil {
		return graphcodeerrors.NewByCode(graphcodeerrors.CodeInvalidInput, "invalid project config").WithUnderlying(err)
	}

	if err := v.validateIndex(&cfg.Index); err != nil {
		return graphcodeerrors.NewByCode(graphcodeerrors.CodeInvalidInput, "invalid index config").WithUnderlying(err)
	}

	if err := v.validateStore(&cfg.Store); err != nil {
		return graphcodeerrors.NewByCode(graphcodeerrors.CodeInvalidInput, "invalid store config").WithUnderlying(err)
	}

	if err := v.validateSearch(&cfg.Search); err != nil {
		return graphcodeerrors.NewByCode(graphcodeerrors.CodeInvalidInput, "invalid search config").WithUnderlying(err)
	}

	v.setSmartDefaults(cfg)
	return nil
}

func (v *Validator) validateProject(project *Project) error {
	if project.WorkspaceRoot == "" {
		return fmt.Errorf("project workspace root cannot be empty")
	}
	return nil
}

func (v *Validator) validateIndex(index *Index) error {
	if index.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive, got %d", index.MaxFileSize)
	}
	if index.MaxFileSize > 100*1024*1024 {
		return fmt.Errorf("max_file_size should not exceed 100MB, got %d", index.MaxFileSize)
	}
	if index.MaxTotalSizeMB <= 0 {
		return fmt.Errorf("max_total_size_mb must be positive, got %d", index.MaxTotalSizeMB)
	}
	if index.MaxFileCount <= 0 {
		return fmt.Errorf("max_file_count must be positive, got %d", index.MaxFileCount)
	}
	if index.WatchDebounceMs < 0 {
		return fmt.Errorf("watch_debounce_ms cannot be negative, got %d", index.WatchDebounceMs)
	}
	return nil
}

func (v *Validator) validateStore(store *Store) error {
	if store.BoltURI == "" {
		return fmt.Errorf("store bolt_uri cannot be empty")
	}
	if store.ConnectTimeoutMs <= 0 {
		return fmt.Errorf("connect_timeout_ms must be positive, got %d", store.ConnectTimeoutMs)
	}
	return nil
}

func (v *Validator) validateSearch(search *SearchTuning) error {
	if search.DefaultLimit <= 0 {
		return fmt.Errorf("default_limit must be positive, got %d", search.DefaultLimit)
	}
	if search.RRFK <= 0 {
		return fmt.Errorf("rrf_k must be positive, got %d", search.RRFK)
	}
	if search.PPRDamping <= 0 || search.PPRDamping >= 1 {
		return fmt.Errorf("ppr_damping must be in (0,1), got %f", search.PPRDamping)
	}
	if search.PPRIterations <= 0 {
		return fmt.Errorf("ppr_iterations must be positive, got %d", search.PPRIterations)
	}
	return nil
}

// setSmartDefaults fills in runtime-dependent defaults the validator doesn't
// reject the absence of.
func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.Project.SourceDir == "" {
		cfg.Project.SourceDir = "src"
	}
	if cfg.Project.ProjectID == "" && cfg.Project.WorkspaceRoot != "" {
		cfg.Project.ProjectID = baseName(cfg.Project.WorkspaceRoot)
	}
	if cfg.Index.WatchDebounceMs == 0 {
		cfg.Index.WatchDebounceMs = 500
	}
	if cfg.Vector.Collections == nil {
		cfg.Vector.Collections = map[string]string{
			"functions": "functions",
			"classes":   "classes",
			"files":     "files",
			"sections":  "sections",
		}
	}
}

func baseName(path string) string {
	i := len(path) - 1
	for i >= 0 && (path[i] == '/' || path[i] == '\\') {
		i--
	}
	end := i + 1
	for i >= 0 && path[i] != '/' && path[i] != '\\' {
		i--
	}
	return path[i+1 : end]
}

// ValidateConfig is a convenience wrapper for quick validation.
func ValidateConfig(cfg *Config) error {
	return NewValidator().ValidateAndSetDefaults(cfg)
}
