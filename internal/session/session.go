// Package session implements project/workspace context resolution (C12):
// the {workspaceRoot, sourceDir, projectId, projectFingerprint} tuple every
// tool call is scoped to, merged from explicit args, the active session,
// and environment defaults, plus the runtime-path fallback and
// watcher-lifecycle rules that come with changing context.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"

	graphcodeerrors "github.com/graphcode-dev/graphcode-server/internal/errors"
	"github.com/graphcode-dev/graphcode-server/internal/watcher"
)

// Environment variable names consulted as the last-resort default, below
// explicit tool args and the currently active session.
const (
	EnvWorkspaceRoot = "GRAPHCODE_WORKSPACE_ROOT"
	EnvProjectID     = "GRAPHCODE_PROJECT_ID"
)

// Session holds the project-scoped coordinates every orchestrator run,
// retrieval call, and coordination operation is resolved against.
type Session struct {
	WorkspaceRoot      string
	SourceDir          string
	ProjectID          string
	ProjectFingerprint string
}

// ContextArgs is what a tool call may supply to override the active
// session; any zero-value field falls through to the active session, then
// to environment defaults, then to the spec's hardcoded defaults.
type ContextArgs struct {
	WorkspaceRoot string
	SourceDir     string
	ProjectID     string
}

// ResolveProjectContext merges args over the active session over
// environment defaults: projectId defaults to basename(workspaceRoot);
// sourceDir defaults to <workspaceRoot>/src. A relative sourceDir in args
// is resolved against the (possibly newly supplied) workspaceRoot.
func ResolveProjectContext(args ContextArgs, active *Session) (*Session, error) {
	workspaceRoot := firstNonEmpty(args.WorkspaceRoot, activeWorkspaceRoot(active), os.Getenv(EnvWorkspaceRoot))
	if workspaceRoot == "" {
		return nil, graphcodeerrors.NewByCode(graphcodeerrors.CodeWorkspaceNotFound, "no workspaceRoot supplied, active, or set in the environment").
			WithHint("pass workspaceRoot explicitly or set " + EnvWorkspaceRoot)
	}
	if abs, err := filepath.Abs(workspaceRoot); err == nil {
		workspaceRoot = abs
	}

	projectID := firstNonEmpty(args.ProjectID, activeProjectIDIfSameRoot(active, workspaceRoot), os.Getenv(EnvProjectID), filepath.Base(workspaceRoot))

	sourceDir := args.SourceDir
	switch {
	case sourceDir == "" && active != nil && active.WorkspaceRoot == workspaceRoot && active.SourceDir != "":
		sourceDir = active.SourceDir
	case sourceDir == "":
		sourceDir = filepath.Join(workspaceRoot, "src")
	case !filepath.IsAbs(sourceDir):
		sourceDir = filepath.Join(workspaceRoot, sourceDir)
	}

	return &Session{
		WorkspaceRoot:      workspaceRoot,
		SourceDir:          sourceDir,
		ProjectID:          projectID,
		ProjectFingerprint: fingerprint(workspaceRoot, sourceDir, projectID),
	}, nil
}

func activeWorkspaceRoot(active *Session) string {
	if active == nil {
		return ""
	}
	return active.WorkspaceRoot
}

func activeProjectIDIfSameRoot(active *Session, workspaceRoot string) string {
	if active == nil || active.WorkspaceRoot != workspaceRoot {
		return ""
	}
	return active.ProjectID
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// fingerprint is a stable identifier for a (workspaceRoot, sourceDir,
// projectId) tuple, reusing the xxhash dependency already wired for
// internal/cache's content hashing rather than adding a second one.
func fingerprint(workspaceRoot, sourceDir, projectID string) string {
	return fmt.Sprintf("%x", xxhash.Sum64String(workspaceRoot+"|"+sourceDir+"|"+projectID))
}

// AdaptResult reports whether the runtime-path fallback kicked in.
type AdaptResult struct {
	UsedFallback   bool
	FallbackReason string
}

// AdaptWorkspaceForRuntime checks whether s.WorkspaceRoot is reachable from
// the current runtime — the common case being a client sending a host path
// that doesn't exist inside this process's container. When unreachable and
// allowFallback is set, it swaps to the conventional mounted path
// (mountRoot/basename(workspaceRoot)) and preserves sourceDir's relative
// position under the new root. Returns the original session unchanged when
// no adaptation was needed.
func AdaptWorkspaceForRuntime(s *Session, allowFallback bool, mountRoot string) (*Session, AdaptResult, error) {
	if pathIsReachableDir(s.WorkspaceRoot) {
		return s, AdaptResult{}, nil
	}

	if !allowFallback || mountRoot == "" {
		return nil, AdaptResult{}, graphcodeerrors.NewByCode(graphcodeerrors.CodeWorkspaceSandboxed, "workspace root unreachable from current runtime").
			WithProject(s.ProjectID).
			WithHint("enable sync.allowRuntimePathFallback and configure a mounted path, or correct workspaceRoot")
	}

	fallbackRoot := filepath.Join(mountRoot, filepath.Base(s.WorkspaceRoot))
	if !pathIsReachableDir(fallbackRoot) {
		return nil, AdaptResult{}, graphcodeerrors.NewByCode(graphcodeerrors.CodeWorkspaceNotFound, "workspace root unreachable and the mounted fallback path does not exist").
			WithProject(s.ProjectID).
			WithHint("mount the workspace at " + fallbackRoot)
	}

	adapted := *s
	adapted.WorkspaceRoot = fallbackRoot
	adapted.SourceDir = filepath.Join(fallbackRoot, relSourceDir(s.WorkspaceRoot, s.SourceDir))
	adapted.ProjectFingerprint = fingerprint(adapted.WorkspaceRoot, adapted.SourceDir, adapted.ProjectID)

	return &adapted, AdaptResult{
		UsedFallback:   true,
		FallbackReason: fmt.Sprintf("workspace root %s unreachable from current runtime; swapped to mounted path %s", s.WorkspaceRoot, fallbackRoot),
	}, nil
}

func relSourceDir(workspaceRoot, sourceDir string) string {
	rel, err := filepath.Rel(workspaceRoot, sourceDir)
	if err != nil || rel == "." {
		return "src"
	}
	return rel
}

func pathIsReachableDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Manager owns the single active session for this process and the watcher
// bound to its source directory, swapping both atomically on context
// change — "changing context stops any active watcher and starts a new
// one bound to the new source directory".
type Manager struct {
	mu      sync.Mutex
	active  *Session
	watcher *watcher.Watcher
}

func NewManager() *Manager {
	return &Manager{}
}

// Active returns the currently active session, or nil if none has been set.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// SetContext stops any running watcher, adopts s as the active session,
// and — when handler is non-nil — starts a new watcher bound to s's
// source directory.
func (m *Manager) SetContext(s *Session, excludes []string, debounceMs int, handler watcher.BatchHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watcher != nil {
		if err := m.watcher.Stop(); err != nil {
			return fmt.Errorf("stopping previous watcher: %w", err)
		}
		m.watcher = nil
	}

	m.active = s

	if handler == nil {
		return nil
	}

	w, err := watcher.New(s.SourceDir, excludes, debounceMs, handler)
	if err != nil {
		return fmt.Errorf("starting watcher for %s: %w", s.SourceDir, err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("starting watcher for %s: %w", s.SourceDir, err)
	}
	m.watcher = w
	return nil
}

// Stop stops the active watcher, if any, leaving the active session intact.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher == nil {
		return nil
	}
	err := m.watcher.Stop()
	m.watcher = nil
	return err
}
