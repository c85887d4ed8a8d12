package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL attempts to load configuration from <root>/.graphcode.kdl.
func LoadKDL(root string) (*Config, error) {
	kdlPath := filepath.Join(root, ".graphcode.kdl")
	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read .graphcode.kdl: %w", err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}

	if cfg.Project.WorkspaceRoot != "" && !filepath.IsAbs(cfg.Project.WorkspaceRoot) {
		cfg.Project.WorkspaceRoot = filepath.Clean(filepath.Join(root, cfg.Project.WorkspaceRoot))
	} else if cfg.Project.WorkspaceRoot == "" {
		if abs, err := filepath.Abs(root); err == nil {
			cfg.Project.WorkspaceRoot = abs
		} else {
			cfg.Project.WorkspaceRoot = root
		}
	}

	return cfg, nil
}

func parseKDL(content string) (*Config, error) {
	cfg := defaultConfig()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Project.WorkspaceRoot = v })
				assignSimpleString(cn, "source_dir", func(v string) { cfg.Project.SourceDir = v })
				assignSimpleString(cn, "id", func(v string) { cfg.Project.ProjectID = v })
			}
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_file_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.MaxFileSize = int64(v)
					}
				case "max_total_size_mb":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.MaxTotalSizeMB = int64(v)
					}
				case "max_file_count":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.MaxFileCount = v
					}
				case "follow_symlinks":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.FollowSymlinks = b
					}
				case "respect_gitignore":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.RespectGitignore = b
					}
				case "watch_mode":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.WatchMode = b
					}
				case "watch_debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.WatchDebounceMs = v
					}
				case "index_docs":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Index.IndexDocs = b
					}
				}
			}
		case "store":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "bolt_uri":
					if s, ok := firstStringArg(cn); ok {
						cfg.Store.BoltURI = s
					}
				case "username":
					if s, ok := firstStringArg(cn); ok {
						cfg.Store.Username = s
					}
				case "password":
					if s, ok := firstStringArg(cn); ok {
						cfg.Store.Password = s
					}
				case "connect_timeout_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Store.ConnectTimeoutMs = v
					}
				}
			}
		case "vector":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "endpoint":
					if s, ok := firstStringArg(cn); ok {
						cfg.Vector.Endpoint = s
					}
				case "enabled":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Vector.Enabled = b
					}
				}
			}
		case "sync":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "rebuild_threshold_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Sync.RebuildThresholdMs = v
					}
				case "allow_runtime_path_fallback":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Sync.AllowRuntimePathFallback = b
					}
				case "state_history_max_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Sync.StateHistoryMaxSize = v
					}
				case "summarizer_url":
					if s, ok := firstStringArg(cn); ok {
						cfg.Sync.SummarizerURL = s
					}
				}
			}
		case "search":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "default_limit":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.DefaultLimit = v
					}
				case "rrf_k":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.RRFK = v
					}
				case "ppr_damping":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Search.PPRDamping = v
					}
				case "ppr_iterations":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.PPRIterations = v
					}
				case "ppr_max_results":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.PPRMaxResults = v
					}
				}
			}
		case "include":
			cfg.Include = append(cfg.Include, collectStringArgs(n)...)
		case "exclude":
			cfg.Exclude = collectStringArgs(n)
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		log.Printf("WARNING: invalid float value for %q in KDL config, got %T", nodeName(n), n.Arguments[0].Value)
		return 0, false
	}
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) != target {
		return
	}
	if s, ok := firstStringArg(n); ok {
		set(s)
	}
}
