// Package cache holds the caches the orchestrator and retriever lean on:
// the persistent per-file hash cache that drives incremental selection,
// and a lock-free in-process TTL cache for hot-path result lookups.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Entry is one cached file's fingerprint.
type Entry struct {
	Hash      uint64    `json:"hash"`
	LOC       int       `json:"loc"`
	Timestamp time.Time `json:"timestamp"`
}

// HashCache is the persistent relativePath -> Entry mapping. It is
// advisory: correctness of the build never depends on it, only which
// files get re-parsed.
type HashCache struct {
	mu      sync.RWMutex
	path    string
	entries map[string]Entry
	dirty   bool
}

// NewHashCache opens (or initializes empty) the cache file at path. A
// missing file is not an error — it just means every file looks changed.
func NewHashCache(path string) (*HashCache, error) {
	hc := &HashCache{
		path:    path,
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return hc, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return hc, nil
	}
	if err := json.Unmarshal(data, &hc.entries); err != nil {
		// A corrupt cache file degrades to "everything changed" rather than
		// failing the build — it is advisory, per spec.
		hc.entries = make(map[string]Entry)
	}
	return hc, nil
}

// HashContent computes the fast content hash used for change detection.
func HashContent(content []byte) uint64 {
	return xxhash.Sum64(content)
}

// Get returns the cached entry for relativePath, if any.
func (hc *HashCache) Get(relativePath string) (Entry, bool) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	e, ok := hc.entries[relativePath]
	return e, ok
}

// Set records a new fingerprint for relativePath.
func (hc *HashCache) Set(relativePath string, hash uint64, loc int) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.entries[relativePath] = Entry{Hash: hash, LOC: loc, Timestamp: time.Now()}
	hc.dirty = true
}

// HasChanged reports whether relativePath's current hash differs from what
// is cached. An absent path always counts as changed.
func (hc *HashCache) HasChanged(relativePath string, currentHash uint64) bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	e, ok := hc.entries[relativePath]
	if !ok {
		return true
	}
	return e.Hash != currentHash
}

// Clear empties the cache, e.g. ahead of a full rebuild.
func (hc *HashCache) Clear() {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.entries = make(map[string]Entry)
	hc.dirty = true
}

// Len reports the number of cached entries.
func (hc *HashCache) Len() int {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return len(hc.entries)
}

// Save persists the cache atomically: write to a temp file in the same
// directory, then rename over the target, so a crash mid-write never leaves
// readers with a truncated file.
func (hc *HashCache) Save() error {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if !hc.dirty {
		return nil
	}

	data, err := json.Marshal(hc.entries)
	if err != nil {
		return err
	}

	dir := filepath.Dir(hc.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".hashcache-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, hc.path); err != nil {
		os.Remove(tmpName)
		return err
	}

	hc.dirty = false
	return nil
}
