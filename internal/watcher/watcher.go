// Package watcher implements a single-directory recursive file watcher: an
// explicit idle/detecting/debouncing/rebuilding state machine over fsnotify
// events. The batch handler is supplied by the caller so the same watcher
// serves full or incremental orchestrator runs.
package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// State is one of the four explicit watcher states.
type State string

const (
	StateIdle       State = "idle"
	StateDetecting  State = "detecting"
	StateDebouncing State = "debouncing"
	StateRebuilding State = "rebuilding"
)

const defaultDebounceMs = 500

// BatchHandler processes one drained batch of changed paths. It typically
// invokes the orchestrator's incremental build.
type BatchHandler func(ctx context.Context, paths []string) error

// Watcher is a recursive fsnotify-based watcher with an explicit debounce
// state machine.
type Watcher struct {
	root        string
	excludes    []string
	debounceDur time.Duration
	handler     BatchHandler

	fsw    *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  State
	queue  map[string]bool
	timer  *time.Timer
}

func New(root string, excludes []string, debounceMs int, handler BatchHandler) (*Watcher, error) {
	if debounceMs <= 0 {
		debounceMs = defaultDebounceMs
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:        root,
		excludes:    excludes,
		debounceDur: time.Duration(debounceMs) * time.Millisecond,
		handler:     handler,
		fsw:         fsw,
		state:       StateIdle,
		queue:       make(map[string]bool),
	}, nil
}

// State reports the watcher's current state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Start adds recursive watches under root and begins processing events.
func (w *Watcher) Start() error {
	w.ctx, w.cancel = context.WithCancel(context.Background())

	if err := w.addWatches(w.root); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.processEvents()

	return nil
}

// Stop cancels the debounce timer, closes the watcher, clears the queue,
// and returns to idle.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}

	err := w.fsw.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.queue = make(map[string]bool)
	w.state = StateIdle
	w.mu.Unlock()

	return err
}

func (w *Watcher) addWatches(root string) error {
	visited := make(map[string]bool)

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}

		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		if w.shouldIgnoreDir(path) {
			return filepath.SkipDir
		}

		if err := w.fsw.Add(path); err != nil {
			log.Printf("watcher: failed to add watch for %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) shouldIgnoreDir(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range w.excludes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, rel+"/"); ok {
			return true
		}
	}
	return strings.HasPrefix(filepath.Base(path), ".") && path != w.root
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watcher: event stream error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Op&fsnotify.Create != 0 && !w.shouldIgnoreDir(event.Name) {
			if err := w.fsw.Add(event.Name); err != nil {
				log.Printf("watcher: failed to add watch for new directory %s: %v", event.Name, err)
			}
		}
		return
	}

	if w.shouldIgnoreDir(filepath.Dir(event.Name)) {
		return
	}

	w.enqueue(event.Name)
}

// enqueue implements the "on any add/change/unlink" transition: move to
// debouncing, reset the timer, queue the path (set semantics dedupe it
// implicitly via the map).
func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateIdle {
		w.state = StateDetecting
	}

	w.queue[path] = true
	w.state = StateDebouncing

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounceDur, w.onTimerExpired)
}

// onTimerExpired runs on the debounce timer firing. If already rebuilding,
// this is a no-op — new events during rebuilding accumulate in the queue
// and the rebuild's completion callback reschedules a flush.
func (w *Watcher) onTimerExpired() {
	w.mu.Lock()
	if w.state == StateRebuilding || len(w.queue) == 0 {
		w.mu.Unlock()
		return
	}

	batch := make([]string, 0, len(w.queue))
	for p := range w.queue {
		batch = append(batch, p)
	}
	w.queue = make(map[string]bool)
	w.state = StateRebuilding
	w.mu.Unlock()

	w.wg.Add(1)
	go w.runBatch(batch)
}

func (w *Watcher) runBatch(batch []string) {
	defer w.wg.Done()

	if w.handler != nil {
		if err := w.handler(w.ctx, batch); err != nil {
			log.Printf("watcher: batch handler error: %v", err)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.queue) > 0 {
		w.state = StateDebouncing
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timer = time.AfterFunc(w.debounceDur, w.onTimerExpired)
	} else {
		w.state = StateIdle
	}
}
