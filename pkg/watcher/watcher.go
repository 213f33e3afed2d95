// Package watcher turns filesystem change notifications into indexer
// calls: a startup scan reconciling offline changes against the persisted
// file-state store, live fsnotify events debounced per path, and
// ignore-file reload reconciliation.
package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flashgrep/flashgrep/pkg/filestate"
	"github.com/flashgrep/flashgrep/pkg/ignore"
	"github.com/flashgrep/flashgrep/pkg/indexer"
	"github.com/flashgrep/flashgrep/pkg/pathnorm"
	"github.com/flashgrep/flashgrep/pkg/scanner"
)

var watchLog = log.New(os.Stderr, "[flashgrep:watcher] ", log.Ltime)

// DebounceWindow is the default per-path event coalescing window.
const DebounceWindow = 500 * time.Millisecond

// ProgressInterval is how many files the startup scan logs progress after.
const ProgressInterval = indexer.ProgressInterval

// tickInterval is how often the debounce map is swept for expired entries.
const tickInterval = 50 * time.Millisecond

// State is the watcher's coarse lifecycle stage.
type State int32

const (
	StateInitializing State = iota
	StateLive
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateLive:
		return "live"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Config configures a Watcher.
type Config struct {
	Root             string
	IgnoreFilePath   string
	StateDirName     string
	MaxFileSize      int64
	Extensions       map[string]bool
	DebounceWindow   time.Duration
	SkipInitialScan  bool // true disables the startup reconciliation scan
}

type pendingEntry struct {
	deadline time.Time
	delete   bool
}

// Stats summarizes the watcher's current standing.
type Stats struct {
	State        State
	DirsWatched  int
	PendingCount int
	Uptime       time.Duration
}

// Watcher drives an Indexer from filesystem change notifications.
type Watcher struct {
	cfg Config
	idx *indexer.Indexer
	fsw *fsnotify.Watcher

	ignore atomic.Pointer[ignore.Matcher]

	state     atomic.Int32
	startTime time.Time

	mu          sync.Mutex
	pending     map[string]pendingEntry
	dirsWatched int

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Watcher bound to idx. The ignore matcher is loaded once
// at construction and reloaded whenever IgnoreFilePath changes on disk.
func New(cfg Config, idx *indexer.Indexer) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = DebounceWindow
	}

	m, err := ignore.New(cfg.StateDirName, cfg.IgnoreFilePath)
	if err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		cfg:     cfg,
		idx:     idx,
		fsw:     fsw,
		pending: make(map[string]pendingEntry),
		stop:    make(chan struct{}),
	}
	w.ignore.Store(m)
	return w, nil
}

// Start registers directory watches, transitions to Live, and launches the
// startup scan and live event loop concurrently — the scan never blocks the
// live stream.
func (w *Watcher) Start(ctx context.Context) error {
	w.state.Store(int32(StateInitializing))
	w.startTime = time.Now()

	if err := w.registerTree(w.cfg.Root); err != nil {
		return err
	}

	w.state.Store(int32(StateLive))

	w.wg.Add(1)
	go w.runEventLoop()

	w.wg.Add(1)
	go w.runDebounceTicker()

	if !w.cfg.SkipInitialScan {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runInitialScan(ctx)
		}()
	}

	watchLog.Printf("watching %d directories under %s (debounce: %v)", w.dirsWatched, w.cfg.Root, w.cfg.DebounceWindow)
	return nil
}

// Stop shuts the watcher down, waiting for in-flight goroutines to exit.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
	w.state.Store(int32(StateShutdown))
	return w.fsw.Close()
}

// Status reports the watcher's current lifecycle state.
func (w *Watcher) Status() State {
	return State(w.state.Load())
}

// Stats reports current counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	pending := len(w.pending)
	dirs := w.dirsWatched
	w.mu.Unlock()
	return Stats{
		State:        w.Status(),
		DirsWatched:  dirs,
		PendingCount: pending,
		Uptime:       time.Since(w.startTime),
	}
}

// registerTree walks root and adds an fsnotify watch for every directory
// not excluded by the current ignore rules.
func (w *Watcher) registerTree(root string) error {
	m := w.ignore.Load()
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := pathnorm.Rel(root, p)
		if relErr != nil {
			return nil
		}
		if rel != "" && m.ShouldIgnore(rel, true) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err == nil {
			w.mu.Lock()
			w.dirsWatched++
			w.mu.Unlock()
		}
		return nil
	})
}

// runInitialScan reconciles offline changes by delegating to
// Indexer.IndexRepository, which diffs the live filesystem against the
// persisted file-state store. Because the live event loop updates that
// same store concurrently, any path the live loop reaches first is a no-op
// here — whichever side processes a path second finds nothing changed.
func (w *Watcher) runInitialScan(ctx context.Context) {
	start := time.Now()
	before := w.idx.Store.Stats()

	onProgress := func(p indexer.Progress) {
		watchLog.Printf("initial scan: %d/%d files", p.FilesDone, p.FilesTotal)
		if err := w.idx.FileState.SaveIfDirty(); err != nil {
			watchLog.Printf("file-state save during scan: %v", err)
		}
	}

	res, err := w.idx.IndexRepository(ctx, w.ignore.Load(), w.cfg.MaxFileSize, w.cfg.Extensions, onProgress)
	if err != nil {
		watchLog.Printf("initial scan failed: %v", err)
		return
	}

	after := w.idx.Store.Stats()
	elapsed := time.Since(start)
	fps := 0.0
	if elapsed > 0 {
		fps = float64(len(res.Files)) / elapsed.Seconds()
	}
	watchLog.Printf("initial scan complete: %d files, delta files=%+d, %.1fs, %.1f files/sec",
		len(res.Files), after.Files-before.Files, elapsed.Seconds(), fps)
}

func (w *Watcher) runEventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stop:
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
			watchLog.Printf("fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.registerTree(event.Name); err != nil {
				watchLog.Printf("watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}

	if event.Name == w.cfg.IgnoreFilePath {
		go w.reconcileIgnoreChange()
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	rel, err := pathnorm.Rel(w.cfg.Root, event.Name)
	if err != nil {
		return
	}
	if w.ignore.Load().ShouldIgnore(rel, false) {
		return
	}

	isDelete := event.Op&(fsnotify.Remove|fsnotify.Rename) != 0
	w.queue(rel, isDelete)
}

// queue records or extends the debounce deadline for rel. A delete within
// the current burst sticks — any intervening delete wins per the
// coalescing rule.
func (w *Watcher) queue(rel string, isDelete bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, existed := w.pending[rel]
	if existed && e.delete {
		isDelete = true
	}
	w.pending[rel] = pendingEntry{
		deadline: time.Now().Add(w.cfg.DebounceWindow),
		delete:   isDelete,
	}
}

func (w *Watcher) runDebounceTicker() {
	defer w.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			w.flushAll()
			return
		case <-ticker.C:
			w.flushExpired()
		}
	}
}

func (w *Watcher) flushExpired() {
	now := time.Now()
	var due []string
	var deletes []string

	w.mu.Lock()
	for p, e := range w.pending {
		if !e.deadline.After(now) {
			due = append(due, p)
			if e.delete {
				deletes = append(deletes, p)
			}
			delete(w.pending, p)
		}
	}
	w.mu.Unlock()

	deleteSet := make(map[string]bool, len(deletes))
	for _, p := range deletes {
		deleteSet[p] = true
	}
	for _, p := range due {
		w.dispatch(p, deleteSet[p])
	}
}

func (w *Watcher) flushAll() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]pendingEntry)
	w.mu.Unlock()
	for p, e := range pending {
		w.dispatch(p, e.delete)
	}
}

// dispatch applies the settled event for rel. A path absent from disk at
// dispatch time is always treated as a delete, regardless of the op that
// triggered the debounce — matching the "non-existent-at-dispatch paths
// become deletes" rule.
func (w *Watcher) dispatch(rel string, isDelete bool) {
	abs := filepath.Join(w.cfg.Root, rel)
	if _, err := os.Stat(abs); err != nil {
		isDelete = true
	}

	if isDelete {
		if err := w.idx.DeleteFile(rel); err != nil {
			watchLog.Printf("delete %s: %v", rel, err)
		}
		return
	}

	f, err := statFile(abs, rel)
	if err != nil {
		watchLog.Printf("stat %s: %v", rel, err)
		return
	}
	// An event for content already indexed (e.g. a write_code edit that was
	// re-indexed on apply) matches the file-state entry and is skipped.
	if hash, err := filestate.ShortHashFile(abs); err == nil && !w.idx.FileState.Changed(rel, f.Size, f.ModTime, hash) {
		return
	}
	if err := w.idx.IndexFile(f); err != nil {
		watchLog.Printf("index %s: %v", rel, err)
	}
}

func statFile(abs, rel string) (scanner.File, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return scanner.File{}, err
	}
	ext := filepath.Ext(rel)
	if len(ext) > 0 {
		ext = ext[1:]
	}
	return scanner.File{
		AbsPath: abs,
		RelPath: rel,
		Size:    info.Size(),
		ModTime: info.ModTime().Unix(),
		Ext:     ext,
	}, nil
}

// reconcileIgnoreChange reloads the ignore matcher, prunes now-excluded
// paths, and rescans paths that are newly allowed.
func (w *Watcher) reconcileIgnoreChange() {
	m, err := ignore.New(w.cfg.StateDirName, w.cfg.IgnoreFilePath)
	if err != nil {
		watchLog.Printf("reload ignore rules: %v", err)
		return
	}
	w.ignore.Store(m)

	before := w.idx.Store.Stats().Files

	var nowExcluded []string
	for _, f := range w.idx.Store.ListFiles("") {
		if m.ShouldIgnore(f.Path, false) {
			nowExcluded = append(nowExcluded, f.Path)
		}
	}
	removed, err := w.idx.BulkPrune(nowExcluded)
	if err != nil {
		watchLog.Printf("bulk prune on ignore reload: %v", err)
	}

	ctx := context.Background()
	if _, err := w.idx.IndexRepository(ctx, m, w.cfg.MaxFileSize, w.cfg.Extensions, nil); err != nil {
		watchLog.Printf("rescan after ignore reload: %v", err)
	}

	after := w.idx.Store.Stats().Files
	watchLog.Printf("ignore reload reconciliation: removed=%d kept=%d (was %d, now %d)", removed, before-removed, before, after)
}
