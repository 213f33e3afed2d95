// Package registry tracks one watcher/server process per repository across
// the whole machine, so a second `flashgrep serve` for an already-running
// repository refuses to start instead of racing the first. State is a JSON
// file keyed by canonical absolute repository path, written atomically via
// temp-file-then-rename.
package registry

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/flashgrep/flashgrep/pkg/pathnorm"
)

var registryLog = log.New(os.Stderr, "[flashgrep:registry] ", log.Ltime)

// Entry is one running watcher's launch record.
type Entry struct {
	RepoRoot  string `json:"repo_root"`
	PID       int    `json:"pid"`
	StartedAt int64  `json:"started_at"` // unix seconds
}

type onDisk struct {
	Entries map[string]Entry `json:"entries"`
}

// Registry is the process-wide watcher registry, backed by a single JSON
// file shared by every flashgrep process on the machine.
type Registry struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
}

// DefaultPath returns the registry file location under the platform's local
// data directory ($XDG_DATA_HOME/flashgrep/watchers.json on Linux, the
// os.UserCacheDir()-rooted equivalent elsewhere when XDG is unset).
func DefaultPath() (string, error) {
	dir, err := userDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "flashgrep", "watchers.json"), nil
}

func userDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return xdg, nil
	}
	return os.UserCacheDir()
}

// Load opens the registry at path, or starts empty if the file does not
// exist or is corrupt. A corrupt file is logged and discarded rather than
// treated as fatal, matching the persisted-state discard policy used
// elsewhere (filestate).
func Load(path string) (*Registry, error) {
	r := &Registry{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return r, nil
	}

	var d onDisk
	if err := json.Unmarshal(data, &d); err != nil {
		registryLog.Printf("discarding corrupt registry at %s: %v", path, err)
		return r, nil
	}
	if d.Entries != nil {
		r.entries = d.Entries
	}
	return r, nil
}

// LoadDefault opens (or creates the parent directory for) the registry at
// DefaultPath.
func LoadDefault() (*Registry, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return Load(path)
}

func (r *Registry) save() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(onDisk{Entries: r.entries}, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

// ErrAlreadyRunning is returned by Start when a live entry already exists
// for the canonical repo path.
type ErrAlreadyRunning struct {
	RepoRoot string
	PID      int
}

func (e *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("flashgrep is already running for %s (pid %d)", e.RepoRoot, e.PID)
}

// Start registers pid as the watcher for repoRoot. If a live entry already
// exists for the canonical path, it returns *ErrAlreadyRunning without
// modifying the registry. A stale entry (recorded process no longer live)
// is evicted and replaced.
func (r *Registry) Start(repoRoot string, pid int) error {
	key, err := pathnorm.Canonical(repoRoot)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[key]; ok {
		if IsAlive(existing.PID) {
			return &ErrAlreadyRunning{RepoRoot: key, PID: existing.PID}
		}
		registryLog.Printf("evicting stale entry for %s (dead pid %d)", key, existing.PID)
	}

	r.entries[key] = Entry{RepoRoot: key, PID: pid, StartedAt: time.Now().Unix()}
	return r.save()
}

// Stop removes the entry for repoRoot, leaving every other entry untouched.
// It is not an error to stop a repo with no registered entry.
func (r *Registry) Stop(repoRoot string) error {
	key, err := pathnorm.Canonical(repoRoot)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; !ok {
		return nil
	}
	delete(r.entries, key)
	return r.save()
}

// Get returns the entry for repoRoot, if any.
func (r *Registry) Get(repoRoot string) (Entry, bool, error) {
	key, err := pathnorm.Canonical(repoRoot)
	if err != nil {
		return Entry{}, false, fmt.Errorf("registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	return e, ok, nil
}

// List returns every registered entry, live or stale.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// CleanupStale evicts every entry whose recorded pid is no longer live and
// returns the count removed.
func (r *Registry) CleanupStale() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, e := range r.entries {
		if !IsAlive(e.PID) {
			delete(r.entries, key)
			removed++
		}
	}
	if removed > 0 {
		if err := r.save(); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
