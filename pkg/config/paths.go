package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/flashgrep/flashgrep/pkg/registry"
)

// Paths resolves every well-known file and directory under one
// repository's state directory (<repo_root>/.flashgrep).
type Paths struct {
	Root string // <repo_root>/.flashgrep
}

// NewPaths builds a Paths for repoRoot.
func NewPaths(repoRoot string) Paths {
	return Paths{Root: filepath.Join(repoRoot, StateDirName)}
}

func (p Paths) MetadataDB() string    { return filepath.Join(p.Root, "metadata.db") }
func (p Paths) ConfigFile() string    { return filepath.Join(p.Root, "config.json") }
func (p Paths) TextIndexDir() string  { return filepath.Join(p.Root, "text_index") }
func (p Paths) LogsDir() string       { return filepath.Join(p.Root, "logs") }
func (p Paths) VectorsDir() string    { return filepath.Join(p.Root, "vectors") }
func (p Paths) SocketPath() string    { return filepath.Join(p.Root, "mcp.sock") }
func (p Paths) WatcherLockPath() string { return filepath.Join(p.Root, "watcher.lock") }

// FileStatePath joins the configured relative index_state_path onto the
// state directory root.
func (p Paths) FileStatePath(indexStatePath string) string {
	return filepath.Join(p.Root, indexStatePath)
}

// Exists reports whether the state directory has been created.
func (p Paths) Exists() bool {
	_, err := os.Stat(p.Root)
	return err == nil
}

// Create makes the state directory and its fixed subdirectories.
func (p Paths) Create() error {
	for _, dir := range []string{p.Root, p.TextIndexDir(), p.LogsDir(), p.VectorsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the entire state directory.
func (p Paths) Remove() error {
	if !p.Exists() {
		return nil
	}
	return os.RemoveAll(p.Root)
}

// SizeBytes returns the total size, in bytes, of every regular file under
// the state directory.
func (p Paths) SizeBytes() int64 {
	var total int64
	filepath.Walk(p.Root, func(_ string, info os.FileInfo, err error) error {
		if err != nil || info == nil {
			return nil
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// FindRepoRoot walks upward from start looking first for an existing state
// directory, then for .git, falling back to start itself if neither is
// found before reaching the filesystem root.
func FindRepoRoot(start string) string {
	current := start
	for {
		if info, err := os.Stat(filepath.Join(current, StateDirName)); err == nil && info.IsDir() {
			return current
		}
		if info, err := os.Stat(filepath.Join(current, ".git")); err == nil && info.IsDir() {
			return current
		}
		parent := filepath.Dir(current)
		if parent == current {
			return start
		}
		current = parent
	}
}

// GetRepoRoot resolves an explicit path argument to an absolute directory
// (symlinks are not resolved), or the current working directory when path
// is empty.
func GetRepoRoot(path string) (string, error) {
	if path == "" {
		return os.Getwd()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("config: path is not a directory: %s", path)
	}
	return abs, nil
}

// AcquireWatcherLock creates the state directory's watcher.lock file,
// containing this process's pid. A lock left by a dead process is
// evicted and reacquired; a lock held by a live process returns an error.
func AcquireWatcherLock(repoRoot string) (string, error) {
	p := NewPaths(repoRoot)
	if err := os.MkdirAll(p.Root, 0o755); err != nil {
		return "", err
	}
	lockPath := p.WatcherLockPath()

	if data, err := os.ReadFile(lockPath); err == nil {
		pid, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if parseErr != nil || !registry.IsAlive(pid) {
			os.Remove(lockPath)
		} else {
			return "", fmt.Errorf("config: watcher already running for %s (pid %d)", repoRoot, pid)
		}
	}

	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("config: watcher already running for %s", repoRoot)
		}
		return "", err
	}
	defer f.Close()
	fmt.Fprintln(f, os.Getpid())
	return lockPath, nil
}

// ReleaseWatcherLock removes the watcher.lock file for repoRoot. It is not
// an error to release a lock that is already gone.
func ReleaseWatcherLock(repoRoot string) error {
	lockPath := NewPaths(repoRoot).WatcherLockPath()
	err := os.Remove(lockPath)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
