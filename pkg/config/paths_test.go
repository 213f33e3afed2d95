package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPathsLayout(t *testing.T) {
	root := t.TempDir()
	p := NewPaths(root)

	if !strings.HasSuffix(p.Root, StateDirName) {
		t.Errorf("expected root to end with %s, got %s", StateDirName, p.Root)
	}
	if !strings.HasSuffix(p.MetadataDB(), filepath.Join(StateDirName, "metadata.db")) {
		t.Errorf("unexpected metadata db path: %s", p.MetadataDB())
	}
	if !strings.HasSuffix(p.TextIndexDir(), filepath.Join(StateDirName, "text_index")) {
		t.Errorf("unexpected text index path: %s", p.TextIndexDir())
	}
}

func TestPathsCreateAndRemove(t *testing.T) {
	root := t.TempDir()
	p := NewPaths(root)

	if p.Exists() {
		t.Fatal("expected state directory to not exist yet")
	}
	if err := p.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !p.Exists() {
		t.Fatal("expected state directory to exist after Create")
	}
	for _, dir := range []string{p.TextIndexDir(), p.LogsDir(), p.VectorsDir()} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("expected %s to exist: %v", dir, err)
		}
	}

	if err := p.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if p.Exists() {
		t.Error("expected state directory removed")
	}
}

func TestFindRepoRootPrefersStateDirThenGit(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, StateDirName), 0o755); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "src", "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	found := FindRepoRoot(sub)
	if found != root {
		t.Errorf("expected %s, got %s", root, found)
	}
}

func TestFindRepoRootFallsBackToStart(t *testing.T) {
	dir := t.TempDir()
	found := FindRepoRoot(dir)
	if found != dir {
		t.Errorf("expected fallback to start %s, got %s", dir, found)
	}
}

func TestAcquireAndReleaseWatcherLock(t *testing.T) {
	root := t.TempDir()

	lockPath, err := AcquireWatcherLock(root)
	if err != nil {
		t.Fatalf("AcquireWatcherLock: %v", err)
	}
	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("expected lock file to exist: %v", err)
	}

	if _, err := AcquireWatcherLock(root); err == nil {
		t.Fatal("expected second acquire to fail while the first holder is live")
	}

	if err := ReleaseWatcherLock(root); err != nil {
		t.Fatalf("ReleaseWatcherLock: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("expected lock file removed, stat err=%v", err)
	}

	if _, err := AcquireWatcherLock(root); err != nil {
		t.Fatalf("expected reacquire after release to succeed, got %v", err)
	}
}

func TestAcquireWatcherLockEvictsStaleLock(t *testing.T) {
	root := t.TempDir()
	p := NewPaths(root)
	if err := os.MkdirAll(p.Root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p.WatcherLockPath(), []byte("999999999\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := AcquireWatcherLock(root); err != nil {
		t.Fatalf("expected stale lock to be evicted, got %v", err)
	}
}
