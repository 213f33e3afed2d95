package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRegistryAddRemoveRoundtrip(t *testing.T) {
	dir := t.TempDir()
	repo := filepath.Join(dir, "repo")
	if err := os.MkdirAll(repo, 0o755); err != nil {
		t.Fatal(err)
	}

	r, err := Load(filepath.Join(dir, "watchers.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := r.Start(repo, os.Getpid()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, ok, _ := r.Get(repo); !ok {
		t.Fatal("expected entry after Start")
	}

	if err := r.Stop(repo); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok, _ := r.Get(repo); ok {
		t.Fatal("expected entry removed after Stop")
	}
}

func TestStartRefusesDuplicateForLivePID(t *testing.T) {
	dir := t.TempDir()
	repo := filepath.Join(dir, "repo")
	if err := os.MkdirAll(repo, 0o755); err != nil {
		t.Fatal(err)
	}

	r, err := Load(filepath.Join(dir, "watchers.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := r.Start(repo, os.Getpid()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	err = r.Start(repo, os.Getpid())
	var already *ErrAlreadyRunning
	if !errors.As(err, &already) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStartEvictsStaleEntry(t *testing.T) {
	dir := t.TempDir()
	repo := filepath.Join(dir, "repo")
	if err := os.MkdirAll(repo, 0o755); err != nil {
		t.Fatal(err)
	}

	r, err := Load(filepath.Join(dir, "watchers.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// A pid essentially guaranteed to be dead.
	if err := r.Start(repo, 1<<30); err != nil {
		t.Fatalf("Start with stale pid: %v", err)
	}

	if err := r.Start(repo, os.Getpid()); err != nil {
		t.Fatalf("expected stale entry evicted and Start to succeed, got: %v", err)
	}
	entry, ok, _ := r.Get(repo)
	if !ok || entry.PID != os.Getpid() {
		t.Fatalf("expected entry to now carry the live pid, got %+v", entry)
	}
}

func TestCleanupRemovesDeadPIDs(t *testing.T) {
	dir := t.TempDir()
	repo := filepath.Join(dir, "repo")
	if err := os.MkdirAll(repo, 0o755); err != nil {
		t.Fatal(err)
	}

	r, err := Load(filepath.Join(dir, "watchers.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r.entries["dead-key"] = Entry{RepoRoot: "dead-key", PID: 1 << 30}

	removed, err := r.CleanupStale()
	if err != nil {
		t.Fatalf("CleanupStale: %v", err)
	}
	if removed < 1 {
		t.Errorf("expected at least one stale entry removed, got %d", removed)
	}
}

func TestLoadDiscardsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchers.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(r.List()) != 0 {
		t.Errorf("expected empty registry after discarding corrupt file, got %+v", r.List())
	}
}

func TestStopUntouchedOtherEntries(t *testing.T) {
	dir := t.TempDir()
	repoA := filepath.Join(dir, "a")
	repoB := filepath.Join(dir, "b")
	for _, p := range []string{repoA, repoB} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	r, err := Load(filepath.Join(dir, "watchers.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := r.Start(repoA, os.Getpid()); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(repoB, os.Getpid()); err != nil {
		t.Fatal(err)
	}

	if err := r.Stop(repoA); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := r.Get(repoA); ok {
		t.Error("expected repoA removed")
	}
	if _, ok, _ := r.Get(repoB); !ok {
		t.Error("expected repoB untouched")
	}
}
