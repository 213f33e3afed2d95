package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flashgrep/flashgrep/pkg/filestate"
	"github.com/flashgrep/flashgrep/pkg/indexer"
	"github.com/flashgrep/flashgrep/pkg/store"
)

func newTestWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()
	root := t.TempDir()
	stateDir := t.TempDir()

	st, err := store.Open(filepath.Join(stateDir, "meta.db"), filepath.Join(stateDir, "text.bleve"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fs, err := filestate.Load(filepath.Join(stateDir, "filestate.json"))
	if err != nil {
		t.Fatalf("filestate.Load: %v", err)
	}

	idx := indexer.New(root, st, fs, 0)

	w, err := New(Config{
		Root:           root,
		IgnoreFilePath: filepath.Join(root, ".flashgrepignore"),
		StateDirName:   ".flashgrep",
		MaxFileSize:    1 << 20,
		DebounceWindow: 50 * time.Millisecond,
	}, idx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	return w, root
}

func TestInitialScanIndexesExistingFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.go"), []byte("func a() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	stateDir := t.TempDir()
	st, err := store.Open(filepath.Join(stateDir, "meta.db"), filepath.Join(stateDir, "text.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	fs, err := filestate.Load(filepath.Join(stateDir, "filestate.json"))
	if err != nil {
		t.Fatal(err)
	}
	idx := indexer.New(root, st, fs, 0)

	w, err := New(Config{Root: root, IgnoreFilePath: filepath.Join(root, ".flashgrepignore"), StateDirName: ".flashgrep"}, idx)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := st.GetFile("a.go"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected a.go to be indexed by the startup scan")
}

func TestStatusTransitionsToLive(t *testing.T) {
	w, _ := newTestWatcher(t)
	if w.Status() != StateInitializing {
		t.Errorf("expected Initializing before Start, got %v", w.Status())
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if w.Status() != StateLive {
		t.Errorf("expected Live after Start, got %v", w.Status())
	}
}

func TestLiveCreateEventIndexesFile(t *testing.T) {
	w, root := newTestWatcher(t)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Let the (empty) initial scan settle first.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(root, "new.go"), []byte("func newFn() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := w.idx.Store.GetFile("new.go"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected new.go to be indexed after a live create event")
}

func TestLiveDeleteEventRemovesFile(t *testing.T) {
	w, root := newTestWatcher(t)
	target := filepath.Join(root, "gone.go")
	if err := os.WriteFile(target, []byte("func gone() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := w.idx.Store.GetFile("gone.go"); ok {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := os.Remove(target); err != nil {
		t.Fatal(err)
	}

	deadline = time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := w.idx.Store.GetFile("gone.go"); !ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected gone.go to be removed after a live delete event")
}
