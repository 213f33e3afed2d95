package store

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "meta.db"), filepath.Join(dir, "text.bleve"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestApplyFileUpdateThenGetFile(t *testing.T) {
	s := openTestStore(t)

	file := FileRecord{Path: "main.go", AbsPath: "/repo/main.go", Size: 10, Mtime: 100, ContentHash: "abc", Extension: "go"}
	chunks := []ChunkRecord{{StartLine: 1, EndLine: 5, Hash: "h1", Content: "package main"}}
	symbols := []SymbolRecord{{Line: 1, Kind: "function", Name: "main"}}

	if err := s.ApplyFileUpdate(file, chunks, symbols); err != nil {
		t.Fatalf("ApplyFileUpdate: %v", err)
	}

	got, ok := s.GetFile("main.go")
	if !ok {
		t.Fatal("expected file to be found")
	}
	if got.ContentHash != "abc" {
		t.Errorf("expected content hash abc, got %s", got.ContentHash)
	}

	gotChunks := s.GetChunksForFile("main.go")
	if len(gotChunks) != 1 || gotChunks[0].Content != "package main" {
		t.Errorf("unexpected chunks: %+v", gotChunks)
	}

	matches := s.FindSymbol("main")
	if len(matches) != 1 || matches[0].Path != "main.go" {
		t.Errorf("unexpected symbol matches: %+v", matches)
	}
}

func TestApplyFileUpdateReplacesOldChunksAndSymbols(t *testing.T) {
	s := openTestStore(t)

	file := FileRecord{Path: "a.go", Size: 1, Mtime: 1}
	if err := s.ApplyFileUpdate(file, []ChunkRecord{{StartLine: 1, EndLine: 1, Content: "old"}}, []SymbolRecord{{Line: 1, Kind: "function", Name: "oldFn"}}); err != nil {
		t.Fatal(err)
	}

	if err := s.ApplyFileUpdate(file, []ChunkRecord{{StartLine: 1, EndLine: 2, Content: "new"}}, []SymbolRecord{{Line: 1, Kind: "function", Name: "newFn"}}); err != nil {
		t.Fatal(err)
	}

	chunks := s.GetChunksForFile("a.go")
	if len(chunks) != 1 || chunks[0].Content != "new" {
		t.Errorf("expected single replaced chunk, got %+v", chunks)
	}

	if matches := s.FindSymbol("oldFn"); len(matches) != 0 {
		t.Errorf("expected oldFn to be gone, got %+v", matches)
	}
	if matches := s.FindSymbol("newFn"); len(matches) != 1 {
		t.Errorf("expected newFn to be present, got %+v", matches)
	}
}

func TestFindSymbolReturnsAllMatches(t *testing.T) {
	s := openTestStore(t)

	if err := s.ApplyFileUpdate(FileRecord{Path: "a.go"}, nil, []SymbolRecord{{Line: 1, Kind: "function", Name: "run"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyFileUpdate(FileRecord{Path: "b.go"}, nil, []SymbolRecord{{Line: 10, Kind: "function", Name: "run"}}); err != nil {
		t.Fatal(err)
	}

	matches := s.FindSymbol("run")
	if len(matches) != 2 {
		t.Fatalf("expected both ambiguous matches, got %d: %+v", len(matches), matches)
	}
}

func TestDeleteFileRemovesChunksAndSymbols(t *testing.T) {
	s := openTestStore(t)
	file := FileRecord{Path: "gone.go"}
	if err := s.ApplyFileUpdate(file, []ChunkRecord{{StartLine: 1, EndLine: 1, Content: "x"}}, []SymbolRecord{{Line: 1, Kind: "function", Name: "gone"}}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteFile("gone.go"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}

	if _, ok := s.GetFile("gone.go"); ok {
		t.Error("expected file record to be gone")
	}
	if chunks := s.GetChunksForFile("gone.go"); len(chunks) != 0 {
		t.Errorf("expected no chunks, got %+v", chunks)
	}
	if matches := s.FindSymbol("gone"); len(matches) != 0 {
		t.Errorf("expected no symbol matches, got %+v", matches)
	}
}

func TestBulkPruneIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.ApplyFileUpdate(FileRecord{Path: "keep.go"}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyFileUpdate(FileRecord{Path: "drop.go"}, nil, nil); err != nil {
		t.Fatal(err)
	}

	removed, err := s.BulkPrune([]string{"drop.go", "never-existed.go"})
	if err != nil {
		t.Fatalf("BulkPrune: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removal, got %d", removed)
	}

	if _, ok := s.GetFile("keep.go"); !ok {
		t.Error("expected keep.go to survive")
	}
	if _, ok := s.GetFile("drop.go"); ok {
		t.Error("expected drop.go to be pruned")
	}

	removedAgain, err := s.BulkPrune([]string{"drop.go"})
	if err != nil {
		t.Fatal(err)
	}
	if removedAgain != 0 {
		t.Errorf("expected second prune to be a no-op, got %d removed", removedAgain)
	}
}

func TestClearAllEmptiesBothStores(t *testing.T) {
	s := openTestStore(t)
	if err := s.ApplyFileUpdate(FileRecord{Path: "a.go"}, []ChunkRecord{{StartLine: 1, EndLine: 1, Content: "x"}}, []SymbolRecord{{Line: 1, Kind: "function", Name: "a"}}); err != nil {
		t.Fatal(err)
	}

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	stats := s.Stats()
	if stats.Files != 0 || stats.Chunks != 0 || stats.Symbols != 0 {
		t.Errorf("expected zeroed stats, got %+v", stats)
	}
	if matches := s.FindSymbol("a"); len(matches) != 0 {
		t.Errorf("expected no symbols after ClearAll, got %+v", matches)
	}
}

func TestStatsCountsAcrossFiles(t *testing.T) {
	s := openTestStore(t)
	if err := s.ApplyFileUpdate(FileRecord{Path: "a.go"}, []ChunkRecord{{StartLine: 1, EndLine: 1}, {StartLine: 2, EndLine: 2}}, []SymbolRecord{{Line: 1, Kind: "function", Name: "a"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyFileUpdate(FileRecord{Path: "b.go"}, []ChunkRecord{{StartLine: 1, EndLine: 1}}, nil); err != nil {
		t.Fatal(err)
	}

	stats := s.Stats()
	if stats.Files != 2 {
		t.Errorf("expected 2 files, got %d", stats.Files)
	}
	if stats.Chunks != 3 {
		t.Errorf("expected 3 chunks, got %d", stats.Chunks)
	}
	if stats.Symbols != 1 {
		t.Errorf("expected 1 symbol, got %d", stats.Symbols)
	}
}

func TestListFilesPrefixFilter(t *testing.T) {
	s := openTestStore(t)
	for _, p := range []string{"pkg/a.go", "pkg/b.go", "cmd/main.go"} {
		if err := s.ApplyFileUpdate(FileRecord{Path: p}, nil, nil); err != nil {
			t.Fatal(err)
		}
	}

	pkgFiles := s.ListFiles("pkg/")
	if len(pkgFiles) != 2 {
		t.Errorf("expected 2 files under pkg/, got %d", len(pkgFiles))
	}

	all := s.ListFiles("")
	if len(all) != 3 {
		t.Errorf("expected 3 files total, got %d", len(all))
	}
}
