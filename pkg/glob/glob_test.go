package glob

import (
	"os"
	"path/filepath"
	"testing"
)

func mustWrite(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWalkMatchesPatternAndExtension(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a.go"), "x")
	mustWrite(t, filepath.Join(root, "b.txt"), "x")
	mustWrite(t, filepath.Join(root, "pkg", "c.go"), "x")

	res, err := Walk(Options{Base: root, Pattern: "**/*", Recursive: true, Extensions: map[string]bool{"go": true}})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 go files, got %d: %+v", len(res.Entries), res.Entries)
	}
}

func TestWalkExcludeDirPrunesEarly(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "vendor", "dep.go"), "x")
	mustWrite(t, filepath.Join(root, "main.go"), "x")

	res, err := Walk(Options{Base: root, Pattern: "**/*.go", Recursive: true, Exclude: []string{"vendor"}})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range res.Entries {
		if e.Path == "vendor/dep.go" {
			t.Error("expected vendor/dep.go excluded")
		}
	}
	if len(res.Entries) != 1 {
		t.Errorf("expected exactly 1 entry, got %+v", res.Entries)
	}
}

func TestWalkHiddenEntriesSkippedByDefault(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, ".hidden.go"), "x")
	mustWrite(t, filepath.Join(root, "visible.go"), "x")

	res, err := Walk(Options{Base: root, Pattern: "*.go"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Path != "visible.go" {
		t.Errorf("expected only visible.go, got %+v", res.Entries)
	}
}

func TestWalkNonRecursiveStopsAtOneLevel(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "top.go"), "x")
	mustWrite(t, filepath.Join(root, "nested", "deep.go"), "x")

	res, err := Walk(Options{Base: root, Pattern: "**/*.go", Recursive: false})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range res.Entries {
		if e.Path == "nested/deep.go" {
			t.Error("expected non-recursive walk to skip nested files")
		}
	}
}

func TestWalkPaginationDisjointWindows(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.go", "b.go", "c.go", "d.go"} {
		mustWrite(t, filepath.Join(root, name), "x")
	}

	page1, err := Walk(Options{Base: root, Pattern: "*.go", SortBy: SortByPath, Offset: 0, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	page2, err := Walk(Options{Base: root, Pattern: "*.go", SortBy: SortByPath, Offset: 2, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page1.Entries) != 2 || len(page2.Entries) != 2 {
		t.Fatalf("expected 2+2, got %d and %d", len(page1.Entries), len(page2.Entries))
	}
	if page1.Entries[1].Path >= page2.Entries[0].Path {
		t.Errorf("expected ascending disjoint windows, got %v then %v", page1.Entries, page2.Entries)
	}
}

func TestWalkNegativeMaxDepthIsInvalidParams(t *testing.T) {
	root := t.TempDir()
	_, err := Walk(Options{Base: root, Pattern: "*", MaxDepth: -1})
	if err == nil {
		t.Fatal("expected invalid_params for negative max_depth")
	}
}

func TestWalkSymlinkCycleDoesNotHang(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(sub, "f.go"), "x")
	if err := os.Symlink(root, filepath.Join(sub, "loop")); err != nil {
		t.Skipf("symlinks unsupported in this environment: %v", err)
	}

	res, err := Walk(Options{Base: root, Pattern: "**/*.go", Recursive: true, FollowSymlinks: true})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(res.Entries) == 0 {
		t.Error("expected at least f.go to be found despite the cycle")
	}
}
