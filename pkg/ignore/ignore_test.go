package ignore

import (
	"os"
	"path/filepath"
	"testing"
)

func writeIgnoreFile(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, ".flashgrepignore")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestBuiltinExcludes(t *testing.T) {
	m, err := New(".flashgrep", filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if !m.ShouldIgnore(".git", true) {
		t.Error("expected .git to be ignored")
	}
	if !m.ShouldIgnore(".git/config", false) {
		t.Error("expected .git/config to be ignored via parent dir")
	}
	if m.ShouldIgnore("src/main.go", false) {
		t.Error("did not expect src/main.go to be ignored")
	}
}

func TestDirectoryPatternIgnoresNestedFiles(t *testing.T) {
	dir := t.TempDir()
	p := writeIgnoreFile(t, dir, ".opencode/\n")
	m, err := New(".flashgrep", p)
	if err != nil {
		t.Fatal(err)
	}
	if !m.ShouldIgnore(".opencode/tool/x.ts", false) {
		t.Error("expected nested file under ignored dir to be ignored")
	}
	if m.ShouldIgnore("main.rs", false) {
		t.Error("unrelated file should not be ignored")
	}
}

func TestNegation(t *testing.T) {
	dir := t.TempDir()
	p := writeIgnoreFile(t, dir, "*.log\n!keep.log\n")
	m, err := New("", p)
	if err != nil {
		t.Fatal(err)
	}
	if !m.ShouldIgnore("debug.log", false) {
		t.Error("expected debug.log to be ignored")
	}
	if m.ShouldIgnore("keep.log", false) {
		t.Error("expected keep.log to be kept via negation")
	}
}

func TestDoublestar(t *testing.T) {
	dir := t.TempDir()
	p := writeIgnoreFile(t, dir, "**/testdata/**\n")
	m, err := New("", p)
	if err != nil {
		t.Fatal(err)
	}
	if !m.ShouldIgnore("pkg/foo/testdata/sample.json", false) {
		t.Error("expected nested testdata file to be ignored")
	}
}

func TestLastMatchingRuleWins(t *testing.T) {
	dir := t.TempDir()
	p := writeIgnoreFile(t, dir, "build/\n!build/keep/\n")
	m, err := New("", p)
	if err != nil {
		t.Fatal(err)
	}
	if !m.ShouldIgnore("build/out.o", false) {
		t.Error("expected build/out.o to be ignored")
	}
	if m.ShouldIgnore("build/keep", true) {
		t.Error("expected build/keep to be un-ignored by later negation")
	}
}
