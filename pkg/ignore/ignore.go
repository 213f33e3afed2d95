// Package ignore parses a repo-root .flashgrepignore file into a Matcher
// that tests normalized repo-relative paths against gitignore-style rules:
// comments, blank lines, negation, directory-only patterns, and ** globs.
// Only a single repo-root file is ever read — nested ignore files are not
// supported.
package ignore

import (
	"bufio"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// BuiltinExcludes are the first rules of every Matcher. Because the last
// matching rule wins, a negation in the ignore file can re-include them.
var BuiltinExcludes = []string{
	".git/",
	"node_modules/",
	"target/",
	"dist/",
	"build/",
	"vendor/",
}

// Matcher evaluates gitignore-style rules against normalized repo-relative
// paths. Rules are evaluated in order; the last matching rule wins.
type Matcher struct {
	rules []rule
}

type rule struct {
	raw      string
	negation bool
	dirOnly  bool
}

// New builds a Matcher from the built-in excludes plus, if present, the
// repo-root ignore file at path. A missing ignore file is not an error.
func New(stateDirName, ignoreFilePath string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range BuiltinExcludes {
		m.rules = append(m.rules, parseRule(p))
	}
	if stateDirName != "" {
		m.rules = append(m.rules, parseRule(stateDirName+"/"))
	}

	f, err := os.Open(ignoreFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		m.rules = append(m.rules, parseRule(trimmed))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// Empty returns a Matcher with no rules — nothing is ignored. Useful in
// tests and for ad-hoc scans of directories that would normally be excluded.
func Empty() *Matcher {
	return &Matcher{}
}

func parseRule(pattern string) rule {
	r := rule{}
	if strings.HasPrefix(pattern, "!") {
		r.negation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	r.raw = pattern
	return r
}

// ShouldIgnore reports whether path (normalized, repo-relative, no leading
// or trailing slash) matches the current rule set. isDir must be true when
// path names a directory.
func (m *Matcher) ShouldIgnore(path string, isDir bool) bool {
	path = strings.Trim(path, "/")
	if path == "" || path == "." {
		return false
	}

	ignored := false
	matched := false
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if r.match(path) {
			ignored = !r.negation
			matched = true
		}
	}
	if ignored {
		return true
	}
	if matched {
		return false
	}

	// A file under an ignored directory is ignored even though the walk
	// may hand us the file directly (e.g. from a watcher event) without
	// ever visiting its parent directory.
	if !isDir {
		parts := strings.Split(path, "/")
		for i := 1; i < len(parts); i++ {
			if m.ShouldIgnore(strings.Join(parts[:i], "/"), true) {
				return true
			}
		}
	}
	return false
}

func (r *rule) match(path string) bool {
	pattern := r.raw

	// An unanchored (no "/") pattern matches the basename at any depth.
	if !strings.Contains(pattern, "/") {
		base := path
		if i := strings.LastIndex(path, "/"); i >= 0 {
			base = path[i+1:]
		}
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
		// Also allow it to match any path segment directly (directory name
		// anywhere in the tree, e.g. "target" matching "a/target/b.o"
		// via the parent-directory check above, and "a/target" here).
		if ok, _ := doublestar.Match("**/"+pattern, path); ok {
			return true
		}
		return false
	}

	pattern = strings.TrimPrefix(pattern, "/")
	if ok, _ := doublestar.Match(pattern, path); ok {
		return true
	}
	if ok, _ := doublestar.Match("**/"+pattern, path); ok {
		return true
	}
	return false
}

// Reload re-parses the ignore file and built-ins into a fresh Matcher,
// meant to be swapped in atomically by the caller (the watcher holds an
// atomic.Pointer[Matcher] so in-flight matches never see a half-loaded
// rule set).
func Reload(stateDirName, ignoreFilePath string) (*Matcher, error) {
	return New(stateDirName, ignoreFilePath)
}
