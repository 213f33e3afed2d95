// Package pathnorm canonicalizes filesystem paths into the repo-relative,
// forward-slash form used as the identity key throughout flashgrep: ignore
// matching, metadata keys, and event deduplication all operate on this form.
package pathnorm

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// ErrEscapesRoot is returned when a path resolves outside the repository root.
var ErrEscapesRoot = errors.New("pathnorm: path escapes repository root")

// Rel returns the normalized repo-relative key for abs within root. Both
// abs and root are expected to be absolute OS-native paths. The result uses
// forward slashes, has no leading "./" and no ".." components.
func Rel(root, abs string) (string, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	rel = path.Clean(rel)
	if rel == "." {
		return "", nil
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", ErrEscapesRoot
	}
	return rel, nil
}

// Canonical resolves p to its absolute, symlink-resolved form. Missing
// trailing components (the final path segment itself, which may not yet
// exist) are tolerated: only existing ancestors need resolve cleanly.
func Canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// The leaf may not exist yet (e.g. a path about to be created);
		// resolve the parent instead and re-attach the leaf.
		parent, errParent := filepath.EvalSymlinks(filepath.Dir(abs))
		if errParent != nil {
			return abs, nil
		}
		return filepath.Join(parent, filepath.Base(abs)), nil
	}
	return resolved, nil
}

// ToSlash normalizes OS separators to forward slashes without touching
// ".." segments — used for matching against patterns that were already
// validated as repo-relative.
func ToSlash(p string) string {
	return filepath.ToSlash(p)
}

// Depth returns the number of path separators in a normalized repo-relative
// path — used by the search ranker's depth penalty.
func Depth(normalized string) int {
	if normalized == "" {
		return 0
	}
	return strings.Count(normalized, "/")
}
