// Package glob implements a single-pass directory traversal with
// early-pruning include/exclude/depth/hidden/symlink filters, deterministic
// sorting, and stable offset/limit pagination.
package glob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/flashgrep/flashgrep/pkg/pathnorm"
)

// ErrInvalidParams marks a request rejected before traversal begins.
var ErrInvalidParams = errors.New("glob: invalid params")

// SortBy selects the sort key applied to the collected result set.
type SortBy string

const (
	SortByPath     SortBy = "path"
	SortByName     SortBy = "name"
	SortByModified SortBy = "modified"
	SortBySize     SortBy = "size"
)

// SortOrder selects ascending or descending order.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// unlimitedDepth stands in for "no max_depth bound".
const unlimitedDepth = 1 << 30

// Options configures one glob traversal.
type Options struct {
	Base           string
	Pattern        string
	Include        []string
	Exclude        []string
	Extensions     map[string]bool // with or without leading dot
	MaxDepth       int             // 0 means unlimited; negative is invalid
	Recursive      bool
	IncludeHidden  bool
	FollowSymlinks bool
	CaseSensitive  bool
	SortBy         SortBy
	SortOrder      SortOrder
	Offset         int
	Limit          int
}

// Entry describes one matched filesystem entry.
type Entry struct {
	Path    string `json:"path"` // normalized, forward-slash, relative to Base
	Name    string `json:"name"`
	IsDir   bool   `json:"is_dir"`
	Size    int64  `json:"size"`
	ModTime int64  `json:"mod_time"` // unix seconds
}

// Result is the paginated output of a Walk call, plus the total match
// count before pagination so callers can report remaining results.
type Result struct {
	Entries []Entry
	Total   int
}

// Walk traverses opts.Base and returns the sorted, paginated match set.
func Walk(opts Options) (*Result, error) {
	if err := validate(&opts); err != nil {
		return nil, err
	}

	maxDepth := opts.MaxDepth
	if !opts.Recursive {
		maxDepth = 1
	} else if maxDepth == 0 {
		maxDepth = unlimitedDepth
	}

	w := &walker{opts: opts, maxDepth: maxDepth, visited: make(map[string]bool)}
	if err := w.walk(opts.Base, "", 0); err != nil {
		return nil, err
	}

	entries := w.entries
	sortEntries(entries, opts.SortBy, opts.SortOrder)

	total := len(entries)
	return &Result{Entries: paginate(entries, opts.Offset, opts.Limit), Total: total}, nil
}

func validate(opts *Options) error {
	if opts.MaxDepth < 0 {
		return fmt.Errorf("%w: max_depth must be >= 0", ErrInvalidParams)
	}
	if opts.Offset < 0 {
		return fmt.Errorf("%w: offset must be >= 0", ErrInvalidParams)
	}
	if opts.Limit < 0 {
		return fmt.Errorf("%w: limit must be >= 0", ErrInvalidParams)
	}
	switch opts.SortBy {
	case "", SortByPath, SortByName, SortByModified, SortBySize:
	default:
		return fmt.Errorf("%w: unknown sort_by %q", ErrInvalidParams, opts.SortBy)
	}
	switch opts.SortOrder {
	case "", SortAsc, SortDesc:
	default:
		return fmt.Errorf("%w: unknown sort_order %q", ErrInvalidParams, opts.SortOrder)
	}
	if opts.Pattern == "" {
		opts.Pattern = "**"
	}
	if opts.Limit == 0 {
		opts.Limit = 1 << 30
	}
	return nil
}

type walker struct {
	opts     Options
	maxDepth int
	visited  map[string]bool // canonical dir paths on the current walk stack
	entries  []Entry
}

func (w *walker) walk(absDir, relDir string, depth int) error {
	canon, err := pathnorm.Canonical(absDir)
	if err == nil {
		if w.visited[canon] {
			return nil // symlink cycle — skip, don't error
		}
		w.visited[canon] = true
		defer delete(w.visited, canon)
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil // permission denied or similar — skip silently
	}

	for _, d := range entries {
		name := d.Name()
		if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
			continue
		}

		rel := name
		if relDir != "" {
			rel = relDir + "/" + name
		}
		abs := filepath.Join(absDir, name)

		info, infoErr := d.Info()
		isSymlink := infoErr == nil && info.Mode()&os.ModeSymlink != 0
		isDir := d.IsDir()

		if isSymlink {
			if !w.opts.FollowSymlinks {
				continue
			}
			target, statErr := os.Stat(abs)
			if statErr != nil {
				continue // broken symlink
			}
			isDir = target.IsDir()
		}

		if isDir {
			if w.matchesExclude(rel) {
				continue
			}
			if depth+1 < w.maxDepth {
				if err := w.walk(abs, rel, depth+1); err != nil {
					return err
				}
			}
			continue
		}

		if w.accepts(rel) {
			size, mtime := int64(0), int64(0)
			if infoErr == nil {
				size = info.Size()
				mtime = info.ModTime().Unix()
			}
			w.entries = append(w.entries, Entry{Path: rel, Name: name, Size: size, ModTime: mtime})
		}
	}
	return nil
}

func (w *walker) accepts(rel string) bool {
	if w.matchesExclude(rel) {
		return false
	}
	if !w.globMatch(w.opts.Pattern, rel) {
		return false
	}
	if len(w.opts.Include) > 0 && !w.anyMatch(w.opts.Include, rel) {
		return false
	}
	if len(w.opts.Extensions) > 0 {
		ext := strings.TrimPrefix(filepath.Ext(rel), ".")
		if !w.opts.Extensions[ext] && !w.opts.Extensions["."+ext] {
			return false
		}
	}
	return true
}

func (w *walker) matchesExclude(rel string) bool {
	return len(w.opts.Exclude) > 0 && w.anyMatch(w.opts.Exclude, rel)
}

func (w *walker) anyMatch(patterns []string, rel string) bool {
	for _, p := range patterns {
		if w.globMatch(p, rel) {
			return true
		}
	}
	return false
}

func (w *walker) globMatch(pattern, rel string) bool {
	if !w.opts.CaseSensitive {
		pattern = strings.ToLower(pattern)
		rel = strings.ToLower(rel)
	}
	ok, _ := doublestar.Match(pattern, rel)
	return ok
}

func sortEntries(entries []Entry, by SortBy, order SortOrder) {
	if by == "" {
		by = SortByPath
	}
	desc := order == SortDesc

	primaryLess := func(a, b Entry) (less, equal bool) {
		switch by {
		case SortByName:
			return a.Name < b.Name, a.Name == b.Name
		case SortByModified:
			return a.ModTime < b.ModTime, a.ModTime == b.ModTime
		case SortBySize:
			return a.Size < b.Size, a.Size == b.Size
		default:
			return a.Path < b.Path, a.Path == b.Path
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		less, equal := primaryLess(a, b)
		if !equal {
			if desc {
				return !less
			}
			return less
		}
		return a.Path < b.Path // deterministic tie-break, always path ascending
	})
}

func paginate(entries []Entry, offset, limit int) []Entry {
	if offset >= len(entries) {
		return []Entry{}
	}
	end := offset + limit
	if end > len(entries) || end < 0 {
		end = len(entries)
	}
	return entries[offset:end]
}
