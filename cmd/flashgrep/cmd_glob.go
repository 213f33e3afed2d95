package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/flashgrep/flashgrep/pkg/glob"
)

// cmdGlob lists files under the repository matching a glob pattern.
func cmdGlob(args []string) error {
	pos := positional(args)
	if len(pos) == 0 {
		return fmt.Errorf("usage: flashgrep glob <pattern> [--recursive] [--include-hidden] [--max-depth=N] [--limit=N] [--offset=N]")
	}
	pattern := pos[0]

	env, err := openEnvironment(parseFlag(args, "--root="))
	if err != nil {
		return err
	}
	defer env.Close()

	opts := glob.Options{
		Base:           env.RepoRoot,
		Pattern:        pattern,
		Recursive:      hasFlag(args, "--recursive"),
		IncludeHidden:  hasFlag(args, "--include-hidden"),
		FollowSymlinks: hasFlag(args, "--follow-symlinks"),
		CaseSensitive:  hasFlag(args, "--case-sensitive"),
		MaxDepth:       atoiOr(parseFlag(args, "--max-depth="), 0),
		Limit:          atoiOr(parseFlag(args, "--limit="), 0),
		Offset:         atoiOr(parseFlag(args, "--offset="), 0),
		SortBy:         glob.SortBy(orDefault(parseFlag(args, "--sort-by="), string(glob.SortByPath))),
		SortOrder:      glob.SortOrder(orDefault(parseFlag(args, "--sort-order="), string(glob.SortAsc))),
	}
	if inc := parseFlag(args, "--include="); inc != "" {
		opts.Include = strings.Split(inc, ",")
	}
	if exc := parseFlag(args, "--exclude="); exc != "" {
		opts.Exclude = strings.Split(exc, ",")
	}
	if ext := parseFlag(args, "--extensions="); ext != "" {
		opts.Extensions = make(map[string]bool)
		for _, e := range strings.Split(ext, ",") {
			opts.Extensions[strings.ToLower(strings.TrimPrefix(e, "."))] = true
		}
	}

	res, err := glob.Walk(opts)
	if err != nil {
		return fmt.Errorf("glob: %w", err)
	}

	for _, e := range res.Entries {
		kind := "file"
		if e.IsDir {
			kind = "dir"
		}
		fmt.Printf("%-4s %8d  %s  %s\n", kind, e.Size, time.Unix(e.ModTime, 0).Format(time.RFC3339), e.Path)
	}
	fmt.Printf("%d of %d entries\n", len(res.Entries), res.Total)
	return nil
}
