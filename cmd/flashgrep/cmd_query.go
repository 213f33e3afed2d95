package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/flashgrep/flashgrep/pkg/search"
)

// cmdQuery runs a single search query against the index and prints the
// ranked result window to stdout.
func cmdQuery(args []string) error {
	pos := positional(args)
	if len(pos) == 0 {
		return fmt.Errorf("usage: flashgrep query <text> [--mode=smart|literal|regex] [--limit=N] [--offset=N] [--context=N]")
	}
	text := strings.Join(pos, " ")

	env, err := openEnvironment(parseFlag(args, "--root="))
	if err != nil {
		return err
	}
	defer env.Close()

	q := search.Query{
		Text:          text,
		Mode:          search.Mode(orDefault(parseFlag(args, "--mode="), string(search.ModeSmart))),
		CaseSensitive: hasFlag(args, "--case-sensitive"),
		ContextLines:  atoiOr(parseFlag(args, "--context="), 0),
		Limit:         atoiOr(parseFlag(args, "--limit="), search.DefaultLimit),
		Offset:        atoiOr(parseFlag(args, "--offset="), 0),
	}
	if inc := parseFlag(args, "--include="); inc != "" {
		q.Include = strings.Split(inc, ",")
	}
	if exc := parseFlag(args, "--exclude="); exc != "" {
		q.Exclude = strings.Split(exc, ",")
	}

	matches, err := search.New(env.Store).Search(context.Background(), q)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(matches) == 0 {
		fmt.Println("No matches found")
		return nil
	}
	for _, m := range matches {
		fmt.Printf("%s:%d-%d  score=%.3f", m.Path, m.StartLine, m.EndLine, m.Score)
		if m.Symbol != "" {
			fmt.Printf("  %s", m.Symbol)
		}
		fmt.Println()
		if m.Snippet != "" {
			fmt.Println(indentLines(m.Snippet, "    "))
		}
	}
	fmt.Printf("%d match(es)\n", len(matches))
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func atoiOr(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func indentLines(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
