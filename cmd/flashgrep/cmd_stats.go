package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
)

// cmdStats prints index file/chunk/symbol counts and on-disk index size.
func cmdStats(args []string) error {
	env, err := openEnvironment(parseFlag(args, "--root="))
	if err != nil {
		return err
	}
	defer env.Close()

	st := env.Store.Stats()
	sizeBytes := env.Paths.SizeBytes()

	table := tablewriter.NewTable(os.Stdout)
	table.Header("Metric", "Value")
	table.Append("Repository", env.RepoRoot)
	table.Append("Files indexed", fmt.Sprintf("%d", st.Files))
	table.Append("Chunks indexed", fmt.Sprintf("%d", st.Chunks))
	table.Append("Symbols indexed", fmt.Sprintf("%d", st.Symbols))
	table.Append("Index size", humanBytes(sizeBytes))
	table.Render()
	return nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
