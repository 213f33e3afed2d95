package main

import (
	"context"
	"fmt"

	"github.com/flashgrep/flashgrep/pkg/config"
	"github.com/flashgrep/flashgrep/pkg/ignore"
	"github.com/flashgrep/flashgrep/pkg/indexer"
)

// cmdIndex runs a one-shot full index of the repository and exits, printing
// a progress line every indexer.ProgressInterval files.
func cmdIndex(args []string) error {
	env, err := openEnvironment(parseFlag(args, "--root="))
	if err != nil {
		return err
	}
	defer env.Close()

	ign, err := ignore.New(config.StateDirName, env.RepoRoot+"/.flashgrepignore")
	if err != nil {
		return fmt.Errorf("load ignore rules: %w", err)
	}

	cfg := env.Config
	result, err := env.Indexer.IndexRepository(context.Background(), ign, cfg.MaxFileSize, cfg.ExtensionSet(), func(p indexer.Progress) {
		fmt.Printf("  %d/%d %s\n", p.FilesDone, p.FilesTotal, p.Path)
	})
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}

	skipped := result.SkippedBrokenSymlinks + result.SkippedIgnored + result.SkippedSize + result.SkippedBinary + result.SkippedExtension
	fmt.Printf("Indexed %s\n", env.RepoRoot)
	fmt.Printf("  files scanned:  %d\n", len(result.Files))
	fmt.Printf("  files skipped:  %d\n", skipped)
	return nil
}
