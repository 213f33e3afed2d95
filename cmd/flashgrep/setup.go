// Package main provides the CLI for flashgrep.
package main

import (
	"fmt"
	"os"

	"github.com/flashgrep/flashgrep/pkg/config"
	"github.com/flashgrep/flashgrep/pkg/filestate"
	"github.com/flashgrep/flashgrep/pkg/indexer"
	"github.com/flashgrep/flashgrep/pkg/store"
)

// environment bundles everything a subcommand needs once the repository
// root and its state directory have been resolved.
type environment struct {
	RepoRoot string
	Paths    config.Paths
	Config   *config.Config
	Store    *store.Store
	Indexer  *indexer.Indexer
}

// openEnvironment resolves repoRoot (or the current working directory),
// loads the repository config, creates the state directory if missing,
// and opens the metadata/text-index store and file-state bookkeeping.
func openEnvironment(repoRootFlag string) (*environment, error) {
	repoRoot, err := resolveRepoRoot(repoRootFlag)
	if err != nil {
		return nil, err
	}

	paths := config.NewPaths(repoRoot)
	if err := paths.Create(); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	cfg, err := config.Load(paths.ConfigFile())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(paths.MetadataDB(), paths.TextIndexDir())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	fs, err := filestate.Load(paths.FileStatePath(cfg.IndexStatePath))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load file state: %w", err)
	}

	idx := indexer.New(repoRoot, st, fs, cfg.MaxChunkLines)

	return &environment{
		RepoRoot: repoRoot,
		Paths:    paths,
		Config:   cfg,
		Store:    st,
		Indexer:  idx,
	}, nil
}

// Close releases the store and persists any dirty file-state.
func (e *environment) Close() error {
	if err := e.Indexer.FileState.SaveIfDirty(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save file state: %v\n", err)
	}
	return e.Store.Close()
}

// resolveRepoRoot honors an explicit --root flag, then FLASHGREP_ROOT, then
// walks up from the working directory looking for an existing state
// directory or a .git directory.
func resolveRepoRoot(flagValue string) (string, error) {
	if flagValue != "" {
		return config.GetRepoRoot(flagValue)
	}
	if env := os.Getenv("FLASHGREP_ROOT"); env != "" {
		return config.GetRepoRoot(env)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return config.FindRepoRoot(cwd), nil
}
