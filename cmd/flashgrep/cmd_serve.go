package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flashgrep/flashgrep/pkg/bootstrap"
	"github.com/flashgrep/flashgrep/pkg/codeio"
	"github.com/flashgrep/flashgrep/pkg/config"
	"github.com/flashgrep/flashgrep/pkg/registry"
	"github.com/flashgrep/flashgrep/pkg/rpcserver"
	"github.com/flashgrep/flashgrep/pkg/search"
	"github.com/flashgrep/flashgrep/pkg/watcher"
)

// cmdServe watches the repository, keeps the index current, and serves
// query/glob/read/write RPCs over TCP and, on unix, a socket — foreground,
// until SIGINT/SIGTERM.
func cmdServe(args []string) error {
	env, err := openEnvironment(parseFlag(args, "--root="))
	if err != nil {
		return err
	}
	defer env.Close()

	lockPath, err := config.AcquireWatcherLock(env.RepoRoot)
	if err != nil {
		return err
	}
	defer config.ReleaseWatcherLock(env.RepoRoot)
	defer os.Remove(lockPath)

	reg, err := registry.LoadDefault()
	if err != nil {
		return fmt.Errorf("load watcher registry: %w", err)
	}
	if err := reg.Start(env.RepoRoot, os.Getpid()); err != nil {
		return err
	}
	defer reg.Stop(env.RepoRoot)

	cfg := env.Config

	w, err := watcher.New(watcher.Config{
		Root:            env.RepoRoot,
		IgnoreFilePath:  env.RepoRoot + "/.flashgrepignore",
		StateDirName:    config.StateDirName,
		MaxFileSize:     cfg.MaxFileSize,
		Extensions:      cfg.ExtensionSet(),
		SkipInitialScan: !cfg.EnableInitialIndex,
	}, env.Indexer)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Stop()

	writer := codeio.NewWriter(env.Indexer)
	defer writer.Close()

	skillPath := env.RepoRoot + "/skills/SKILL.md"
	srv := &rpcserver.Server{
		Indexer:      env.Indexer,
		Searcher:     search.New(env.Store),
		Reader:       codeio.NewReader(env.Store),
		Writer:       writer,
		Bootstrapper: bootstrap.New(skillPath),
		Root:         env.RepoRoot,
		StatePaths:   &env.Paths,
		TCPAddr:      fmt.Sprintf("127.0.0.1:%d", cfg.MCPPort),
	}
	if cfg.UseUnixSocket {
		srv.UnixPath = env.Paths.SocketPath()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nflashgrep: shutting down...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "flashgrep: serving %s on tcp %s", env.RepoRoot, srv.TCPAddr)
	if srv.UnixPath != "" {
		fmt.Fprintf(os.Stderr, " and unix %s", srv.UnixPath)
	}
	fmt.Fprintln(os.Stderr)

	return srv.Serve(ctx)
}
